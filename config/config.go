// Package config loads the boot configuration: display geometry, network
// identity and the set of application bundles to launch.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrBadConfig = errors.New("invalid configuration")

type Display struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Network struct {
	MAC string `yaml:"mac"`
	MTU int    `yaml:"mtu"`
}

type Window struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// App names one application bundle to load at boot. A zero window defers
// to the geometry baked into the bundle's manifest.
type App struct {
	Name   string `yaml:"name"`
	Bundle string `yaml:"bundle"`
	Window Window `yaml:"window,omitempty"`
}

type Config struct {
	Display    Display `yaml:"display"`
	Wallpaper  string  `yaml:"wallpaper,omitempty"`
	Network    Network `yaml:"network"`
	LogLevel   string  `yaml:"log_level,omitempty"`
	CallBudget int     `yaml:"call_budget,omitempty"`
	Apps       []App   `yaml:"apps"`
}

func Default() Config {
	return Config{
		Display:    Display{Width: 1024, Height: 768},
		Network:    Network{MAC: "52:54:00:12:34:56", MTU: 1500},
		LogLevel:   "info",
		CallBudget: 4096,
	}
}

// Load reads path over the defaults, so a partial file only overrides
// what it names.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return errors.Wrapf(ErrBadConfig, "display %dx%d", c.Display.Width, c.Display.Height)
	}

	if c.Network.MTU <= 0 {
		return errors.Wrapf(ErrBadConfig, "mtu %d", c.Network.MTU)
	}

	if _, err := ParseMAC(c.Network.MAC); err != nil {
		return err
	}

	if c.CallBudget < 0 {
		return errors.Wrapf(ErrBadConfig, "call budget %d", c.CallBudget)
	}

	for _, a := range c.Apps {
		if a.Bundle == "" {
			return errors.Wrapf(ErrBadConfig, "app %q has no bundle path", a.Name)
		}
	}

	return nil
}

// ParseMAC parses a colon-separated hardware address.
func ParseMAC(s string) ([6]byte, error) {
	var mac [6]byte

	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&mac[0], &mac[1], &mac[2], &mac[3], &mac[4], &mac[5])
	if err != nil || n != 6 {
		return mac, errors.Wrapf(ErrBadConfig, "mac %q", s)
	}

	return mac, nil
}
