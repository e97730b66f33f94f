package main

import (
	"fmt"
	"image"
	"image/draw"
	"log"
	"os"

	_ "image/png"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"

	"github.com/Askannz/munal-os/bundle"
	"github.com/Askannz/munal-os/config"
	"github.com/Askannz/munal-os/device/gpu"
	"github.com/Askannz/munal-os/device/input"
	"github.com/Askannz/munal-os/device/net"
	"github.com/Askannz/munal-os/device/sim"
	"github.com/Askannz/munal-os/gfx"
	"github.com/Askannz/munal-os/kernel"
	mlog "github.com/Askannz/munal-os/log"
	"github.com/Askannz/munal-os/sandbox"
	"github.com/Askannz/munal-os/virtq"
)

var (
	fConfig     = pflag.StringP("config", "c", "boot.yaml", "boot configuration file")
	fIterations = pflag.IntP("iterations", "n", 0, "stop after this many loop iterations (0 = run forever)")
	fDump       = pflag.Bool("dump", false, "dump kernel state after the run")
)

const (
	inputQueueSize = 64
	netQueueSize   = 256
	gpuQueueSize   = 4
)

func main() {
	pflag.Parse()

	cfg, err := config.Load(*fConfig)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.LogLevel != "" {
		mlog.SetLevel(cfg.LogLevel)
	}

	inputQ, err := virtq.New(inputQueueSize, mlog.L)
	if err != nil {
		log.Fatal(err)
	}
	rxQ, err := virtq.New(netQueueSize, mlog.L)
	if err != nil {
		log.Fatal(err)
	}
	txQ, err := virtq.New(netQueueSize, mlog.L)
	if err != nil {
		log.Fatal(err)
	}
	gpuQ, err := virtq.New(gpuQueueSize, mlog.L)
	if err != nil {
		log.Fatal(err)
	}

	// device-side halves: the hosted platform stands in for a hypervisor
	netBackend := sim.NewNetBackend(rxQ, txQ, mlog.L)
	gpuBackend := sim.NewGPUBackend(gpuQ)

	inputDrv, err := input.New(inputQ, mlog.L)
	if err != nil {
		log.Fatal(err)
	}

	mac, err := config.ParseMAC(cfg.Network.MAC)
	if err != nil {
		log.Fatal(err)
	}

	netDrv, err := net.New(rxQ, txQ, mac, cfg.Network.MTU, mlog.L)
	if err != nil {
		log.Fatal(err)
	}

	gpuDrv, err := gpu.New(gpuQ, cfg.Display.Width, cfg.Display.Height, mlog.L)
	if err != nil {
		log.Fatal(err)
	}

	rt, err := sandbox.NewWasmerRuntime(mlog.L)
	if err != nil {
		log.Fatal(err)
	}

	var wallpaper *gfx.Framebuffer
	if cfg.Wallpaper != "" {
		wallpaper, err = loadWallpaper(cfg.Wallpaper, cfg.Display.Width, cfg.Display.Height)
		if err != nil {
			log.Fatal(err)
		}
	}

	stack := sim.NullStack{}

	k, err := kernel.New(kernel.Params{
		Log:        mlog.L,
		Runtime:    rt,
		Input:      inputDrv,
		Net:        netDrv,
		GPU:        gpuDrv,
		Frames:     stack,
		Sockets:    stack,
		Wallpaper:  wallpaper,
		CallBudget: cfg.CallBudget,
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, app := range cfg.Apps {
		b, err := bundle.Load(app.Bundle)
		if err != nil {
			log.Fatalf("loading %s: %s", app.Bundle, err)
		}

		if app.Window.W > 0 && app.Window.H > 0 {
			b.Manifest.Window = bundle.Window{
				X: int32(app.Window.X), Y: int32(app.Window.Y),
				W: int32(app.Window.W), H: int32(app.Window.H),
			}
		}

		if _, err := k.LoadGuest(b); err != nil {
			log.Fatalf("loading %s: %s", app.Bundle, err)
		}
	}

	for i := 0; *fIterations == 0 || i < *fIterations; i++ {
		netBackend.Step()
		gpuBackend.Step()
		k.RunIteration()

		if len(k.Guests()) == 0 {
			mlog.L.Info("all guests gone, shutting down")
			break
		}
	}

	if *fDump {
		fmt.Fprint(os.Stderr, spew.Sdump(k.Snapshot()))
	}
}

// loadWallpaper decodes an image file and scales nothing: the image must
// match the display exactly.
func loadWallpaper(path string, w, h int) (*gfx.Framebuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		return nil, fmt.Errorf("wallpaper is %dx%d, display is %dx%d", b.Dx(), b.Dy(), w, h)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return gfx.FromBytes(rgba.Pix, w, h)
}
