package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// L is the kernel-wide logger. Components receive it (or a Named child)
// explicitly; this package only owns construction.
var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{Name: "munal"})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// SetLevel adjusts the global level from a config string. Unknown names
// leave the level unchanged.
func SetLevel(name string) {
	if name == "" {
		return
	}

	if lvl := hclog.LevelFromString(name); lvl != hclog.NoLevel {
		L.SetLevel(lvl)
	}
}
