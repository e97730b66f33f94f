package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Askannz/munal-os/bundle"
)

var (
	fOutput   = pflag.StringP("output", "o", "", "output bundle path (default: <module>.mnl)")
	fName     = pflag.String("name", "", "application name (default: module filename)")
	fWindow   = pflag.String("window", "100,100,400,300", "initial window as x,y,w,h")
	fCompress = pflag.Bool("compress", true, "compress the module section")
)

func main() {
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: munalpack [flags] <module.wasm>")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	modPath := pflag.Arg(0)

	module, err := os.ReadFile(modPath)
	if err != nil {
		log.Fatal(err)
	}

	var win bundle.Window
	if _, err := fmt.Sscanf(*fWindow, "%d,%d,%d,%d", &win.X, &win.Y, &win.W, &win.H); err != nil {
		log.Fatalf("bad window %q: %s", *fWindow, err)
	}

	name := *fName
	if name == "" {
		base := filepath.Base(modPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	out := *fOutput
	if out == "" {
		out = name + ".mnl"
	}

	f, err := os.Create(out)
	if err != nil {
		log.Fatal(err)
	}

	if err := bundle.Encode(f, name, win, module, *fCompress); err != nil {
		f.Close()
		log.Fatal(err)
	}

	if err := f.Close(); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("wrote %s (%d byte module)\n", out, len(module))
}
