package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/relief-shade/internal/logger"
	"github.com/Faultbox/relief-shade/internal/shader"
	"github.com/Faultbox/relief-shade/pkg/formats"
	"github.com/Faultbox/relief-shade/pkg/layout"
)

func cmdInfo(args []string) {
	if len(args) < 1 {
		usage("info <tile.rsp>")
	}

	a, err := formats.LoadArchive(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	gw, gh := a.GridSize()
	fmt.Printf("Archive:    %s\n", args[0])
	fmt.Printf("Version:    %s\n", a.Version)
	fmt.Printf("ID:         %s\n", a.ID)
	fmt.Printf("Tile:       %dx%d, gutter %d (grid %dx%d)\n", a.Width, a.Height, a.Gutter, gw, gh)
	fmt.Printf("Factor:     %g\n", a.Factor)
	fmt.Printf("Shadow:     %d directions, %d elevation steps, %d words\n",
		a.Scheme.Directions, a.Scheme.ElevationSteps, a.Scheme.Words())
	fmt.Println()
	fmt.Println("Buffers:")
	for i, g := range a.Groups {
		packing := "unpacked"
		if g.Packed {
			packing = "packed"
		}
		fmt.Printf("  %d  %-20s %d slots, %-8s %d source bands, %d pixels\n",
			i, g.Type, g.Bands, packing, g.SourceBands(), a.Buffers[i].Pixels())
	}
}

func cmdShader(args []string) {
	fs := flag.NewFlagSet("shader", flag.ExitOnError)
	out := fs.String("o", "", "WGSL output path (default: stdout)")
	spirv := fs.String("spirv", "", "Also compile to SPIR-V at this path")
	cfg := setup(fs, args)

	var (
		plan   *layout.Plan
		factor = cfg.Layout.FixedPointFactor
		scheme = cfg.Layout.Scheme
		err    error
	)
	if fs.NArg() > 0 {
		a, err := formats.LoadArchive(fs.Arg(0))
		if err != nil {
			fatal(err)
		}
		factor, scheme = a.Factor, a.Scheme
		plan, err = a.Plan()
		if err != nil {
			fatal(err)
		}
	} else if plan, err = cfg.Plan(); err != nil {
		fatal(err)
	}

	src, err := shader.Generate(plan, factor, scheme)
	if err != nil {
		fatal(err)
	}
	if *out == "" {
		fmt.Print(src.WGSL)
	} else if err := os.WriteFile(*out, []byte(src.WGSL), 0644); err != nil {
		fatal(err)
	}

	if *spirv != "" {
		code, err := shader.Compile(src.WGSL)
		if err != nil {
			fatal(err)
		}
		if err := writeSPIRV(*spirv, code); err != nil {
			fatal(err)
		}
		logger.Info("shader written", zap.String("spirv", *spirv), zap.Int("words", len(code)))
	}
	for _, b := range src.Bindings {
		logger.Debug("binding", zap.Int("index", b.Index), zap.String("name", b.Name), zap.Stringer("kind", b.Kind))
	}
}

func writeSPIRV(path string, code []uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, code); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
