package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/relief-shade/internal/config"
	"github.com/Faultbox/relief-shade/internal/logger"
	"github.com/Faultbox/relief-shade/internal/pool"
	"github.com/Faultbox/relief-shade/internal/render"
	"github.com/Faultbox/relief-shade/pkg/bandpack"
	"github.com/Faultbox/relief-shade/pkg/formats"
	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

func readRaw(path string, w, h, gutter, bands int) (*bandpack.Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := bandpack.ReadRawTile(f, w, h, gutter, bands)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func cmdEncode(args []string) {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	width := fs.Int("w", 256, "Tile width in pixels, gutter excluded")
	height := fs.Int("h", 256, "Tile height in pixels, gutter excluded")
	gutter := fs.Int("gutter", 1, "Gutter width in pixels")
	outDir := fs.String("o", ".", "Output directory")
	cfg := setup(fs, args)

	if fs.NArg() < 1 {
		usage("encode [-w N -h N -gutter N -o dir] <tile.raw>...")
	}

	enc, err := cfg.Encoder()
	if err != nil {
		fatal(err)
	}
	bands := enc.Plan().SourceBandCount()

	tiles := make([]*bandpack.Tile, fs.NArg())
	for i, path := range fs.Args() {
		if tiles[i], err = readRaw(path, *width, *height, *gutter, bands); err != nil {
			fatal(err)
		}
	}

	ctx, cancel := interruptible()
	defer cancel()
	p := pool.New(cfg.Render.Workers)
	defer p.Close()

	bufs, err := render.EncodeTiles(ctx, p, enc, tiles)
	if err != nil {
		fatal(err)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fatal(err)
	}
	for i, path := range fs.Args() {
		a := formats.NewArchive(tiles[i], enc, bufs[i])
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".rsp"
		out := filepath.Join(*outDir, name)
		if err := formats.SaveArchive(out, a); err != nil {
			fatal(err)
		}
		logger.Info("tile encoded", zap.String("source", path), zap.String("archive", out), zap.Stringer("id", a.ID))
		fmt.Printf("%s -> %s (%s)\n", path, out, a.ID)
	}
}

func cmdProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	width := fs.Int("w", 256, "Tile width in pixels, gutter excluded")
	height := fs.Int("h", 256, "Tile height in pixels, gutter excluded")
	gutter := fs.Int("gutter", 1, "Gutter width in pixels")
	renderW := fs.Int("rw", 0, "Render width (default: tile width)")
	renderH := fs.Int("rh", 0, "Render height (default: tile height)")
	cfg := setup(fs, args)

	if fs.NArg() < 3 {
		usage("probe [-w N -h N -gutter N -rw N -rh N] <tile.raw> <col> <row>")
	}
	col, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		fatal(fmt.Errorf("column: %w", err))
	}
	row, err := strconv.Atoi(fs.Arg(2))
	if err != nil {
		fatal(fmt.Errorf("row: %w", err))
	}
	if *renderW <= 0 {
		*renderW = *width
	}
	if *renderH <= 0 {
		*renderH = *height
	}

	plan, err := cfg.Plan()
	if err != nil {
		fatal(err)
	}
	t, err := readRaw(fs.Arg(0), *width, *height, *gutter, plan.SourceBandCount())
	if err != nil {
		fatal(err)
	}

	values := bandpack.PixelData(t, *renderW, *renderH, col, row)
	if values == nil {
		fatal(fmt.Errorf("pixel (%d,%d) is outside the %dx%d render", col, row, *renderW, *renderH))
	}

	fmt.Printf("Render pixel (%d,%d) of %dx%d\n", col, row, *renderW, *renderH)
	fmt.Printf("%-5s %-20s %-7s %-5s %s\n", "Band", "Type", "Buffer", "Slot", "Value")
	for b, v := range values {
		d := plan.Destination(b)
		slot := strconv.Itoa(d.Slot)
		if plan.Group(d.Buffer).Packed {
			if d.High {
				slot += "h"
			} else {
				slot += "l"
			}
		}
		fmt.Printf("%-5d %-20s %-7d %-5s %g", b, plan.Group(d.Buffer).Type, d.Buffer, slot, v)
		if d.High && plan.Group(d.Buffer).Type == layout.Shadow {
			fmt.Printf("  angles %v", shadowWord(values[b-1], v).Angles())
		}
		fmt.Println()
	}
}

// shadowWord rebuilds the word a producer split across two source bands.
func shadowWord(lo, hi float32) shadowcodec.ShadowWord {
	return shadowcodec.ShadowWord(bandpack.PackPair(uint32(int64(lo)), uint32(int64(hi))))
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("o", "", "Output path (default: user config dir)")
	cfg := setup(fs, args)

	var err error
	path := *out
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.yaml")
		err = cfg.Save()
	} else {
		err = cfg.SaveTo(path)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Config written to %s\n", path)
}
