package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/relief-shade/internal/logger"
	"github.com/Faultbox/relief-shade/internal/pool"
	"github.com/Faultbox/relief-shade/internal/render"
	"github.com/Faultbox/relief-shade/pkg/formats"
	"github.com/Faultbox/relief-shade/pkg/shading"
)

// parseStyleOverride parses a "key=value" style override into st.
func parseStyleOverride(st shading.Style, s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("style %s: %w", k, err)
	}
	st[strings.TrimSpace(k)] = f
	return nil
}

func cmdRender(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	out := fs.String("o", "", "Output PNG (default: archive name with .png)")
	ortho := fs.String("ortho", "", "Ortho image to blend (overrides render.ortho)")
	overrides := shading.Style{}
	fs.Func("set", "Override a style key, key=value (repeatable)", func(s string) error {
		return parseStyleOverride(overrides, s)
	})
	cfg := setup(fs, args)

	if fs.NArg() < 1 {
		usage("render [-o out.png -ortho img -set k=v] <tile.rsp>")
	}
	path := fs.Arg(0)

	a, err := formats.LoadArchive(path)
	if err != nil {
		fatal(err)
	}
	plan, err := a.Plan()
	if err != nil {
		fatal(err)
	}
	ev, err := shading.NewEvaluator(plan, a.Factor, a.Scheme)
	if err != nil {
		fatal(err)
	}

	st, err := cfg.Style("")
	if err != nil {
		fatal(err)
	}
	st = st.Merge(overrides)
	for _, k := range st.Unknown() {
		logger.Warn("unknown style key ignored", zap.String("key", k), zap.Strings("known", shading.Keys()))
	}

	frame := &render.Frame{Tile: a.Tile(), Buffers: a.Buffers, CellSize: cfg.Render.CellSize}
	orthoPath := cfg.Render.Ortho
	if *ortho != "" {
		orthoPath = *ortho
	}
	if orthoPath != "" {
		if frame.Ortho, err = render.LoadOrtho(orthoPath); err != nil {
			fatal(err)
		}
	}

	ctx, cancel := interruptible()
	defer cancel()
	p := pool.New(cfg.Render.Workers)
	defer p.Close()

	start := time.Now()
	img, err := render.New(p, ev).Render(ctx, frame, st.Resolve())
	if err != nil {
		fatal(err)
	}

	outPath := *out
	if outPath == "" {
		outPath = strings.TrimSuffix(path, ".rsp") + ".png"
	}
	if err := render.SavePNG(outPath, img); err != nil {
		fatal(err)
	}

	logger.Info("tile rendered",
		zap.String("archive", path),
		zap.String("output", outPath),
		zap.String("mode", cfg.Render.Mode),
		zap.Int("workers", p.Workers()),
		zap.Duration("elapsed", time.Since(start)),
	)
	fmt.Printf("Rendered %s -> %s\n", path, outPath)
}
