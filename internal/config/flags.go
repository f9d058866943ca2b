package config

import "flag"

// Flags holds the command-line overrides registered on a FlagSet.
type Flags struct {
	config   *string
	debug    *bool
	mode     *string
	workers  *int
	cellSize *float64
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		config:   fs.String("config", "", "Path to config file"),
		debug:    fs.Bool("debug", false, "Enable debug logging"),
		mode:     fs.String("mode", "", "Shading mode preset"),
		workers:  fs.Int("workers", -1, "Worker count (0 = one per CPU)"),
		cellSize: fs.Float64("cell-size", 0, "Ground units per texel"),
	}
}

// configPath returns the explicit config path if provided via -config.
func (f *Flags) configPath() string {
	if f == nil {
		return ""
	}
	return *f.config
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if *f.debug {
		cfg.Logging.Level = "debug"
	}
	if *f.mode != "" {
		cfg.Render.Mode = *f.mode
	}
	if *f.workers >= 0 {
		cfg.Render.Workers = *f.workers
	}
	if *f.cellSize > 0 {
		cfg.Render.CellSize = *f.cellSize
	}
}
