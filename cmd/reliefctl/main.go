// reliefctl encodes terrain tiles into packed relief archives and shades them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/Faultbox/relief-shade/internal/config"
	"github.com/Faultbox/relief-shade/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "encode", "enc":
		cmdEncode(args)
	case "info":
		cmdInfo(args)
	case "render", "r":
		cmdRender(args)
	case "probe":
		cmdProbe(args)
	case "shader":
		cmdShader(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`reliefctl - shaded relief tile utility

Usage:
  reliefctl <command> [options]

Commands:
  encode [-w N -h N -gutter N -o dir] <tile.raw>...   Pack raw float32 tiles into .rsp archives
  info <tile.rsp>                                     Show archive information
  render [-o out.png -ortho img -set k=v] <tile.rsp>  Shade an archive to PNG
  probe [-w N -h N -gutter N -rw N -rh N] <tile.raw> <col> <row>
                                                      Show source bands under a render pixel
  shader [-o out.wgsl -spirv out.spv] [tile.rsp]      Generate the WGSL shading module
  config [-o path]                                    Write the effective configuration

Common options:
  -config path   Config file (default: ./reliefshade.yaml, then user config dir)
  -mode name     Shading mode preset
  -workers N     Worker count (0 = one per CPU)
  -cell-size F   Ground units per texel
  -debug         Enable debug logging

Examples:
  reliefctl encode -w 256 -h 256 -gutter 1 -o tiles/ dem_0_0.raw dem_0_1.raw
  reliefctl render -mode swiss -set azimuth=300 tiles/dem_0_0.rsp
  reliefctl shader -spirv relief.spv tiles/dem_0_0.rsp`)
}

// setup parses args on fs together with the common configuration flags,
// loads the configuration and starts logging.
func setup(fs *flag.FlagSet, args []string) *config.Config {
	cf := config.BindFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(cf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config", zap.String("warning", w))
	}
	logger.Sugar.Debugf("Config: %+v", cfg)
	return cfg
}

// interruptible returns a context cancelled on Ctrl-C.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func fatal(err error) {
	logger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "Usage: reliefctl "+line)
	os.Exit(1)
}
