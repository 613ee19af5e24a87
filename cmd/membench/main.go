// Command membench drives the memres engines and adapters with randomized
// workloads and reports timings next to a plain heap baseline.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pavanmanishd/memres"
)

var flags = []cli.Flag{
	&cli.PathFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "load allocator settings from YAML `file`",
		EnvVars: []string{"MEMBENCH_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "loglvl",
		Usage:   "set logging `level` to debug, info, warn or error",
		Value:   "info",
		EnvVars: []string{"MEMBENCH_LOGLVL"},
	},
	&cli.StringFlag{
		Name:  "provider",
		Usage: "raw storage `source` for chunks: heap or mmap (overrides the config file)",
	},
	&cli.Uint64Flag{
		Name:  "seed",
		Usage: "random `seed` for the workload",
		Value: 1,
	},
	&cli.IntFlag{
		Name:    "iterations",
		Aliases: []string{"n"},
		Usage:   "number of workload `rounds`",
		Value:   10000,
	},
	&cli.BoolFlag{
		Name:  "metrics",
		Usage: "print allocator counters after the run",
	},
}

var commands = []*cli.Command{
	poolCommand(),
	monoCommand(),
	bidiCommand(),
	vectorCommand(),
	listCommand(),
}

func main() {
	run(&cli.App{
		Name:      "membench",
		Usage:     "exercise memres allocators",
		UsageText: "membench [global options] command [command options]",
		Flags:     flags,
		Commands:  commands,
	})
}

func run(app *cli.App) {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "membench: %+v\n", err)
		os.Exit(1)
	}
}

// fileConfig is the layout of the --config file.
type fileConfig struct {
	Memres memres.Config `yaml:"memres"`
}

// loadConfig returns the defaults, overlaid with the config file and then
// with explicit flags.
func loadConfig(c *cli.Context) (memres.Config, error) {
	fc := fileConfig{Memres: memres.DefaultConfig()}
	if path := c.Path("config"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return memres.Config{}, errors.Wrap(err, "open config")
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil {
			return memres.Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if c.IsSet("provider") {
		fc.Memres.Provider = c.String("provider")
	}
	if err := fc.Memres.Validate(); err != nil {
		return memres.Config{}, err
	}
	return fc.Memres, nil
}

func newLogger(c *cli.Context) (log.Logger, error) {
	var opt level.Option
	switch strings.ToLower(c.String("loglvl")) {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, errors.Newf("unknown log level %q", c.String("loglvl"))
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return level.NewFilter(logger, opt), nil
}
