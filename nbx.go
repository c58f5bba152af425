package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/phil-mansfield/neighbors/lib/config"
	nbxerr "github.com/phil-mansfield/neighbors/lib/error"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
	"github.com/phil-mansfield/neighbors/lib/sim"
	"github.com/phil-mansfield/neighbors/lib/snapio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the nbx command tree. Results go to out and logs go to
// logOut.
func newRootCmd(out, logOut io.Writer) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "nbx",
		Short: "Distributed neighbor particle exchange",
		Long: `nbx runs a particle simulation on a tiled, multi-level grid and
exchanges neighbor particles between tiles and processes every step.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"overrides the config file's LogLevel")

	newLogger := func(c *config.Config) *slog.Logger {
		if logLevel != "" {
			c.Run.LogLevel = logLevel
		}
		level, err := c.LogLevel()
		if err != nil {
			level = slog.LevelInfo
		}
		log := slog.New(slog.NewTextHandler(logOut,
			&slog.HandlerOptions{Level: level}))
		if err != nil {
			nbxerr.External(log, "%s", err.Error())
		}
		return log.With("run", uuid.NewString())
	}

	readConfig := func(name string) *config.Config {
		c, err := config.ReadFile(name)
		if err != nil {
			log := slog.New(slog.NewTextHandler(logOut, nil))
			nbxerr.External(log, "%s", err.Error())
		}
		return c
	}

	root.AddCommand(&cobra.Command{
		Use:   "run <config>",
		Short: "Run the particle driver described by a config file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			c := readConfig(args[0])
			log := newLogger(c)
			Run(cmd.Context(), c, log, out)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "check <config>",
		Short: "Check a config file for errors",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			c := readConfig(args[0])
			log := newLogger(c)
			Check(c, log, out)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "convert <config> <output>",
		Short: "Convert a config file's input files into one checkpoint",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			c := readConfig(args[0])
			log := newLogger(c)
			Convert(c, log, out, args[1])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "example_config",
		Short: "Print an example config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(out, config.Example)
		},
	})

	return root
}

// Check runs nbx's "check" mode which tests for errors in the configuration
// that can only be found by building the grid hierarchy.
func Check(c *config.Config, log *slog.Logger, out io.Writer) {
	ranks := 1
	if c.Run.Transport == "local" {
		ranks = c.Run.Ranks
	} else if c.Run.Transport == "tcp" {
		ranks = len(c.Addresses())
	}
	h, err := c.Hierarchy(ranks)
	if err != nil {
		nbxerr.External(log, "%s", err.Error())
		return
	}
	ecfg, err := c.Engine()
	if err == nil {
		err = ecfg.Check(h)
	}
	if err != nil {
		nbxerr.External(log, "%s", err.Error())
		return
	}
	fmt.Fprintln(out, "No errors detected.")
}

// Convert runs nbx's "convert" mode, which reads every InputFiles entry and
// writes the particles to a single checkpoint file. The checkpoint can be used
// as initial conditions for later runs.
func Convert(c *config.Config, log *slog.Logger, out io.Writer, output string) {
	if c.Run.InitialConditions == "random" {
		nbxerr.External(log, "Convert needs InitialConditions to name a "+
			"file format, not 'random'.")
		return
	}
	g, err := c.Geometry()
	if err != nil {
		nbxerr.External(log, "%s", err.Error())
		return
	}
	ps, err := snapio.ReadFiles(c.Run.InitialConditions, c.Run.InputFiles,
		sim.Layout(), 0, 1)
	if err != nil {
		nbxerr.External(log, "%s", err.Error())
		return
	}
	if err := sim.SaveCheckpoint(output, c, g, ps, 0); err != nil {
		nbxerr.External(log, "%s", err.Error())
		return
	}
	log.Info("Wrote checkpoint.", "file", output, "particles", len(ps),
		"inputs", len(c.Run.InputFiles))
	fmt.Fprintf(out, "Wrote %d particles to %s.\n", len(ps), output)
}

// Run runs nbx's "run" mode and prints one summary line per local rank.
func Run(ctx context.Context, c *config.Config, log *slog.Logger, out io.Writer) {
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := sim.Launch(ctx, c, log)
	nbxerr.Check(log, err, neighbor.ErrStale, neighbor.ErrComm)
	if err != nil {
		return
	}

	for _, r := range results {
		fmt.Fprintf(out, "rank %d: %d particles, %d pairs, %.3g mean "+
			"neighbors, c/a = %.3f, b/a = %.3f\n", r.Rank, r.Particles,
			r.Pairs, r.Counts.Mean, r.CA, r.BA)
	}
}
