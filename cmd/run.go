// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/profiler"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	runLoad          bool
	runTicks         int
	runProfile       string
	runProfileFile   string
	runProfileNS     []string
	runProfileTraced bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [flags] <function> [arguments]",
	Short: "Run a function of the datapack",
	Long: `Run a function of the configured datapack and print its output.

Arguments, when given, are an SNBT compound passed to a macro function.
With --load the functions of the #minecraft:load tag run first. With
--ticks the server then advances the given number of game ticks, running
scheduled functions and the #minecraft:tick tag.

Profiling (--profile):
  otel        Log one OpenTelemetry span per function invocation
  opencensus  Log one OpenCensus span per function invocation
  pprof       Write a Go CPU profile labeled by function (cpu.pprof)
  callgrind   Write a Callgrind profile of invocations (callgrind.out)

Functions whose header comment holds @trace{label} are labeled with it.
With --profile-traced only those functions are profiled.

Examples:
  sniffer run --datapack pack demo:main
  sniffer run --datapack pack demo:greet '{name:"Steve"}'
  sniffer run --datapack pack --load --ticks 20 demo:main
  sniffer run --datapack pack --profile callgrind demo:main`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := mcfunction.ParseResourceID(args[0])
		if err != nil {
			return err
		}
		var macroArgs *mcfunction.Compound
		if len(args) == 2 {
			macroArgs, err = parseMacroArgs(args[1])
			if err != nil {
				return err
			}
		}
		srv, err := newServer(mcfunction.WithOutput(os.Stdout))
		if err != nil {
			return err
		}
		return runFunction(cmd.Context(), srv, id, macroArgs)
	},
}

// parseMacroArgs parses text as the SNBT compound of macro arguments.
func parseMacroArgs(text string) (*mcfunction.Compound, error) {
	v, err := mcfunction.ParseSNBT(text)
	if err != nil {
		return nil, errors.Wrap(err, "arguments")
	}
	c, ok := v.(*mcfunction.Compound)
	if !ok {
		return nil, errors.Errorf("arguments must be a compound, got %v", v.Kind())
	}
	return c, nil
}

func runFunction(ctx context.Context, srv *mcfunction.Server, id mcfunction.ResourceID, args *mcfunction.Compound) error {
	var opts []profiler.Option
	opts = append(opts, profiler.WithDocLabeler())
	if runProfileTraced {
		opts = append(opts, profiler.WithDocFilter())
	} else if len(runProfileNS) > 0 {
		opts = append(opts, profiler.WithNamespaceFilter(runProfileNS...))
	}
	finish, err := startProfiler(ctx, srv, runProfile, runProfileFile, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := finish(); err != nil {
			log.WithError(err).Error("Unable to complete profile")
		}
	}()

	if runLoad {
		if err := srv.Load(ctx); err != nil {
			renderRunError(err)
			return errReported
		}
	}
	run, err := srv.Execute(ctx, id, mcfunction.ServerSource(), args)
	if err != nil {
		renderRunError(err)
		return errReported
	}
	log.WithFields(log.Fields{
		"function": id.String(),
		"status":   run.Status().String(),
	}).Debug("Function returned")
	for i := 0; i < runTicks; i++ {
		if _, err := srv.Tick(ctx); err != nil {
			renderRunError(err)
			return errReported
		}
	}
	return nil
}

// renderRunError renders an execution error with a hint for the errors a
// user can fix from the command line.
func renderRunError(err error) {
	var notes []string
	switch {
	case errors.Is(err, mcfunction.ErrUnknownFunction):
		notes = append(notes, "try: sniffer check")
	case errors.Is(err, mcfunction.ErrQuotaExceeded):
		notes = append(notes, fmt.Sprintf("raise --max-command-chain (currently %d)", viper.GetInt("max-command-chain")))
	}
	renderError(err, notes...)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runLoad, "load", false,
		"Run the functions of the load tag first")
	runCmd.Flags().IntVar(&runTicks, "ticks", 0,
		"Number of game ticks to run after the function returns")
	runCmd.Flags().StringVar(&runProfile, "profile", "",
		"Profile the run: otel, opencensus, pprof or callgrind")
	runCmd.Flags().StringVar(&runProfileFile, "profile-file", "",
		"Output file of pprof and callgrind profiles")
	runCmd.Flags().StringSliceVar(&runProfileNS, "profile-namespace", nil,
		"Only profile functions in these namespaces")
	runCmd.Flags().BoolVar(&runProfileTraced, "profile-traced", false,
		"Only profile functions whose header comment holds @trace")
}
