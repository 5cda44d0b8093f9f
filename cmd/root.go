// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	colorFlag string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sniffer",
	Short: "Debugger and runner for mcfunction datapacks",
	Long: `sniffer executes the functions of a datapack on a simulated server and
debugs them over the Debug Adapter Protocol.

Getting started:
  sniffer run --datapack pack demo:main     Run a function
  sniffer check pack/...                    Report problems in every datapack under pack
  sniffer debug --datapack pack             Serve DAP on TCP port 4711
  sniffer debug --websocket --datapack pack Serve DAP over WebSocket on port 25599
  sniffer console --datapack pack           Interactive breakpoint console

Configuration is read from $HOME/.sniffer.yaml (or --config) and from
environment variables prefixed with SNIFFER_, for example
SNIFFER_WEBSOCKET_PORT=25600.`,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			renderError(err)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sniffer.yaml)")
	flags.StringVar(&colorFlag, "color", "auto",
		`Control colored output: "auto", "always", or "never".`)
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	flags.String("datapack", "", "Datapack directory or zip archive to load")
	flags.Int("max-command-chain", 65536, "Maximum number of commands one run may execute")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")

	for _, name := range []string{"datapack", "max-command-chain", "log-level"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetDefault("port", 4711)
	viper.SetDefault("websocket.port", 25599)
	viper.SetDefault("websocket.path", "dap")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".sniffer")
	}

	viper.SetEnvPrefix("SNIFFER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

func configureLogging() {
	log.SetOutput(os.Stderr)
	level, err := log.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		log.WithError(err).Warn("Invalid log level, using info")
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}
