// Copyright © 2018 The ELPS authors

package cmd

import (
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger/debugrepl"
	"github.com/spf13/cobra"
)

var consoleLoad bool

var consoleCmd = &cobra.Command{
	Use:   "console [flags]",
	Short: "Interactive server console with breakpoints",
	Long: `Start a simulated server for the configured datapack with an
interactive console on the terminal.

Lines are executed as server commands, the way a dedicated server console
runs them. Debugger commands set breakpoints and step through paused
functions; type "help" for the list. Ctrl+C requests a pause at the next
command, Ctrl+D or "quit" exits.

Examples:
  sniffer console --datapack pack
  > break demo:main 3
  > function demo:main
  (dbg) step_over`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		srv, err := newServer()
		if err != nil {
			return err
		}
		sess := debugger.New(srv)
		srv.Debugger = sess
		ctx := cmd.Context()
		return serveDebugger(ctx, srv, sess, consoleLoad, func() error {
			return debugrepl.Run(ctx, srv, sess)
		})
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().BoolVar(&consoleLoad, "load", true,
		"Run the functions of the load tag before reading commands")
}
