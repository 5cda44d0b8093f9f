// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/luthersystems/sniffer/docs"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger/dapserver"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// tickInterval is the length of a game tick.
const tickInterval = 50 * time.Millisecond

var (
	debugStdio       bool
	debugWebSocket   bool
	debugStopOnEntry bool
	debugLoad        bool
	debugGuide       bool
)

var debugCmd = &cobra.Command{
	Use:   "debug [flags]",
	Short: "Serve the datapack to a DAP debugger",
	Long: `Start a simulated server for the configured datapack and expose it to
editors over the Debug Adapter Protocol.

The server ticks 20 times a second, running scheduled functions and the
#minecraft:tick tag. A paused function freezes the server until the client
continues. A launch request may name a function to run once the client is
configured: {"function": "demo:main", "stopOnEntry": true}.

Transport modes:
  (default)    Listen for a DAP client on TCP port --port (default 4711)
  --websocket  Serve DAP over WebSocket on --websocket-port and
               --websocket-path (default ws://localhost:25599/dap)
  --stdio      Use stdin/stdout for DAP communication (for editors that
               launch the debug adapter as a child process)

Examples:
  sniffer debug --datapack pack                 Debug with TCP on port 4711
  sniffer debug --datapack pack --port 9229     Debug with TCP on port 9229
  sniffer debug --datapack pack --websocket     Debug over WebSocket
  sniffer debug --datapack pack --stdio         Debug with stdio transport
  sniffer debug --guide                         Print the debugging guide`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if debugGuide {
			_, err := fmt.Fprint(cmd.OutOrStdout(), docs.DebuggingGuide)
			return err
		}
		out := os.Stdout
		if debugStdio {
			// stdout carries the protocol.
			out = os.Stderr
		}
		srv, err := newServer(mcfunction.WithOutput(out))
		if err != nil {
			return err
		}
		sess := debugger.New(srv)
		srv.Debugger = sess
		dap := dapserver.New(srv, sess, dapserver.WithStopOnEntry(debugStopOnEntry))
		return serveDebugger(cmd.Context(), srv, sess, debugLoad, func() error {
			switch {
			case debugStdio:
				log.Info("DAP debugger: using stdio transport")
				return dap.ServeStdio(os.Stdin, os.Stdout)
			case debugWebSocket:
				addr := fmt.Sprintf("localhost:%d", viper.GetInt("websocket.port"))
				return dap.ServeWebSocket(addr, viper.GetString("websocket.path"))
			default:
				return dap.ServeTCP(fmt.Sprintf("localhost:%d", viper.GetInt("port")))
			}
		})
	},
}

// serveDebugger optionally runs the load tag, ticks srv in the background
// and calls serve until it returns or ctx is done. sess is shut down on the
// way out so that clients are told the server stopped.
func serveDebugger(ctx context.Context, srv *mcfunction.Server, sess *debugger.Session, load bool, serve func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer srv.Invoke(sess.Shutdown)
	if load {
		if err := srv.Load(ctx); err != nil {
			renderRunError(err)
			return errReported
		}
	}
	go func() {
		if err := srv.Serve(ctx, tickInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Server stopped ticking")
		}
	}()
	errCh := make(chan error, 1)
	go func() { errCh <- serve() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
		return nil
	}
}

func init() {
	rootCmd.AddCommand(debugCmd)

	flags := debugCmd.Flags()
	flags.Int("port", 4711, "TCP port for the DAP server")
	flags.BoolVar(&debugStdio, "stdio", false,
		"Use stdin/stdout for DAP communication")
	flags.BoolVar(&debugWebSocket, "websocket", false,
		"Serve DAP over WebSocket instead of raw TCP")
	flags.Int("websocket-port", 25599, "Port of the WebSocket server")
	flags.String("websocket-path", "dap", "URL path of the WebSocket endpoint")
	flags.BoolVar(&debugStopOnEntry, "stop-on-entry", false,
		"Pause at the first command executed after the client is configured")
	flags.BoolVar(&debugLoad, "load", true,
		"Run the functions of the load tag before serving")
	flags.BoolVar(&debugGuide, "guide", false,
		"Print the debugging guide and exit")

	for key, name := range map[string]string{
		"port":           "port",
		"websocket.port": "websocket-port",
		"websocket.path": "websocket-path",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}
