package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/epoc-ed/go-simpletem/client"
	"github.com/epoc-ed/go-simpletem/logger"
)

type globalFlags struct {
	host    string
	port    int
	timeout time.Duration
	verbose bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "tem-client",
		Short:         "Send commands to a tem-server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.host, "host", "localhost", "server host")
	root.PersistentFlags().IntVarP(&g.port, "port", "p", client.DefaultPort, "server port")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 5*time.Second, "reply timeout of general commands")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newPingCmd(&g),
		newExitCmd(&g),
		newStatusCmd(&g),
		newPositionCmd(&g),
		newTiltCmd(&g),
		newStopCmd(&g),
		newWaitCmd(&g),
		newCallCmd(&g),
	)

	return root
}

func (g *globalFlags) client(opts ...client.Option) (*client.Client, error) {
	level := logger.WarnLevel
	if g.verbose {
		level = logger.DebugLevel
	}

	opts = append([]client.Option{
		client.WithPort(g.port),
		client.WithTimeout(g.timeout),
		client.WithLogger(logger.NewSlog(level, false)),
	}, opts...)

	return client.New(g.host, opts...)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func newPingCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}

			begin := time.Now()
			if err := c.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pong (%v)\n", time.Since(begin).Round(time.Microsecond))

			return nil
		},
	}
}

func newExitCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exit",
		Short: "Stop the motion worker and end the server loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}

			return c.ExitServer(cmd.Context())
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the drive state of every stage axis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}

			st, err := c.StageStatus(cmd.Context())
			if err != nil {
				return err
			}
			for i, s := range st {
				fmt.Fprintf(cmd.OutOrStdout(), "axis %d: %s\n", i, s)
			}

			return nil
		},
	}
}

func newPositionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "position",
		Short: "Print the stage position (x, y, z, tiltX, tiltY)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}

			pos, err := c.StagePosition(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd, pos)
		},
	}
}

func newTiltCmd(g *globalFlags) *cobra.Command {
	var async, maxSpeed, relative bool

	cmd := &cobra.Command{
		Use:   "tilt <degrees>",
		Short: "Rotate the stage around X",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid angle %q: %w", args[0], err)
			}

			c, err := g.client()
			if err != nil {
				return err
			}

			var opts []client.TiltOption
			if async {
				opts = append(opts, client.Async())
			}
			if maxSpeed {
				opts = append(opts, client.MaxSpeed())
			}

			if relative {
				return c.SetTXRel(cmd.Context(), value, opts...)
			}

			return c.SetTiltXAngle(cmd.Context(), value, opts...)
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "return once the rotation is queued")
	cmd.Flags().BoolVar(&maxSpeed, "max-speed", false, "rotate at the fastest drive rate")
	cmd.Flags().BoolVar(&relative, "relative", false, "rotate by the given delta")

	return cmd
}

func newStopCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Halt the rotation in progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}

			return c.StopStage(cmd.Context())
		},
	}
}

func newWaitCmd(g *globalFlags) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the stage stops rotating",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client(client.WithPollInterval(interval))
			if err != nil {
				return err
			}

			return c.WaitForStage(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "status polling interval")

	return cmd
}

func newCallCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <command> [json-arg...]",
		Short: "Send any command; each argument is parsed as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				var v any
				if err := json.Unmarshal([]byte(a), &v); err != nil {
					return fmt.Errorf("argument %q is not JSON: %w", a, err)
				}
				params = append(params, v)
			}

			c, err := g.client()
			if err != nil {
				return err
			}

			payload, err := c.Call(cmd.Context(), args[0], params...)
			if err != nil {
				return err
			}

			return printJSON(cmd, payload)
		},
	}
}
