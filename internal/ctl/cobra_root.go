package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flickd/internal/notify"
	"flickd/pkg/types"
)

// Config holds the persistent flags.
type Config struct {
	Server  string
	Timeout time.Duration
}

// DefaultConfig reads FLICKCTL_SERVER, falling back to localhost:8080.
func DefaultConfig() Config {
	server := os.Getenv("FLICKCTL_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	return Config{Server: server, Timeout: 10 * time.Second}
}

// NewRootCmd builds the flickctl command tree.
func NewRootCmd(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "flickctl",
		Short:         "Operate a running flickd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Server, "server", cfg.Server, "flickd base URL (defaults FLICKCTL_SERVER or http://localhost:8080)")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")

	client := func() (*Client, error) { return NewClient(cfg.Server, cfg.Timeout) }

	post := func(use, short, path string) *cobra.Command {
		return &cobra.Command{Use: use, Short: short, Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			res, err := c.Control(cmd.Context(), path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}}
	}
	group := func(use, short string, subs ...*cobra.Command) *cobra.Command {
		g := &cobra.Command{Use: use, Short: short, RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%s requires a subcommand", use)
		}}
		g.AddCommand(subs...)
		return g
	}

	status := &cobra.Command{Use: "status", Short: "Show session status", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	}}

	root.AddCommand(
		status,
		group("training", "Control the calibration session",
			post("start", "Start training", "/training/start"),
			post("stop", "Stop training", "/training/stop"),
		),
		group("prediction", "Control live prediction",
			post("start", "Start prediction", "/prediction/start"),
			post("stop", "Stop prediction", "/prediction/stop"),
			post("restart", "Resume monitoring after an action", "/prediction/restart"),
		),
		group("actuator", "Actuator utilities",
			post("test", "Fire the actuator once", "/actuator/test"),
		),
		group("headset", "Control the simulated headset",
			post("start", "Start streaming", "/simulator/headset/start"),
			post("stop", "Stop streaming", "/simulator/headset/stop"),
		),
		newWatchCmd(client),
	)
	return root
}

func newWatchCmd(client func() (*Client, error)) *cobra.Command {
	var count int
	var availability bool
	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Stream events as JSON lines",
		Example: "  flickctl watch\n  flickctl watch --count 5 --availability",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var cmds []types.Command
			if availability {
				cmds = append(cmds, types.Command{ID: notify.CommandRequestAvailability})
			}
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			seen := 0
			var encErr error
			err = c.Watch(cmd.Context(), cmds, func(ev types.Event) bool {
				if encErr = enc.Encode(ev); encErr != nil {
					return false
				}
				seen++
				return count <= 0 || seen < count
			})
			if err != nil {
				return err
			}
			return encErr
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after n events (0 streams until interrupted)")
	cmd.Flags().BoolVar(&availability, "availability", false, "request the current signal availability on connect")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs flickctl with args until ctx is done.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd(DefaultConfig())
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
