package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/kvc-indicator/internal/engine"
	"github.com/example/kvc-indicator/internal/ipc"
	"github.com/example/kvc-indicator/internal/service"
)

const pingTimeout = 2 * time.Second

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service state and whether an indicator is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctl, release, err := opts.controller(cfg)
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Service.Timeout)
			defer cancel()
			state, err := ctl.Probe(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Service  "), styleValue.Render(ctl.Unit()))
			fmt.Fprintf(out, "%s %s\n", styleLabel.Render("State    "), renderState(state))
			fmt.Fprintf(out, "%s %s\n", styleLabel.Render("Indicator"), indicatorStatus(cmd.Context(), opts.endpoint()))
			return nil
		},
	}
}

func newToggleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Stop the service when it is running, start it otherwise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			table, err := cfg.Table()
			if err != nil {
				return err
			}
			ctl, release, err := opts.controller(cfg)
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Service.Timeout)
			defer cancel()
			out := engine.New(ctl, table).Handle(ctx, engine.IntentToggle)
			if out.Err != nil {
				return out.Err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s -> %s\n",
				styleSuccess.Render("✓"), out.Command, renderState(out.Probed), renderState(out.State))
			notifyIndicator(cmd.Context(), opts.endpoint())
			return nil
		},
	}
}

func newRefreshCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask the running indicator to re-read the service state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
			defer cancel()
			resp, err := opts.endpoint().Send(ctx, ipc.CommandRefresh)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s refreshed indicator for %s\n", styleSuccess.Render("✓"), resp.Unit)
			return nil
		},
	}
}

func renderState(state service.State) string {
	if state == service.StateActive {
		return styleActive.Render(state.String())
	}
	return styleStopped.Render(state.String())
}

func indicatorStatus(ctx context.Context, endpoint ipc.Endpoint) string {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	resp, err := endpoint.Send(ctx, ipc.CommandPing)
	if err != nil {
		return styleStopped.Render("not running")
	}
	return styleActive.Render(fmt.Sprintf("running (pid %d)", resp.PID))
}

// notifyIndicator lets a running indicator pick up a change made from the
// command line right away instead of at its next poll.
func notifyIndicator(ctx context.Context, endpoint ipc.Endpoint) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, _ = endpoint.Send(ctx, ipc.CommandRefresh)
}
