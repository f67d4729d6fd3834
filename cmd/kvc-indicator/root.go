package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/kvc-indicator/internal/config"
	"github.com/example/kvc-indicator/internal/console"
	"github.com/example/kvc-indicator/internal/ipc"
	"github.com/example/kvc-indicator/internal/logging"
	"github.com/example/kvc-indicator/internal/menu"
	"github.com/example/kvc-indicator/internal/notify"
	"github.com/example/kvc-indicator/internal/service"
)

// deps holds the collaborators commands create. Tests replace them.
type deps struct {
	newController func(service.Options) (service.Controller, error)
	endpoint      func() ipc.Endpoint
}

func defaultDeps() deps {
	return deps{
		newController: service.New,
		endpoint:      ipc.DefaultEndpoint,
	}
}

type globalOptions struct {
	deps

	configPath string
	debug      bool
	console    bool
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (o *globalOptions) controller(cfg *config.Config) (service.Controller, func(), error) {
	ctl, err := o.newController(cfg.ServiceOptions())
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if closer, ok := ctl.(io.Closer); ok {
		release = func() { _ = closer.Close() }
	}
	return ctl, release, nil
}

func newRootCmd(d deps) *cobra.Command {
	opts := &globalOptions{deps: d}

	root := &cobra.Command{
		Use:   "kvc-indicator",
		Short: "Tray indicator for the Kerio VPN client service",
		Long: `kvc-indicator shows whether the Kerio VPN client service is running and
lets you stop or start it from the system tray.

Without a subcommand it starts the indicator.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				logging.EnableDebug()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndicator(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default $"+config.PathEnv+" or the user config dir)")
	flags.BoolVar(&opts.debug, "debug", false, "enable verbose logging")
	root.Flags().BoolVar(&opts.console, "console", false, "show the menu in the terminal instead of the system tray")

	// Subcommands (alphabetical)
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newRefreshCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newToggleCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func runIndicator(parent context.Context, opts *globalOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	useConsole := opts.console || cfg.Tray.Console
	if !useConsole && !menu.SystrayAvailable {
		logging.Warnf("this build has no system tray support; falling back to the terminal menu")
		useConsole = true
	}

	ctl, release, err := opts.controller(cfg)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint := opts.endpoint()
	listener, err := endpoint.Listen(ctx)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		return fmt.Errorf("%w for this session (%s)", err, endpoint.Address)
	}
	if err != nil {
		return err
	}

	var runnerOpts []menu.Option
	if useConsole {
		restoreLog, err := logToFile()
		if err != nil {
			listener.Close()
			return err
		}
		defer restoreLog()
		runnerOpts = append(runnerOpts, menu.WithTray(console.New()))
	}
	if cfg.Tray.Notify {
		runnerOpts = append(runnerOpts, menu.WithNotifier(notify.Desktop{Icon: cfg.Tray.Icons.Stopped}))
	}

	runner, err := menu.NewRunner(cfg, ctl, runnerOpts...)
	if err != nil {
		listener.Close()
		return err
	}

	srv := ipc.NewServer(ctl.Unit(), runner.RequestRefresh)
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := srv.Serve(ctx, listener); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warnf("control socket stopped: %v", err)
		}
	}()
	logging.Infof("indicator for %s running (control socket %s)", ctl.Unit(), endpoint)

	err = runner.Start(ctx)
	stop()
	<-serveDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logToFile keeps log lines from drawing over the terminal menu.
func logToFile() (func(), error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("determine cache dir: %w", err)
	}
	return logging.ToFile(filepath.Join(dir, "kvc-indicator", "indicator.log"))
}
