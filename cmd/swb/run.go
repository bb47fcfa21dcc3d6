package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hollandm/switchboard/internal/agents"
	"github.com/hollandm/switchboard/internal/audit"
	"github.com/hollandm/switchboard/internal/bus"
	"github.com/hollandm/switchboard/internal/config"
	"github.com/hollandm/switchboard/internal/coordinator"
	"github.com/hollandm/switchboard/internal/dashboard"
	"github.com/hollandm/switchboard/internal/db"
	"github.com/hollandm/switchboard/internal/notify"
	"github.com/hollandm/switchboard/internal/notify/discord"
	"github.com/hollandm/switchboard/internal/notify/slack"
	"github.com/hollandm/switchboard/internal/runtime"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the switchboard",
		Long:  "Starts the bus, coordinator, and every agent declared in the config file, then blocks until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

func runRun(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Storage)
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}
	store := audit.NewStore(gormDB)

	operator, err := buildNotifier(cmd, cfg)
	if err != nil {
		return err
	}
	defer operator.Close()

	b := bus.New(bus.Options{Store: store, Operator: operator})
	coord := coordinator.New(b, coordinator.Options{
		SystemID: cfg.SystemID,
		Operator: operator,
	})

	for _, ac := range cfg.Agents {
		handler, err := agents.Build(ac.Kind, ac.ID)
		if err != nil {
			return fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		rt := runtime.New(ac.ID, handler, runtime.Options{
			MailboxSize:       cfg.MailboxSize,
			HeartbeatInterval: time.Duration(cfg.HeartbeatSeconds) * time.Second,
		})
		for _, capability := range ac.Capabilities {
			rt.AddCapability(capability)
		}
		if err := coord.Register(rt); err != nil {
			return fmt.Errorf("register %s: %w", ac.ID, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.StartAll(ctx); err != nil {
		return fmt.Errorf("start agents: %w", err)
	}

	if cfg.Announce != "" {
		if err := coord.StartAnnounce(ctx, cfg.Announce); err != nil {
			return fmt.Errorf("announce schedule: %w", err)
		}
	}

	if cfg.Dashboard.Enabled {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				Coordinator: coord,
				Bus:         b,
				Store:       store,
				Port:        cfg.Dashboard.Port,
				Out:         cmd.OutOrStdout(),
			})
			if err != nil {
				log.Printf("dashboard: %v", err)
			}
		}()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Switchboard %s running with %d agents. Ctrl-C to stop.\n", cfg.SystemID, len(cfg.Agents))
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := coord.StopAll(stopCtx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "shutdown: %v\n", err)
	}
	fmt.Fprintln(out, "Stopped.")
	return nil
}

// buildNotifier assembles the operator channel from config. The log adapter
// is always attached so alerts land somewhere even without Slack or Discord.
func buildNotifier(cmd *cobra.Command, cfg *config.Config) (*notify.Notifier, error) {
	adapters := []notify.Adapter{notify.NewLogAdapter(cmd.ErrOrStderr())}

	if cfg.Notify.Slack.Token != "" {
		a, err := slack.New(cfg.Notify.Slack.Token, cfg.Notify.Slack.Channel)
		if err != nil {
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
		adapters = append(adapters, a)
	}
	if cfg.Notify.Discord.Token != "" {
		a, err := discord.New(cfg.Notify.Discord.Token, cfg.Notify.Discord.Channel)
		if err != nil {
			return nil, fmt.Errorf("discord notifier: %w", err)
		}
		adapters = append(adapters, a)
	}

	return notify.NewNotifier(adapters...), nil
}
