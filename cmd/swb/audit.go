package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hollandm/switchboard/internal/audit"
	"github.com/hollandm/switchboard/internal/config"
	"github.com/hollandm/switchboard/internal/db"
	"github.com/hollandm/switchboard/internal/models"
)

func newAuditCmd() *cobra.Command {
	var (
		configPath  string
		agent       string
		correlation string
		kind        string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the message audit trail",
		Long:  "Lists recorded messages, newest first. Filter by agent, correlation ID, or message kind.",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			var recs []models.Record
			switch {
			case correlation != "":
				recs, err = store.ByCorrelation(correlation)
			case agent != "":
				recs, err = store.ForAgent(agent, limit)
			default:
				recs, err = store.Recent(limit)
			}
			if err != nil {
				return err
			}
			if kind != "" {
				recs = filterKind(recs, kind)
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No messages recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSENDER\tRECIPIENT\tKIND\tPRI\tCORRELATION")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.Timestamp.Format("2006-01-02 15:04:05"),
					r.Sender, r.Recipient, r.Kind, r.Priority, r.CorrelationID)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	cmd.Flags().StringVar(&agent, "agent", "", "only messages sent to or from this agent")
	cmd.Flags().StringVar(&correlation, "correlation", "", "only messages in this correlation chain")
	cmd.Flags().StringVar(&kind, "kind", "", "only messages of this kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages")
	return cmd
}

func filterKind(recs []models.Record, kind string) []models.Record {
	kept := recs[:0]
	for _, r := range recs {
		if r.Kind == kind {
			kept = append(kept, r)
		}
	}
	return kept
}
