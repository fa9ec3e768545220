package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/livesync/backend/internal/persist"
)

func newRecordsCmd(configPath *string) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print the persisted records as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, kv, err := openRecords(cfg.State)
			if err != nil {
				return err
			}
			defer kv.Close()

			records := store.Load()
			out := make([]persist.Record, 0, len(records))
			for _, r := range records {
				if kind != "" && r.KindName != kind {
					continue
				}
				out = append(out, r)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only records of this kind")
	return cmd
}

func newPurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every persisted record without reporting removals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, kv, err := openRecords(cfg.State)
			if err != nil {
				return err
			}
			defer kv.Close()

			n := len(store.Load())
			if err := store.Clear(); err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d records\n", n)
			return nil
		},
	}
}
