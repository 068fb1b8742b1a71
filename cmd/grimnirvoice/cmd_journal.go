/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_voice/internal/db"
	"github.com/friendsincode/grimnir_voice/internal/journal"
)

var (
	pruneForce     bool
	pruneOlderThan time.Duration
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Manage the directive, focus and play journal",
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal rows older than a cutoff",
	Long: `Prune deletes directive records, focus transitions and layer releases
recorded before now minus --older-than. Running servers prune on their own
according to GRIMNIR_VOICE_JOURNAL_RETENTION; this command is for one-off
cleanups.

Examples:
  # Interactive prune of everything older than a week
  grimnirvoice journal prune

  # Keep one day, no prompt
  grimnirvoice journal prune --older-than 24h --force
`,
	RunE: runJournalPrune,
}

func init() {
	journalPruneCmd.Flags().BoolVarP(&pruneForce, "force", "f", false, "Skip confirmation prompt")
	journalPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 7*24*time.Hour, "Delete rows older than this")
	journalCmd.AddCommand(journalPruneCmd)
	rootCmd.AddCommand(journalCmd)
}

func runJournalPrune(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive, got %s", pruneOlderThan)
	}
	cutoff := time.Now().UTC().Add(-pruneOlderThan)

	if !pruneForce {
		fmt.Printf("This deletes every journal row recorded before %s.\n", cutoff.Format(time.RFC3339))
		fmt.Print("Type 'yes' to confirm: ")
		response, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Prune cancelled.")
			return nil
		}
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return err
	}

	n, err := journal.New(database, nil, cfg.NodeID, logger).Prune(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	logger.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("journal pruned")
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
	return nil
}
