/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_voice/internal/scenario"
)

var (
	replayJSON    bool
	replayVerbose bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>",
	Short: "Replay a scripted scenario against a fresh core and print the timeline",
	Long: `Replay runs the directives, focus requests and play steps of a scenario
file against an in-process orchestration core with simulated capability
handlers, then prints every event the core published.

Examples:
  # Human readable timeline
  grimnirvoice replay scenarios/barge_in.yaml

  # Machine readable timeline with debug logs on stderr
  grimnirvoice replay --json --verbose scenarios/barge_in.yaml
`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the timeline as JSON")
	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "Log core activity to stderr")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	s, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if replayVerbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger().Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeline, err := scenario.NewRunner(s, log).Run(ctx)
	if timeline != nil {
		if werr := writeTimeline(cmd.OutOrStdout(), timeline, replayJSON); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("replay %s: %w", args[0], err)
	}
	return nil
}

func writeTimeline(w io.Writer, timeline *scenario.Timeline, asJSON bool) error {
	if !asJSON {
		return timeline.WriteText(w)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(timeline)
}
