/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package journal

import (
	"context"
	"time"

	"github.com/friendsincode/grimnir_voice/internal/leadership"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

// DefaultRetentionInterval is how often RunRetention checks for old rows.
const DefaultRetentionInterval = time.Hour

// RunRetention deletes rows older than maxAge every interval while leader
// reports this node as leader. It blocks until ctx ends. A zero maxAge keeps
// rows forever.
func (j *Journal) RunRetention(ctx context.Context, leader leadership.Leader, maxAge, interval time.Duration) {
	if maxAge <= 0 {
		j.logger.Info().Msg("journal retention disabled")
		return
	}
	if leader == nil {
		leader = leadership.Single{}
	}
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		j.pruneIfLeader(ctx, leader, maxAge)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Journal) pruneIfLeader(ctx context.Context, leader leadership.Leader, maxAge time.Duration) {
	if !leader.IsLeader() {
		return
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	n, err := j.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error().Err(err).Msg("journal retention failed")
		}
		return
	}
	telemetry.JournalPruned.Add(float64(n))
	if n > 0 {
		j.logger.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("pruned journal")
	}
}
