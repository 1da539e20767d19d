package journal

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Retention prunes old journal rows once a day.
type Retention struct {
	journal *Journal
	days    int
	logger  *zerolog.Logger
}

// NewRetention keeps days of history. days <= 0 disables pruning.
func NewRetention(j *Journal, days int, logger *zerolog.Logger) *Retention {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Retention{journal: j, days: days, logger: logger}
}

// Start prunes immediately and then every 24 hours until ctx is done.
func (r *Retention) Start(ctx context.Context) {
	if r.days <= 0 {
		r.logger.Info().Msg("journal retention disabled")
		return
	}
	r.logger.Info().Int("days", r.days).Msg("journal retention started")

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	r.RunOnce(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.RunOnce(ctx, now)
		}
	}
}

// RunOnce deletes rows older than the retention window relative to now.
func (r *Retention) RunOnce(ctx context.Context, now time.Time) {
	cutoff := now.AddDate(0, 0, -r.days)
	n, err := r.journal.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("journal prune failed")
		return
	}
	if n > 0 {
		r.logger.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("journal pruned")
	}
}
