// Package purge removes expired sessions and verification tokens.
// Expiry is enforced lazily on every read; the purger just keeps the
// tables from accumulating dead rows.
package purge

import (
	"context"
	"log/slog"
	"time"

	"github.com/febriansr/authgate/internal/metrics"
	"github.com/febriansr/authgate/internal/repository"
	"github.com/robfig/cron/v3"
)

type Purger struct {
	sessions repository.SessionRepository
	tokens   repository.VerificationTokenRepository
	schedule cron.Schedule
	logger   *slog.Logger
}

// New validates the cron expression (standard five-field syntax or
// descriptors like "@hourly") and returns a ready purger.
func New(sessions repository.SessionRepository, tokens repository.VerificationTokenRepository, cronExpr string, logger *slog.Logger) (*Purger, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Purger{
		sessions: sessions,
		tokens:   tokens,
		schedule: schedule,
		logger:   logger.With("component", "purger"),
	}, nil
}

// Start blocks until ctx is cancelled, running one purge cycle at each
// scheduled instant. Run it in its own goroutine.
func (p *Purger) Start(ctx context.Context) {
	p.logger.Info("purger started")
	for {
		next := p.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("purger shut down")
			return
		case <-timer.C:
			p.run(ctx)
		}
	}
}

func (p *Purger) run(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.PurgeCycleDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now()

	sessions, err := p.sessions.DeleteExpired(ctx, now)
	if err != nil {
		p.logger.ErrorContext(ctx, "purge expired sessions", "error", err)
	} else if sessions > 0 {
		metrics.PurgedRowsTotal.WithLabelValues("sessions").Add(float64(sessions))
		p.logger.InfoContext(ctx, "purged expired sessions", "count", sessions)
	}

	tokens, err := p.tokens.DeleteExpired(ctx, now)
	if err != nil {
		p.logger.ErrorContext(ctx, "purge expired verification tokens", "error", err)
	} else if tokens > 0 {
		metrics.PurgedRowsTotal.WithLabelValues("verification_tokens").Add(float64(tokens))
		p.logger.InfoContext(ctx, "purged expired verification tokens", "count", tokens)
	}
}
