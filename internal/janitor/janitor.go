// Package janitor closes support sessions that have sat idle past a
// configured age. Closing goes through the service so expiry follows the same
// transition path as a manual close.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/supportflow-dev/supportflow/pkg/chat"
)

// Janitor sweeps idle sessions on a cron schedule.
type Janitor struct {
	svc       *chat.Service
	idleAfter time.Duration
	schedule  string
	cron      *cron.Cron
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a janitor. schedule is a cron expression ("@every 10m" style
// descriptors included); idleAfter is how long a session may go untouched.
func New(svc *chat.Service, schedule string, idleAfter time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		svc:       svc,
		idleAfter: idleAfter,
		schedule:  schedule,
		log:       log.With().Str("component", "janitor").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules the sweep and returns immediately.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		j.Sweep(ctx)
	}); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info().Str("schedule", j.schedule).Dur("idle_after", j.idleAfter).Msg("janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep closes every open session whose UpdatedAt is older than idleAfter.
// Returns the number of sessions closed.
func (j *Janitor) Sweep(ctx context.Context) int {
	sessions, err := j.svc.GetActiveSessions(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("sweep failed to list sessions")
		return 0
	}

	cutoff := j.now().Add(-j.idleAfter)
	closed := 0
	for _, sess := range sessions {
		if sess.UpdatedAt.After(cutoff) {
			continue
		}
		if err := j.svc.CloseSession(ctx, sess.SessionID); err != nil {
			j.log.Error().Err(err).Str("session_id", sess.SessionID).Msg("sweep close failed")
			continue
		}
		closed++
	}

	if closed > 0 {
		j.log.Info().Int("closed", closed).Msg("idle sessions closed")
	}
	return closed
}
