// Package maintenance runs periodic housekeeping for the sharing workflow:
// closing invites past their expiry and purging idempotency records whose
// replay window has ended.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/repo"
)

const defaultSchedule = "@every 15m"

// InviteExpirer closes invites whose expiry has passed and reports how many
// it closed. services.SharingService satisfies it.
type InviteExpirer interface {
	ExpireInvites(ctx context.Context) (int64, error)
}

// Stats is the outcome of one sweep.
type Stats struct {
	ExpiredInvites int64
	PurgedIdemKeys int64
}

// Sweeper schedules the housekeeping jobs on a cron.
type Sweeper struct {
	db       *gorm.DB
	invites  InviteExpirer
	cron     *cron.Cron
	schedule string
	now      func() time.Time
	log      zerolog.Logger
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithSchedule overrides the cron spec. An empty spec keeps the default.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithClock overrides the clock used for idempotency expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Sweeper. A nil db skips the idempotency purge and a nil
// invites skips invite expiry.
func New(db *gorm.DB, invites InviteExpirer, opts ...Option) *Sweeper {
	s := &Sweeper{
		db:       db,
		invites:  invites,
		schedule: defaultSchedule,
		now:      time.Now,
		log:      log.With().Str("component", "maintenance").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the sweep and starts the scheduler. An invalid schedule is
// returned as an error and nothing is started.
func (s *Sweeper) Start() error {
	if s.invites == nil && s.db == nil {
		return nil
	}
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx := s.log.WithContext(context.Background())
		st, err := s.RunOnce(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("sweep failed")
			return
		}
		if st.ExpiredInvites > 0 || st.PurgedIdemKeys > 0 {
			s.log.Info().
				Int64("expired_invites", st.ExpiredInvites).
				Int64("purged_idempotency_keys", st.PurgedIdemKeys).
				Msg("sweep done")
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce runs every job once. A failing job does not stop the others; all
// failures are returned together.
func (s *Sweeper) RunOnce(ctx context.Context) (Stats, error) {
	var (
		st   Stats
		errs error
	)
	if s.invites != nil {
		n, err := s.invites.ExpireInvites(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		st.ExpiredInvites = n
	}
	if s.db != nil {
		n, err := repo.PurgeIdempotency(ctx, s.db, s.now().UTC())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance: purge idempotency: %w", err))
		}
		st.PurgedIdemKeys = n
	}
	return st, errs
}
