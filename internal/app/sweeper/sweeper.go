/*
Package sweeper runs the periodic lifecycle jobs: expiring idle anonymous principals,
purging messages retired past the retention window and cleaning up unused or released
file objects. Every job is idempotent, so a run that fails is simply retried on the next
tick.
*/
package sweeper

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomchat/internal/app/db"
	"roomchat/internal/pkg/logx"
)

const (
	// purgeBatchSize bounds the retired messages removed per transaction.
	purgeBatchSize = 200

	// removalBatchSize bounds the file objects removed per run.
	removalBatchSize = 100

	// fileSweepInterval is how often unused file references are expired.
	fileSweepInterval = 5 * time.Minute

	jobTimeout = time.Minute
)

// FileCleaner expires unused file references and removes released objects.
type FileCleaner interface {
	ExpireUnused(ctx context.Context) (int64, error)
	RemovePending(ctx context.Context, limit int) (int, error)
	RemoveByID(ctx context.Context, fileID string) error
}

// Config holds the sweeper schedule.
type Config struct {
	AnonSessionTTL         time.Duration
	AnonSweepInterval      time.Duration
	RetentionWindow        time.Duration
	RetentionSweepInterval time.Duration
}

// Sweeper owns the lifecycle jobs.
type Sweeper struct {
	store  *db.Store
	files  FileCleaner
	clock  clockwork.Clock
	cfg    Config
	logger zerolog.Logger
}

// New constructs a Sweeper.
func New(store *db.Store, files FileCleaner, clock clockwork.Clock, cfg Config) *Sweeper {
	return &Sweeper{
		store:  store,
		files:  files,
		clock:  clock,
		cfg:    cfg,
		logger: logx.Component("Sweeper"),
	}
}

// Run drives every job on its own ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("anon_ttl", s.cfg.AnonSessionTTL).
		Dur("retention", s.cfg.RetentionWindow).
		Msg("Sweeper started.")

	anon := s.clock.NewTicker(s.cfg.AnonSweepInterval)
	defer anon.Stop()
	retention := s.clock.NewTicker(s.cfg.RetentionSweepInterval)
	defer retention.Stop()
	files := s.clock.NewTicker(fileSweepInterval)
	defer files.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sweeper stopped.")
			return nil
		case <-anon.Chan():
			s.run(ctx, "anonymous", s.ExpireAnonymous)
		case <-retention.Chan():
			s.run(ctx, "retention", s.PurgeRetired)
		case <-files.Chan():
			s.run(ctx, "files", s.CleanFiles)
		}
	}
}

// run executes one job with a deadline. Failures are logged, never fatal.
func (s *Sweeper) run(ctx context.Context, name string, job func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	n, err := job(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("Sweep failed, will retry next tick.")
		return
	}
	if n > 0 {
		s.logger.Info().Str("job", name).Int64("affected", n).Msg("Sweep completed.")
	}
}

// ExpireAnonymous deactivates anonymous principals whose session outlived the TTL.
func (s *Sweeper) ExpireAnonymous(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.AnonSessionTTL).UnixMilli()
	return s.store.ExpireAnonymousBefore(ctx, cutoff)
}

// PurgeRetired permanently deletes messages retired before the retention window and
// releases their files.
func (s *Sweeper) PurgeRetired(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.RetentionWindow).UnixMilli()

	var total int64
	for {
		batch, err := s.store.ListRetiredBefore(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		err = s.store.InTx(ctx, func(q *db.Queries) error {
			for _, m := range batch {
				if m.FileID.Valid {
					if _, err := q.ReleaseFile(ctx, m.FileID.String); err != nil {
						return err
					}
				}
				if _, err := q.DeleteMessage(ctx, m.ID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += int64(len(batch))

		fileIDs := lo.FilterMap(batch, func(m db.Message, _ int) (string, bool) {
			return m.FileID.String, m.FileID.Valid
		})
		for _, id := range fileIDs {
			if err := s.files.RemoveByID(ctx, id); err != nil {
				s.logger.Warn().Err(err).Str("file_id", id).Msg("File removal failed, left pending.")
			}
		}

		if len(batch) < purgeBatchSize {
			return total, nil
		}
	}
}

// CleanFiles expires unused references and removes objects still pending removal.
func (s *Sweeper) CleanFiles(ctx context.Context) (int64, error) {
	expired, err := s.files.ExpireUnused(ctx)
	if err != nil {
		return 0, err
	}

	removed, err := s.files.RemovePending(ctx, removalBatchSize)
	if err != nil {
		return expired, err
	}
	return expired + int64(removed), nil
}
