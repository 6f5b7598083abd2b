package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// JournalMaintenanceSchedule runs maintenance once a day
const JournalMaintenanceSchedule = "@daily"

const walWarnFrames = 1000

// JournalPruner deletes settled journal entries
type JournalPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// JournalMaintenanceJob checks the order journal's integrity, prunes old
// settled orders and reports on the WAL
type JournalMaintenanceJob struct {
	conn      *sql.DB
	pruner    JournalPruner
	retention time.Duration
	log       zerolog.Logger
}

// NewJournalMaintenanceJob creates the job. A zero retention disables pruning.
func NewJournalMaintenanceJob(conn *sql.DB, pruner JournalPruner, retention time.Duration, log zerolog.Logger) *JournalMaintenanceJob {
	return &JournalMaintenanceJob{
		conn:      conn,
		pruner:    pruner,
		retention: retention,
		log:       log.With().Str("job", "journal_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *JournalMaintenanceJob) Name() string {
	return "journal_maintenance"
}

// Run executes the maintenance pass
func (j *JournalMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := j.checkIntegrity(ctx); err != nil {
		// A corrupted journal cannot be repaired here
		j.log.Error().Err(err).Msg("Journal integrity check failed")
		return fmt.Errorf("order journal is corrupted: %w", err)
	}

	if j.retention > 0 && j.pruner != nil {
		cutoff := time.Now().Add(-j.retention)
		pruned, err := j.pruner.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		j.log.Info().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("Journal pruned")
	}

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	err := j.conn.QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to check WAL checkpoint")
		return nil
	}
	if frames > walWarnFrames {
		j.log.Warn().Int("wal_frames", frames).Int("checkpointed", checkpointed).Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().Int("wal_frames", frames).Msg("WAL checkpoint status OK")
	}
	return nil
}

// checkIntegrity runs SQLite's PRAGMA integrity_check
func (j *JournalMaintenanceJob) checkIntegrity(ctx context.Context) error {
	var result string
	if err := j.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}
