package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Checkpointer is satisfied by the database manager.
type Checkpointer interface {
	CheckpointWAL(mode string) error
}

// CheckpointJob folds the SQLite WAL back into the main database file so it
// does not grow unbounded under a steady ingest load.
type CheckpointJob struct {
	db     Checkpointer
	logger *slog.Logger
	mode   string
}

func NewCheckpointJob(db Checkpointer, logger *slog.Logger) *CheckpointJob {
	return &CheckpointJob{db: db, logger: logger, mode: "PASSIVE"}
}

func (j *CheckpointJob) Name() string { return "wal_checkpoint" }

func (j *CheckpointJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return nil
	}
	start := time.Now()
	if err := j.db.CheckpointWAL(j.mode); err != nil {
		return fmt.Errorf("wal checkpoint (%s): %w", j.mode, err)
	}
	j.logger.Debug("WAL checkpoint completed",
		slog.String("mode", j.mode),
		slog.Duration("duration", time.Since(start)))
	return nil
}
