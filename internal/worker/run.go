// Package worker runs the background activity-sync loop.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/HanabLabs/FocusDock/internal/config"
	"github.com/HanabLabs/FocusDock/internal/metrics"
	"github.com/HanabLabs/FocusDock/internal/pgmq"
	"github.com/HanabLabs/FocusDock/internal/service"

	"github.com/rs/zerolog"
)

// Synchronizer runs one provider sync for one user.
type Synchronizer interface {
	Sync(ctx context.Context, userID string) (int, error)
}

// Worker drains the activity-sync queue, dispatching each job to the
// matching provider synchronizer.
type Worker struct {
	cfg         *config.Config
	queue       *pgmq.Client
	githubSync  Synchronizer
	spotifySync Synchronizer
	recorder    metrics.Recorder
	logger      zerolog.Logger
}

// New creates a Worker.
func New(cfg *config.Config, queue *pgmq.Client, githubSync, spotifySync Synchronizer, recorder metrics.Recorder, logger zerolog.Logger) *Worker {
	return &Worker{
		cfg:         cfg,
		queue:       queue,
		githubSync:  githubSync,
		spotifySync: spotifySync,
		recorder:    recorder,
		logger:      logger.With().Str("worker", "activity_sync").Logger(),
	}
}

// Run polls the queue until the context is cancelled. Jobs are deleted after
// processing regardless of outcome: a failed sync self-heals on the next
// connect or manual sync, so retrying a poisoned message forever would only
// burn provider quota.
func (w *Worker) Run(ctx context.Context) error {
	queue := w.cfg.SyncQueueName
	w.logger.Info().Str("queue", queue).Msg("Starting activity sync worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Shutting down activity sync worker")
			return nil
		default:
		}

		msgs, err := w.queue.ReadWithPoll(ctx, queue, w.cfg.SyncPollTimeoutSec, w.cfg.SyncPollMaxMsg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("Error reading sync queue")
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.handleMessage(ctx, queue, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, queue string, msg *pgmq.Message) {
	defer func() {
		if err := w.queue.Delete(ctx, queue, []int64{msg.ID}); err != nil {
			w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error deleting sync message")
		}
	}()

	var job service.SyncJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Malformed sync payload; dropping message")
		return
	}

	var sync Synchronizer
	switch job.Provider {
	case "github":
		sync = w.githubSync
	case "spotify":
		sync = w.spotifySync
	default:
		w.logger.Error().Str("provider", job.Provider).Int64("msg_id", msg.ID).Msg("Unknown sync provider; dropping message")
		return
	}

	start := time.Now()
	n, err := sync.Sync(ctx, job.UserID)
	w.recorder.RecordSyncLatency(job.Provider, time.Since(start))
	if err != nil {
		w.recorder.RecordSyncRun(job.Provider, "failure")
		w.logger.Error().Err(err).Str("user_id", job.UserID).Str("provider", job.Provider).Msg("Background sync failed")
		return
	}
	w.recorder.RecordSyncRun(job.Provider, "success")
	w.recorder.RecordSyncRecords(job.Provider, n)
	w.logger.Info().Str("user_id", job.UserID).Str("provider", job.Provider).Int("records", n).Msg("Background sync completed")
}
