package worker

import (
	"context"
	"log"
	"time"

	"riseloop/automation"
)

// BackupWorker periodically re-dispatches events the real-time path left
// unhandled. It does the same work as GET /automation-processor.
type BackupWorker struct {
	Engine   *automation.Engine
	Interval time.Duration
	Grace    time.Duration
	Logger   *log.Logger
}

func NewBackupWorker(engine *automation.Engine, interval, grace time.Duration, logger *log.Logger) *BackupWorker {
	return &BackupWorker{
		Engine:   engine,
		Interval: interval,
		Grace:    grace,
		Logger:   logger,
	}
}

func (bw *BackupWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	bw.Logger.Println("Backup processor started")

	ticker := time.NewTicker(bw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.Logger.Println("Backup processor shutting down...")
			return
		case <-ticker.C:
			bw.runSweep()
		}
	}
}

func (bw *BackupWorker) runSweep() {
	result, err := bw.Engine.ProcessUnhandledEvents(bw.Grace)
	if err != nil {
		bw.Logger.Printf("Catch-up sweep failed: %v", err)
		return
	}
	if result.Processed > 0 {
		bw.Logger.Printf("Catch-up sweep: processed %d, succeeded %d, failed %d",
			result.Processed, result.Succeeded, result.Failed)
	}
}
