package worker

import (
	"context"
	"log"
	"time"

	"riseloop/automation"
)

// DripWorker runs the drip sweep on an interval for deployments without an
// external cron. It does the same work as GET /email-drips.
type DripWorker struct {
	Drip     *automation.DripEngine
	Interval time.Duration
	Logger   *log.Logger
}

func NewDripWorker(drip *automation.DripEngine, interval time.Duration, logger *log.Logger) *DripWorker {
	return &DripWorker{
		Drip:     drip,
		Interval: interval,
		Logger:   logger,
	}
}

func (dw *DripWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	dw.Logger.Println("Drip worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Drip worker shutting down...")
			return
		case <-ticker.C:
			dw.runSweep()
		}
	}
}

func (dw *DripWorker) runSweep() {
	result, err := dw.Drip.Sweep(time.Now())
	if err != nil {
		dw.Logger.Printf("Drip sweep failed: %v", err)
		return
	}
	if result.Processed > 0 {
		dw.Logger.Printf("Drip sweep: processed %d, sent %d, %d errors",
			result.Processed, result.Sent, len(result.Errors))
	}
	for _, msg := range result.Errors {
		dw.Logger.Printf("Drip sweep error: %s", msg)
	}
}
