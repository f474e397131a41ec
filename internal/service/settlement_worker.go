package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"runstake/internal/logger"
	"runstake/internal/storage"
)

// SettlementWorker periodically settles contests whose window has closed
type SettlementWorker struct {
	c          *cron.Cron
	settlement *SettlementService
}

// NewSettlementWorker schedules settlement runs on the given cron spec
// (standard 5-field spec, server local time).
func NewSettlementWorker(cronSpec string, settlement *SettlementService) (*SettlementWorker, error) {
	w := &SettlementWorker{
		c:          cron.New(),
		settlement: settlement,
	}
	_, err := w.c.AddFunc(cronSpec, w.run)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Start begins the background worker
func (w *SettlementWorker) Start() {
	logger.Debug(0, "settlement_worker_started", "")
	w.c.Start()
}

// Stop stops the background worker
func (w *SettlementWorker) Stop() {
	w.c.Stop()
}

// run settles every unsettled contest whose end date has passed. Failures are
// logged and left for the next tick.
func (w *SettlementWorker) run() {
	now := time.Now()
	contests, err := storage.ListContestsEndedBefore(now)
	if err != nil {
		logger.Debug(0, "settlement_worker_query_failed", "error="+err.Error())
		return
	}
	if len(contests) == 0 {
		return
	}

	logger.Debug(0, "settlement_worker_tick", fmt.Sprintf("ended_contests=%d", len(contests)))

	ctx := context.Background()
	for _, c := range contests {
		winners, err := w.settlement.SettleContest(ctx, c, now)
		if err != nil {
			logger.Debug(0, "settlement_worker_settle_failed", fmt.Sprintf("contest_id=%d error=%s", c.ID, err.Error()))
			continue
		}
		logger.Debug(0, "settlement_worker_settled", fmt.Sprintf("contest_id=%d winners=%d", c.ID, len(winners)))
	}
}
