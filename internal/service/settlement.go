package service

import (
	"context"
	"fmt"
	"time"

	"runstake/internal/contest"
	"runstake/internal/logger"
	"runstake/internal/storage"
)

// ActivityFetcher provides a contest window of activities for one athlete
type ActivityFetcher interface {
	GetActivitiesBetween(ctx context.Context, athleteID int64, start, end time.Time) ([]contest.Activity, error)
}

// Ledger receives the final settlement decision
type Ledger interface {
	SubmitSettlement(ctx context.Context, contestID int64, winnerIDs []int64) (string, error)
}

// SettlementService settles ended contests: it evaluates every linked
// participant over the full contest window, submits the winners to the
// ledger, and marks the contest settled.
type SettlementService struct {
	fetcher             ActivityFetcher
	ledger              Ledger
	notificationService *NotificationService
}

// NewSettlementService creates a settlement service. ledger may be nil when
// no relay is configured; settlement then records the verdict locally only.
func NewSettlementService(fetcher ActivityFetcher, ledger Ledger) *SettlementService {
	return &SettlementService{fetcher: fetcher, ledger: ledger}
}

// SetNotificationService sets the notification service for settlement broadcasts
func (s *SettlementService) SetNotificationService(ns *NotificationService) {
	s.notificationService = ns
}

// SettleContest evaluates all participants of an ended contest and settles it.
// Returns the winner athlete ids. A credential-provider failure aborts the
// whole settlement so the next worker tick can retry it.
func (s *SettlementService) SettleContest(ctx context.Context, c *storage.Contest, now time.Time) ([]int64, error) {
	if c.Status == storage.ContestStatusSettled {
		return nil, fmt.Errorf("contest %d is already settled", c.ID)
	}

	winners := []int64{}
	for _, p := range c.Participants {
		if !p.StravaConnected {
			logger.Debug(p.AthleteID, "settlement_skipped_unlinked", fmt.Sprintf("contest_id=%d", c.ID))
			continue
		}

		activities, err := s.fetcher.GetActivitiesBetween(ctx, p.AthleteID, c.StartDate, c.EndDate)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch activities for athlete %d: %w", p.AthleteID, err)
		}

		result := contest.Evaluate(c, activities, now)
		logger.Debug(p.AthleteID, "settlement_evaluated", fmt.Sprintf("contest_id=%d completed=%t total_km=%.1f days=%d",
			c.ID, result.Completed, result.TotalDistanceKm, result.CompletedDaysCount))
		if result.Completed {
			winners = append(winners, p.AthleteID)
		}
	}

	var txRef string
	if s.ledger != nil {
		var err error
		txRef, err = s.ledger.SubmitSettlement(ctx, c.ID, winners)
		if err != nil {
			return nil, fmt.Errorf("failed to submit settlement for contest %d: %w", c.ID, err)
		}
	}

	if err := storage.UpdateContestStatus(c.ID, storage.ContestStatusSettled); err != nil {
		return nil, err
	}

	logger.Debug(0, "contest_settled", fmt.Sprintf("contest_id=%d winners=%d tx_ref=%s", c.ID, len(winners), txRef))

	if s.notificationService != nil {
		s.notificationService.PublishSettlement(c, winners, txRef)
	}
	return winners, nil
}
