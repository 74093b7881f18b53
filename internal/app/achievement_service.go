package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/domain"
)

const (
	// BuildUpDays is the run of consecutive login days that earns a streak point.
	BuildUpDays = 3
	// ReminderDelayDays is the inactivity before a streak reminder is due.
	ReminderDelayDays = 3
	// BreakAfterDays is the time after the reminder at which the streak breaks.
	BreakAfterDays = 1
	// NotifyLeadTime moves both notifications earlier.
	NotifyLeadTime = 3 * time.Hour

	// StreakXP is awarded with each streak point.
	StreakXP       = 10
	streakXPReason = "Streak point earned"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// AchievementEventRequest is an event reported by a client.
type AchievementEventRequest struct {
	UserID    string           `json:"userId"`
	EventType domain.EventType `json:"eventType"`
	Delta     int              `json:"delta"`
	Reason    string           `json:"reason"`
}

// AchievementResult echoes the logged event and the counters it moved.
type AchievementResult struct {
	Event           domain.AchievementEvent `json:"event"`
	ConsecutiveDays int                     `json:"consecutiveDays,omitempty"`
	StreakAwarded   bool                    `json:"streakAwarded,omitempty"`
	Counter         *int                    `json:"counter,omitempty"`
}

// AwardXPRequest grants experience points outside the client event flow.
type AwardXPRequest struct {
	UserID   string `json:"userId"`
	XPAmount int    `json:"xpAmount"`
	Reason   string `json:"reason"`
}

// AchievementService keeps the event log and the gamification counters.
type AchievementService struct {
	achievements AchievementRepository
	log          logrus.FieldLogger
	now          func() time.Time
}

func NewAchievementService(achievements AchievementRepository, log logrus.FieldLogger) *AchievementService {
	return &AchievementService{achievements: achievements, log: log, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (s *AchievementService) WithClock(now func() time.Time) *AchievementService {
	s.now = now
	return s
}

// ProcessEvent logs the event and then updates the counters it affects.
func (s *AchievementService) ProcessEvent(ctx context.Context, req AchievementEventRequest) (AchievementResult, error) {
	if req.UserID == "" || !req.EventType.Valid() {
		return AchievementResult{}, domain.Validation("Missing or invalid fields: userId, eventType must be LOGIN | GEMS | XP")
	}
	if req.EventType != domain.EventLogin && req.Delta <= 0 {
		return AchievementResult{}, domain.Validation("For GEMS/XP events, delta must be a positive number")
	}

	now := s.now().UTC()
	ts := now.Format(isoMillis)
	event := domain.AchievementEvent{
		UserID:  req.UserID,
		SortKey: domain.EventSortKey(req.EventType, ts),
		Type:    req.EventType,
		TS:      ts,
		Reason:  req.Reason,
	}
	if req.EventType != domain.EventLogin {
		event.Delta = req.Delta
	}
	if err := s.appendEvent(ctx, event); err != nil {
		return AchievementResult{}, err
	}

	result := AchievementResult{Event: event}
	if req.EventType == domain.EventLogin {
		days, awarded, err := s.processLogin(ctx, req.UserID, now)
		if err != nil {
			return AchievementResult{}, err
		}
		result.ConsecutiveDays = days
		result.StreakAwarded = awarded
		return result, nil
	}

	value, err := s.achievements.AddToCounter(ctx, req.UserID, domain.CounterKey(req.EventType), req.Delta, ts)
	if err != nil {
		return AchievementResult{}, storeError(err, "Failed to update %s counter", req.EventType)
	}
	result.Counter = &value
	return result, nil
}

func (s *AchievementService) processLogin(ctx context.Context, userID string, now time.Time) (int, bool, error) {
	ts := now.Format(isoMillis)
	consec, found, err := s.achievements.GetCounter(ctx, userID, domain.CounterConsecDays)
	if err != nil {
		return 0, false, storeError(err, "Failed to load login counter")
	}

	daysSince := -1
	if found && consec.LastUpdate != "" {
		if last, err := time.Parse(time.RFC3339Nano, consec.LastUpdate); err == nil {
			daysSince = int(startOfDay(now).Sub(startOfDay(last.UTC())).Hours() / 24)
		}
	}

	days := 1
	switch daysSince {
	case 0:
		days = consec.Value
	case 1:
		days = consec.Value + 1
	}
	if err := s.achievements.SetCounter(ctx, domain.AchievementCounter{
		UserID:     userID,
		SortKey:    domain.CounterConsecDays,
		Value:      days,
		LastUpdate: ts,
	}); err != nil {
		return 0, false, storeError(err, "Failed to update login counter")
	}

	awarded := daysSince == 1 && days%BuildUpDays == 0
	if awarded {
		if _, err := s.achievements.AddToCounter(ctx, userID, domain.CounterStreak, 1, ts); err != nil {
			return 0, false, storeError(err, "Failed to update streak counter")
		}
		if err := s.appendEvent(ctx, domain.AchievementEvent{
			UserID:  userID,
			SortKey: domain.EventSortKey(domain.EventXP, ts),
			Type:    domain.EventXP,
			TS:      ts,
			Delta:   StreakXP,
			Reason:  streakXPReason,
		}); err != nil {
			return 0, false, err
		}
		if _, err := s.achievements.AddToCounter(ctx, userID, domain.CounterXP, StreakXP, ts); err != nil {
			return 0, false, storeError(err, "Failed to update XP counter")
		}
		s.log.WithFields(logrus.Fields{"userId": userID, "consecutiveDays": days}).Info("streak point earned")
	}

	reminder := now.AddDate(0, 0, ReminderDelayDays).Add(-NotifyLeadTime)
	breakAt := now.AddDate(0, 0, ReminderDelayDays+BreakAfterDays).Add(-NotifyLeadTime)
	for _, m := range []domain.NotificationMarker{
		{UserID: userID, SortKey: domain.NotifyStreakRemind, NextNotifyAt: reminder.Format(isoMillis)},
		{UserID: userID, SortKey: domain.NotifyStreakBreak, NextNotifyAt: breakAt.Format(isoMillis)},
	} {
		if err := s.achievements.PutNotification(ctx, m); err != nil {
			return 0, false, storeError(err, "Failed to schedule streak notification")
		}
	}
	return days, awarded, nil
}

// AwardXP logs an XP event and adds it to the user's XP counter.
func (s *AchievementService) AwardXP(ctx context.Context, req AwardXPRequest) (int, error) {
	if req.UserID == "" || req.XPAmount <= 0 {
		return 0, domain.Validation("Invalid parameters: userId and positive xpAmount are required")
	}
	ts := s.now().UTC().Format(isoMillis)
	if err := s.appendEvent(ctx, domain.AchievementEvent{
		UserID:  req.UserID,
		SortKey: domain.EventSortKey(domain.EventXP, ts),
		Type:    domain.EventXP,
		TS:      ts,
		Delta:   req.XPAmount,
		Reason:  req.Reason,
	}); err != nil {
		return 0, err
	}
	value, err := s.achievements.AddToCounter(ctx, req.UserID, domain.CounterXP, req.XPAmount, ts)
	if err != nil {
		return 0, storeError(err, "Failed to update XP counter")
	}
	return value, nil
}

func (s *AchievementService) appendEvent(ctx context.Context, event domain.AchievementEvent) error {
	err := s.achievements.AppendEvent(ctx, event)
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.Conflict("Event %s was already recorded", event.SortKey)
	}
	return storeError(err, "Failed to record achievement event")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
