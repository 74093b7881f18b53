package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

func TestProcessLoginBuildsStreak(t *testing.T) {
	e := newEnv(t)
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := app.NewAchievementService(e.store, e.log).WithClock(func() time.Time { return now })
	ctx := context.Background()
	login := app.AchievementEventRequest{UserID: "u1", EventType: domain.EventLogin}

	for day := 1; day <= 3; day++ {
		res, err := svc.ProcessEvent(ctx, login)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		if res.ConsecutiveDays != day {
			t.Fatalf("day %d: consecutive days = %d", day, res.ConsecutiveDays)
		}
		if res.StreakAwarded != (day == 3) {
			t.Fatalf("day %d: streak awarded = %v", day, res.StreakAwarded)
		}
		if day < 3 {
			now = now.Add(24 * time.Hour)
		}
	}

	// A second login on the same day keeps the run and awards nothing.
	now = now.Add(2 * time.Hour)
	res, err := svc.ProcessEvent(ctx, login)
	if err != nil {
		t.Fatalf("same day login: %v", err)
	}
	if res.ConsecutiveDays != 3 || res.StreakAwarded {
		t.Fatalf("unexpected same-day result %+v", res)
	}

	streak, ok, _ := e.store.GetCounter(ctx, "u1", domain.CounterStreak)
	if !ok || streak.Value != 1 {
		t.Fatalf("streak counter = %+v (found %v)", streak, ok)
	}
	xp, ok, _ := e.store.GetCounter(ctx, "u1", domain.CounterXP)
	if !ok || xp.Value != app.StreakXP {
		t.Fatalf("xp counter = %+v (found %v)", xp, ok)
	}

	var logins, xpEvents int
	for _, ev := range e.store.Events("u1") {
		switch ev.Type {
		case domain.EventLogin:
			logins++
		case domain.EventXP:
			xpEvents++
			if ev.Delta != app.StreakXP {
				t.Fatalf("streak xp event delta = %d", ev.Delta)
			}
		}
	}
	if logins != 4 || xpEvents != 1 {
		t.Fatalf("events: %d logins, %d xp", logins, xpEvents)
	}

	remind, ok := e.store.Notification("u1", domain.NotifyStreakRemind)
	if !ok {
		t.Fatalf("reminder not scheduled")
	}
	want := now.AddDate(0, 0, app.ReminderDelayDays).Add(-app.NotifyLeadTime).Format("2006-01-02T15:04:05.000Z07:00")
	if remind.NextNotifyAt != want {
		t.Fatalf("reminder at %s, want %s", remind.NextNotifyAt, want)
	}
	if _, ok := e.store.Notification("u1", domain.NotifyStreakBreak); !ok {
		t.Fatalf("break notification not scheduled")
	}
}

func TestProcessLoginAfterGapResets(t *testing.T) {
	e := newEnv(t)
	now := time.Date(2024, time.March, 1, 23, 0, 0, 0, time.UTC)
	svc := app.NewAchievementService(e.store, e.log).WithClock(func() time.Time { return now })
	ctx := context.Background()
	login := app.AchievementEventRequest{UserID: "u1", EventType: domain.EventLogin}

	if _, err := svc.ProcessEvent(ctx, login); err != nil {
		t.Fatalf("first login: %v", err)
	}
	// Calendar days count, not elapsed hours.
	now = now.Add(2 * time.Hour)
	res, err := svc.ProcessEvent(ctx, login)
	if err != nil {
		t.Fatalf("next day login: %v", err)
	}
	if res.ConsecutiveDays != 2 {
		t.Fatalf("consecutive days = %d, want 2", res.ConsecutiveDays)
	}

	now = now.AddDate(0, 0, 3)
	res, err = svc.ProcessEvent(ctx, login)
	if err != nil {
		t.Fatalf("login after gap: %v", err)
	}
	if res.ConsecutiveDays != 1 {
		t.Fatalf("consecutive days = %d after gap, want 1", res.ConsecutiveDays)
	}
}

func TestProcessAdditiveEvents(t *testing.T) {
	e := newEnv(t)
	now := fixedNow
	svc := app.NewAchievementService(e.store, e.log).WithClock(func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	})
	ctx := context.Background()

	for _, delta := range []int{5, 7} {
		res, err := svc.ProcessEvent(ctx, app.AchievementEventRequest{UserID: "u1", EventType: domain.EventGems, Delta: delta})
		if err != nil {
			t.Fatalf("gems: %v", err)
		}
		if res.Counter == nil {
			t.Fatalf("expected counter value")
		}
	}
	gems, _, _ := e.store.GetCounter(ctx, "u1", domain.CounterGems)
	if gems.Value != 12 {
		t.Fatalf("gems = %d, want 12", gems.Value)
	}

	if _, err := svc.ProcessEvent(ctx, app.AchievementEventRequest{UserID: "u1", EventType: domain.EventXP, Delta: 0}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero delta, got %v", err)
	}
	if _, err := svc.ProcessEvent(ctx, app.AchievementEventRequest{UserID: "u1", EventType: "COINS", Delta: 1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestDuplicateEventIsConflict(t *testing.T) {
	e := newEnv(t)
	svc := app.NewAchievementService(e.store, e.log).WithClock(clock)
	ctx := context.Background()
	req := app.AchievementEventRequest{UserID: "u1", EventType: domain.EventXP, Delta: 3}

	if _, err := svc.ProcessEvent(ctx, req); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if _, err := svc.ProcessEvent(ctx, req); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for same timestamp, got %v", err)
	}
	xp, _, _ := e.store.GetCounter(ctx, "u1", domain.CounterXP)
	if xp.Value != 3 {
		t.Fatalf("xp = %d, counter must not move on a rejected event", xp.Value)
	}
}

func TestAwardXP(t *testing.T) {
	e := newEnv(t)
	svc := app.NewAchievementService(e.store, e.log).WithClock(clock)

	total, err := svc.AwardXP(context.Background(), app.AwardXPRequest{UserID: "u1", XPAmount: 40, Reason: "Completed quiz"})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if total != 40 {
		t.Fatalf("total = %d", total)
	}
	events := e.store.Events("u1")
	if len(events) != 1 || events[0].Reason != "Completed quiz" || events[0].Delta != 40 {
		t.Fatalf("unexpected events %+v", events)
	}
	if _, err := svc.AwardXP(context.Background(), app.AwardXPRequest{UserID: "u1", XPAmount: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
