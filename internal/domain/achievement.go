package domain

import "strings"

// EventType is the kind of achievement event a client reports.
type EventType string

const (
	EventLogin EventType = "LOGIN"
	EventXP    EventType = "XP"
	EventGems  EventType = "GEMS"
)

// Valid reports whether the event type is one the tracker accepts.
func (t EventType) Valid() bool {
	switch t {
	case EventLogin, EventXP, EventGems:
		return true
	}
	return false
}

// Counter sort keys in the achievements table.
const (
	CounterXP         = "COUNTER#XP"
	CounterGems       = "COUNTER#GEMS"
	CounterStreak     = "COUNTER#STREAK"
	CounterConsecDays = "COUNTER#CONSEC_DAYS"

	NotifyStreakRemind = "NOTIF#STREAK_REMIND"
	NotifyStreakBreak  = "NOTIF#STREAK_BREAK"

	// DummyUserPrefix marks synthesized leaderboard entries.
	DummyUserPrefix = "DUMMY_"
)

// CounterKey returns the counter sort key for an additive event type.
func CounterKey(t EventType) string {
	return "COUNTER#" + string(t)
}

// EventSortKey builds the append-only log key for an event.
func EventSortKey(t EventType, ts string) string {
	return "EVENT#" + string(t) + "#" + ts
}

// AchievementCounter is a live aggregate kept per user and counter kind.
type AchievementCounter struct {
	UserID     string `json:"userId"`
	SortKey    string `json:"sortKey"`
	Value      int    `json:"value"`
	LastUpdate string `json:"lastUpdate,omitempty"`
}

// AchievementEvent is one immutable entry of the per-user event log.
type AchievementEvent struct {
	UserID  string    `json:"userId"`
	SortKey string    `json:"sortKey"`
	Type    EventType `json:"type"`
	TS      string    `json:"ts"`
	Delta   int       `json:"delta,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// NotificationMarker schedules a streak notification for an external dispatcher.
type NotificationMarker struct {
	UserID       string `json:"userId"`
	SortKey      string `json:"sortKey"`
	NextNotifyAt string `json:"nextNotifyAt"`
	Sent         bool   `json:"sent"`
}

// IsDummyUser reports whether a user id belongs to a synthesized leaderboard entry.
func IsDummyUser(userID string) bool {
	return strings.HasPrefix(userID, DummyUserPrefix)
}
