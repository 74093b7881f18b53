package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/domain"
)

const (
	// TopRankersSize is the fixed length of the top rankers board.
	TopRankersSize = 10
	// LeaderboardPageSize is the number of entries per leaderboard page.
	LeaderboardPageSize = 10

	dummyMinXP = 50
	dummyMaxXP = 500

	unknownUser = "Unknown User"
)

// dummyNames fill the top rankers board while there are fewer real users than slots.
var dummyNames = []string{
	"Alex Johnson", "Sarah Chen", "Michael Brown", "Emily Davis", "David Wilson",
	"Jessica Martinez", "Christopher Lee", "Amanda Taylor", "James Anderson", "Lisa Garcia",
	"Robert Smith", "Maria Rodriguez", "Daniel White", "Jennifer Lopez", "William Thompson",
	"Ashley Moore", "Matthew Harris", "Nicole Jackson", "Ryan Clark", "Stephanie Lewis",
	"Kevin Walker", "Michelle Hall", "Jason Young", "Rachel King", "Brandon Wright",
}

// RankEntry is one row of a leaderboard. UserID and Email are null for synthesized rows.
type RankEntry struct {
	Rank       int     `json:"rank"`
	UserID     *string `json:"userId"`
	Name       string  `json:"name"`
	Email      *string `json:"email"`
	XP         int     `json:"xp"`
	LastUpdate *string `json:"lastUpdate"`
}

// Pagination describes a leaderboard page.
type Pagination struct {
	CurrentPage     int  `json:"currentPage"`
	TotalPages      int  `json:"totalPages"`
	TotalUsers      int  `json:"totalUsers"`
	Limit           int  `json:"limit"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

type LeaderboardPage struct {
	Leaderboard []RankEntry `json:"leaderboard"`
	Pagination  Pagination  `json:"pagination"`
}

// LeaderboardService ranks users by their XP counters.
type LeaderboardService struct {
	achievements AchievementRepository
	users        UserRepository
	log          logrus.FieldLogger
	now          func() time.Time
}

func NewLeaderboardService(achievements AchievementRepository, users UserRepository, log logrus.FieldLogger) *LeaderboardService {
	return &LeaderboardService{achievements: achievements, users: users, log: log, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (s *LeaderboardService) WithClock(now func() time.Time) *LeaderboardService {
	s.now = now
	return s
}

type xpRow struct {
	userID     string
	name       string
	xp         int
	lastUpdate string
}

// TopRankers returns exactly TopRankersSize rows: the highest real XP counters,
// padded with this week's synthesized entries ranked below them.
func (s *LeaderboardService) TopRankers(ctx context.Context) ([]RankEntry, error) {
	rows, err := s.realRows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) > TopRankersSize {
		rows = rows[:TopRankersSize]
	}

	if missing := TopRankersSize - len(rows); missing > 0 {
		ceiling := -1
		if len(rows) > 0 {
			// XP never goes negative: below a 0 XP user the fillers tie at 0 and
			// the stable sort keeps the real user ahead of them.
			ceiling = max(0, rows[len(rows)-1].xp-1)
		}
		rows = append(rows, dummyRows(s.now(), missing, ceiling)...)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].xp > rows[j].xp })
	}
	return s.rank(ctx, rows, 0), nil
}

// Leaderboard returns one page of real users ordered by XP.
func (s *LeaderboardService) Leaderboard(ctx context.Context, page int) (LeaderboardPage, error) {
	if page < 1 {
		return LeaderboardPage{}, domain.Validation("Invalid page number. Must be a positive integer.")
	}
	rows, err := s.realRows(ctx)
	if err != nil {
		return LeaderboardPage{}, err
	}

	total := len(rows)
	totalPages := int(math.Ceil(float64(total) / LeaderboardPageSize))
	offset := (page - 1) * LeaderboardPageSize
	var slice []xpRow
	if offset < total {
		slice = rows[offset:min(offset+LeaderboardPageSize, total)]
	}
	return LeaderboardPage{
		Leaderboard: s.rank(ctx, slice, offset),
		Pagination: Pagination{
			CurrentPage:     page,
			TotalPages:      totalPages,
			TotalUsers:      total,
			Limit:           LeaderboardPageSize,
			HasNextPage:     page < totalPages,
			HasPreviousPage: page > 1,
		},
	}, nil
}

func (s *LeaderboardService) realRows(ctx context.Context) ([]xpRow, error) {
	counters, err := s.achievements.ListCounters(ctx, domain.CounterXP)
	if err != nil {
		return nil, storeError(err, "Failed to fetch leaderboard")
	}
	rows := make([]xpRow, 0, len(counters))
	for _, c := range counters {
		if domain.IsDummyUser(c.UserID) {
			continue
		}
		rows = append(rows, xpRow{userID: c.UserID, xp: c.Value, lastUpdate: c.LastUpdate})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].xp != rows[j].xp {
			return rows[i].xp > rows[j].xp
		}
		return rows[i].userID < rows[j].userID
	})
	return rows, nil
}

// rank joins rows with user names; lookup failures degrade to "Unknown User".
func (s *LeaderboardService) rank(ctx context.Context, rows []xpRow, offset int) []RankEntry {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if !domain.IsDummyUser(r.userID) {
			ids = append(ids, r.userID)
		}
	}
	users := map[string]domain.User{}
	if len(ids) > 0 {
		found, err := s.users.BatchGetUsers(ctx, ids)
		if err != nil {
			s.log.WithError(err).Warn("leaderboard user lookup failed")
		} else {
			users = found
		}
	}

	entries := make([]RankEntry, 0, len(rows))
	for i, r := range rows {
		entry := RankEntry{Rank: offset + i + 1, XP: r.xp, Name: r.name}
		if r.lastUpdate != "" {
			lu := r.lastUpdate
			entry.LastUpdate = &lu
		}
		if !domain.IsDummyUser(r.userID) {
			id := r.userID
			entry.UserID = &id
			if u, ok := users[r.userID]; ok {
				entry.Name = u.Name
				if u.Email != "" {
					email := u.Email
					entry.Email = &email
				}
			}
		}
		if entry.Name == "" {
			entry.Name = unknownUser
		}
		entries = append(entries, entry)
	}
	return entries
}

// dummyRows synthesizes count entries for the week containing now. Names and XP
// are derived from the week key so every request in a week sees the same board.
// A non-negative ceiling keeps every synthesized XP at or below it.
func dummyRows(now time.Time, count, ceiling int) []xpRow {
	key := weekKey(now)
	next := mulberry32(seedFromKey(key))
	names := shuffledNames(dummyNames, next)
	if count > len(names) {
		count = len(names)
	}

	lo, hi := dummyMinXP, dummyMaxXP
	if ceiling >= 0 {
		hi = min(dummyMaxXP, ceiling)
		if lo > hi {
			lo = hi / 2
		}
	}

	ts := now.UTC().Format(isoMillis)
	rows := make([]xpRow, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, xpRow{
			userID:     fmt.Sprintf("%s%03d", domain.DummyUserPrefix, i+1),
			name:       names[i],
			xp:         lo + int(math.Floor(next()*float64(hi-lo+1))),
			lastUpdate: ts,
		})
	}
	return rows
}

// weekKey names the UTC week of t as "YYYY-Www", counting weeks from January 1st.
func weekKey(t time.Time) string {
	t = t.UTC()
	week := (t.YearDay() + 6) / 7
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}

func seedFromKey(key string) uint32 {
	var seed int32
	for _, c := range key {
		seed = (seed << 5) - seed + int32(c)
	}
	return uint32(seed)
}

// mulberry32 returns a generator of floats in [0, 1).
func mulberry32(seed uint32) func() float64 {
	return func() float64 {
		seed += 0x6d2b79f5
		t := seed
		t = (t ^ (t >> 15)) * (t | 1)
		t ^= t + (t^(t>>7))*(t|61)
		return float64(t^(t>>14)) / 4294967296
	}
}

func shuffledNames(names []string, next func() float64) []string {
	out := append([]string(nil), names...)
	for i := len(out) - 1; i > 0; i-- {
		j := int(math.Floor(next() * float64(i+1)))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
