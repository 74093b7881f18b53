package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

// Store keeps every table in process memory. One mutex serialises all writes so
// multi-item writes are all-or-nothing, like the production store's transactions.
type Store struct {
	mu           sync.RWMutex
	quizzes      map[string]domain.Quiz
	users        map[string]domain.User
	submissions  map[string]domain.Submission
	certificates map[string]domain.Certificate
	groups       map[string]domain.Group
	plans        map[string]domain.CertificationPlan
	counters     map[achievementKey]domain.AchievementCounter
	events       map[achievementKey]domain.AchievementEvent
	markers      map[achievementKey]domain.NotificationMarker
}

type achievementKey struct {
	userID  string
	sortKey string
}

func NewStore() *Store {
	return &Store{
		quizzes:      make(map[string]domain.Quiz),
		users:        make(map[string]domain.User),
		submissions:  make(map[string]domain.Submission),
		certificates: make(map[string]domain.Certificate),
		groups:       make(map[string]domain.Group),
		plans:        make(map[string]domain.CertificationPlan),
		counters:     make(map[achievementKey]domain.AchievementCounter),
		events:       make(map[achievementKey]domain.AchievementEvent),
		markers:      make(map[achievementKey]domain.NotificationMarker),
	}
}

var (
	_ app.QuizRepository        = (*Store)(nil)
	_ app.UserRepository        = (*Store)(nil)
	_ app.SubmissionRepository  = (*Store)(nil)
	_ app.CertificateRepository = (*Store)(nil)
	_ app.GroupRepository       = (*Store)(nil)
	_ app.PlanRepository        = (*Store)(nil)
	_ app.AchievementRepository = (*Store)(nil)
	_ app.QuizSource            = (*Store)(nil)
)

// Seeding helpers for tests and local runs.

func (s *Store) PutQuiz(q domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[q.ID] = q
}

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) PutGroup(g domain.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
}

func (s *Store) PutSubmission(sub domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
}

// Events returns a user's logged events ordered by sort key.
func (s *Store) Events(userID string) []domain.AchievementEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AchievementEvent
	for k, e := range s.events {
		if k.userID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortKey < out[j].SortKey })
	return out
}

// Notification returns a scheduled marker.
func (s *Store) Notification(userID, sortKey string) (domain.NotificationMarker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markers[achievementKey{userID, sortKey}]
	return m, ok
}

// Quizzes

// LoadQuiz lets the store back a quiz cache.
func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.NotFound("Quiz not found")
	}
	return q, nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.LoadQuiz(ctx, quizID)
}

// ListQuizzes returns every quiz ordered by id.
func (s *Store) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Users

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.NotFound("User not found")
	}
	return cloneUser(u), nil
}

func (s *Store) BatchGetUsers(_ context.Context, userIDs []string) (map[string]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return domain.ErrConditionFailed
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) SetFreeQuizCredits(_ context.Context, userID string, expected *int, balance int, unlockQuizID string, now int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.NotFound("User not found")
	}
	switch {
	case expected == nil && u.FreeQuizCredits != nil:
		return domain.User{}, domain.ErrConditionFailed
	case expected != nil && (u.FreeQuizCredits == nil || *u.FreeQuizCredits != *expected):
		return domain.User{}, domain.ErrConditionFailed
	}
	u = cloneUser(u)
	u.FreeQuizCredits = &balance
	if u.UnlockedQuizIDs == nil {
		u.UnlockedQuizIDs = []string{}
	}
	if unlockQuizID != "" {
		u.UnlockedQuizIDs = append(u.UnlockedQuizIDs, unlockQuizID)
	}
	u.UpdatedAt = now
	s.users[userID] = u
	return cloneUser(u), nil
}

func (s *Store) ClaimFreePlan(_ context.Context, userID string, credits int, now int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.NotFound("User not found")
	}
	if u.HasClaimedFreePlan {
		return domain.User{}, domain.ErrConditionFailed
	}
	u = cloneUser(u)
	balance := u.FreeQuizBalance() + credits
	u.FreeQuizCredits = &balance
	u.HasClaimedFreePlan = true
	u.UpdatedAt = now
	s.users[userID] = u
	return cloneUser(u), nil
}

func (s *Store) SetStripeCustomerID(_ context.Context, userID, customerID string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.NotFound("User not found")
	}
	u.StripeCustomerID = customerID
	u.UpdatedAt = now
	s.users[userID] = u
	return nil
}

func (s *Store) GrantCredits(_ context.Context, grant app.CreditGrant) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[grant.UserID]
	if !ok {
		return domain.User{}, domain.NotFound("User not found")
	}
	if grant.TransactionID != "" && u.HasTransaction(grant.TransactionID) {
		return domain.User{}, domain.ErrConditionFailed
	}
	u = cloneUser(u)
	u.CertificateCredits += grant.CertificateCredits
	if grant.FreeQuizCredits != 0 {
		balance := u.FreeQuizBalance() + grant.FreeQuizCredits
		u.FreeQuizCredits = &balance
	}
	if grant.TransactionID != "" {
		u.TransactionIDs = append(u.TransactionIDs, grant.TransactionID)
	}
	u.UpdatedAt = grant.Now
	s.users[grant.UserID] = u
	return cloneUser(u), nil
}

// Submissions

func (s *Store) RecordSubmission(_ context.Context, submission domain.Submission, cert *domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[submission.ID]; ok {
		return domain.ErrConditionFailed
	}
	if cert != nil {
		if _, ok := s.certificates[cert.ID]; ok {
			return domain.ErrConditionFailed
		}
		if _, ok := s.users[cert.UserID]; !ok {
			return domain.ErrConditionFailed
		}
	}

	s.submissions[submission.ID] = submission
	if cert != nil {
		s.certificates[cert.ID] = *cert
		u := cloneUser(s.users[cert.UserID])
		u.CertificateCredits++
		s.users[cert.UserID] = u
	}
	return nil
}

func (s *Store) GetSubmission(_ context.Context, submissionID string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return domain.Submission{}, domain.NotFound("Submission not found")
	}
	return sub, nil
}

func (s *Store) ListSubmissionsByUser(_ context.Context, userID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// Certificates

func (s *Store) CreateCertificate(_ context.Context, cert domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certificates[cert.ID]; ok {
		return domain.ErrConditionFailed
	}
	s.certificates[cert.ID] = cert
	return nil
}

func (s *Store) GetCertificate(_ context.Context, certificateID string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certificates[certificateID]
	if !ok {
		return domain.Certificate{}, domain.NotFound("Certificate not found")
	}
	return c, nil
}

func (s *Store) ListCertificatesByUser(_ context.Context, userID string) ([]domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Certificate
	for _, c := range s.certificates {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate < out[j].IssueDate })
	return out, nil
}

// UpdateCertificate applies the patch through the record's JSON form, the same
// attribute names the production store uses.
func (s *Store) UpdateCertificate(_ context.Context, certificateID string, patch domain.Patch) (domain.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certificates[certificateID]
	if !ok {
		return domain.Certificate{}, domain.NotFound("Certificate not found")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return domain.Certificate{}, err
	}
	attrs := map[string]any{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return domain.Certificate{}, err
	}
	for k, v := range patch {
		attrs[k] = v
	}
	raw, err = json.Marshal(attrs)
	if err != nil {
		return domain.Certificate{}, err
	}
	var updated domain.Certificate
	if err := json.Unmarshal(raw, &updated); err != nil {
		return domain.Certificate{}, domain.Validation("Invalid update data: %v", err)
	}
	s.certificates[certificateID] = updated
	return updated, nil
}

// Groups

func (s *Store) GetGroup(_ context.Context, groupID string) (domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return domain.Group{}, domain.NotFound("Group not found")
	}
	g.QuizIDs = append([]string(nil), g.QuizIDs...)
	g.CertificateTakenBy = append([]string(nil), g.CertificateTakenBy...)
	return g, nil
}

func (s *Store) AddCertificateTaker(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return domain.NotFound("Group not found")
	}
	g.CertificateTakenBy = append(append([]string(nil), g.CertificateTakenBy...), userID)
	s.groups[groupID] = g
	return nil
}

// Plans

func (s *Store) GetPlan(_ context.Context, planID string) (domain.CertificationPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[planID]
	if !ok {
		return domain.CertificationPlan{}, domain.NotFound("Certification plan not found")
	}
	return p, nil
}

func (s *Store) ListPlans(_ context.Context, status string) ([]domain.CertificationPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CertificationPlan, 0, len(s.plans))
	for _, p := range s.plans {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutPlans(_ context.Context, plans []domain.CertificationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range plans {
		s.plans[p.ID] = p
	}
	return nil
}

func (s *Store) UpdatePlanStatus(_ context.Context, planID, status string, now int64) (domain.CertificationPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return domain.CertificationPlan{}, domain.NotFound("Certification plan not found")
	}
	p.Status = status
	p.UpdatedAt = now
	s.plans[planID] = p
	return p, nil
}

// Achievements

func (s *Store) AppendEvent(_ context.Context, event domain.AchievementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := achievementKey{event.UserID, event.SortKey}
	if _, ok := s.events[key]; ok {
		return domain.ErrConditionFailed
	}
	s.events[key] = event
	return nil
}

func (s *Store) GetCounter(_ context.Context, userID, sortKey string) (domain.AchievementCounter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[achievementKey{userID, sortKey}]
	if !ok {
		return domain.AchievementCounter{UserID: userID, SortKey: sortKey}, false, nil
	}
	return c, true, nil
}

func (s *Store) SetCounter(_ context.Context, counter domain.AchievementCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[achievementKey{counter.UserID, counter.SortKey}] = counter
	return nil
}

func (s *Store) AddToCounter(_ context.Context, userID, sortKey string, delta int, ts string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := achievementKey{userID, sortKey}
	c := s.counters[key]
	c.UserID, c.SortKey = userID, sortKey
	c.Value += delta
	c.LastUpdate = ts
	s.counters[key] = c
	return c.Value, nil
}

func (s *Store) PutNotification(_ context.Context, marker domain.NotificationMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[achievementKey{marker.UserID, marker.SortKey}] = marker
	return nil
}

func (s *Store) ListCounters(_ context.Context, sortKey string) ([]domain.AchievementCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AchievementCounter
	for k, c := range s.counters {
		if k.sortKey == sortKey {
			out = append(out, c)
		}
	}
	return out, nil
}

func cloneUser(u domain.User) domain.User {
	if u.FreeQuizCredits != nil {
		v := *u.FreeQuizCredits
		u.FreeQuizCredits = &v
	}
	if u.UnlockedQuizIDs != nil {
		u.UnlockedQuizIDs = append([]string{}, u.UnlockedQuizIDs...)
	}
	if u.TransactionIDs != nil {
		u.TransactionIDs = append([]string{}, u.TransactionIDs...)
	}
	return u
}
