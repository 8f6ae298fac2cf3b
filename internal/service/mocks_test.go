package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"
)

// fakeUserRepo is an in-memory UserRepository tracking writes.
type fakeUserRepo struct {
	users map[string]*model.UserProfile

	tierWrites          int
	spotifyTokenWrites  int
	githubSyncTouches   int
	spotifySyncTouches  int
	createProfileErr    error
	createdProfiles     []string
	failUpdateSpotify   bool
	updateCustomerCalls int
}

func newFakeUserRepo(users ...*model.UserProfile) *fakeUserRepo {
	m := make(map[string]*model.UserProfile)
	for _, u := range users {
		m[u.UserID] = u
	}
	return &fakeUserRepo{users: m}
}

func (r *fakeUserRepo) CreateProfile(ctx context.Context, userID, email string) error {
	if r.createProfileErr != nil {
		return r.createProfileErr
	}
	r.createdProfiles = append(r.createdProfiles, userID)
	r.users[userID] = &model.UserProfile{UserID: userID, Email: email, SubscriptionTier: model.TierFree}
	return nil
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.UserProfile, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.UserProfile, error) {
	for _, u := range r.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	r.updateCustomerCalls++
	if u := r.users[userID]; u != nil {
		u.StripeCustomerID = &customerID
	}
	return nil
}

func (r *fakeUserRepo) SetTierLifetime(ctx context.Context, userID string) (bool, error) {
	u := r.users[userID]
	if u == nil || u.SubscriptionTier == model.TierLifetime {
		return false, nil
	}
	r.tierWrites++
	u.SubscriptionTier = model.TierLifetime
	return true, nil
}

func (r *fakeUserRepo) SetTierMonthlyUnlessLifetime(ctx context.Context, userID string) (bool, error) {
	u := r.users[userID]
	if u == nil || u.SubscriptionTier == model.TierLifetime {
		return false, nil
	}
	r.tierWrites++
	u.SubscriptionTier = model.TierMonthly
	return true, nil
}

func (r *fakeUserRepo) SetTierFree(ctx context.Context, userID string) error {
	u := r.users[userID]
	if u == nil {
		return errors.New("no such user")
	}
	r.tierWrites++
	u.SubscriptionTier = model.TierFree
	return nil
}

func (r *fakeUserRepo) ConnectGitHub(ctx context.Context, userID, username, accessToken string) error {
	u := r.users[userID]
	u.GitHubConnected = true
	u.GitHubUsername = &username
	u.GitHubAccessToken = &accessToken
	return nil
}

func (r *fakeUserRepo) DisconnectGitHub(ctx context.Context, userID string) error {
	u := r.users[userID]
	u.GitHubConnected = false
	u.GitHubUsername = nil
	u.GitHubAccessToken = nil
	return nil
}

func (r *fakeUserRepo) ConnectSpotify(ctx context.Context, userID, accessToken, refreshToken string) error {
	u := r.users[userID]
	u.SpotifyConnected = true
	u.SpotifyAccessToken = &accessToken
	u.SpotifyRefreshToken = &refreshToken
	return nil
}

func (r *fakeUserRepo) DisconnectSpotify(ctx context.Context, userID string) error {
	u := r.users[userID]
	u.SpotifyConnected = false
	u.SpotifyAccessToken = nil
	u.SpotifyRefreshToken = nil
	return nil
}

func (r *fakeUserRepo) UpdateSpotifyAccessToken(ctx context.Context, userID, accessToken string) error {
	if r.failUpdateSpotify {
		return errors.New("write failed")
	}
	r.spotifyTokenWrites++
	if u := r.users[userID]; u != nil {
		u.SpotifyAccessToken = &accessToken
	}
	return nil
}

func (r *fakeUserRepo) TouchGitHubSyncedAt(ctx context.Context, userID string) error {
	r.githubSyncTouches++
	now := time.Now()
	if u := r.users[userID]; u != nil {
		u.GitHubLastSyncedAt = &now
	}
	return nil
}

func (r *fakeUserRepo) TouchSpotifySyncedAt(ctx context.Context, userID string) error {
	r.spotifySyncTouches++
	now := time.Now()
	if u := r.users[userID]; u != nil {
		u.SpotifyLastSyncedAt = &now
	}
	return nil
}

// fakeActivityRepo is an in-memory ActivityRepository.
type fakeActivityRepo struct {
	aggregates []model.CommitAggregate
	recent     []model.RecentCommit
	sessions   []model.ListeningSession
	work       []model.WorkSession

	replaceAggregateCalls int
	replaceSessionCalls   int
	deleteCommitCalls     int
}

func (r *fakeActivityRepo) ReplaceCommitAggregates(ctx context.Context, userID string, windowStart time.Time, aggregates []model.CommitAggregate) error {
	r.replaceAggregateCalls++
	r.aggregates = append([]model.CommitAggregate(nil), aggregates...)
	return nil
}

func (r *fakeActivityRepo) ReplaceRecentCommits(ctx context.Context, userID string, commits []model.RecentCommit) error {
	r.recent = append([]model.RecentCommit(nil), commits...)
	return nil
}

func (r *fakeActivityRepo) ReplaceListeningSessions(ctx context.Context, userID string, windowStart time.Time, sessions []model.ListeningSession) error {
	r.replaceSessionCalls++
	r.sessions = append([]model.ListeningSession(nil), sessions...)
	return nil
}

func (r *fakeActivityRepo) DeleteCommitData(ctx context.Context, userID string) error {
	r.deleteCommitCalls++
	r.aggregates = nil
	r.recent = nil
	return nil
}

func (r *fakeActivityRepo) GetRecentCommits(ctx context.Context, userID string, limit int) ([]model.RecentCommit, error) {
	if len(r.recent) > limit {
		return r.recent[:limit], nil
	}
	return r.recent, nil
}

func (r *fakeActivityRepo) CountCommitAggregates(ctx context.Context, userID string) (int, error) {
	return len(r.aggregates), nil
}

func (r *fakeActivityRepo) InsertWorkSession(ctx context.Context, ws *model.WorkSession) error {
	r.work = append(r.work, *ws)
	return nil
}

// fakeVerificationRepo is an in-memory VerificationRepository.
type fakeVerificationRepo struct {
	codes  []*model.VerificationCode
	nextID int
}

func (r *fakeVerificationRepo) Create(ctx context.Context, vc *model.VerificationCode) error {
	r.nextID++
	vc.ID = fmt.Sprintf("code-%d", r.nextID)
	vc.CreatedAt = time.Now()
	r.codes = append(r.codes, vc)
	return nil
}

func (r *fakeVerificationRepo) FindValid(ctx context.Context, email, code string, now time.Time) (*model.VerificationCode, error) {
	for i := len(r.codes) - 1; i >= 0; i-- {
		vc := r.codes[i]
		if vc.Email == email && vc.Code == code && !vc.Used && vc.ExpiresAt.After(now) {
			return vc, nil
		}
	}
	return nil, nil
}

func (r *fakeVerificationRepo) MarkUsed(ctx context.Context, id string) error {
	for _, vc := range r.codes {
		if vc.ID == id {
			vc.Used = true
			return nil
		}
	}
	return errors.New("no such code")
}

// fakeWebhookEventRepo records webhook event IDs in memory.
type fakeWebhookEventRepo struct {
	seen      map[string]bool
	recordErr error
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{seen: map[string]bool{}}
}

func (r *fakeWebhookEventRepo) Record(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	if r.recordErr != nil {
		return false, r.recordErr
	}
	key := provider + "/" + eventID
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	return true, nil
}

func (r *fakeWebhookEventRepo) Forget(ctx context.Context, provider, eventID string) error {
	delete(r.seen, provider+"/"+eventID)
	return nil
}

// fakeAuthClient is an in-memory AuthAdminClient.
type fakeAuthClient struct {
	existing   map[string]*AuthUser
	created    []AuthUser
	deleted    []string
	nextUserID string
	createErr  error
}

func newFakeAuthClient() *fakeAuthClient {
	return &fakeAuthClient{existing: map[string]*AuthUser{}, nextUserID: "user-1"}
}

func (c *fakeAuthClient) FindUserByEmail(ctx context.Context, email string) (*AuthUser, error) {
	return c.existing[email], nil
}

func (c *fakeAuthClient) CreateUser(ctx context.Context, email, password string) (*AuthUser, error) {
	if c.createErr != nil {
		return nil, c.createErr
	}
	u := AuthUser{ID: c.nextUserID, Email: email}
	c.created = append(c.created, u)
	c.existing[email] = &u
	return &u, nil
}

func (c *fakeAuthClient) DeleteUser(ctx context.Context, userID string) error {
	c.deleted = append(c.deleted, userID)
	return nil
}

// fakeEmailService captures sent codes.
type fakeEmailService struct {
	sent    []string
	sendErr error
}

func (s *fakeEmailService) SendVerificationCode(ctx context.Context, to, code string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, code)
	return nil
}

// nopRecorder satisfies metrics.Recorder for tests.
type nopRecorder struct{}

func (nopRecorder) RecordWebhookEvent(eventType, outcome string)               {}
func (nopRecorder) RecordSyncRun(provider, outcome string)                     {}
func (nopRecorder) RecordSyncRecords(provider string, count int)               {}
func (nopRecorder) RecordSyncLatency(provider string, duration time.Duration)  {}
