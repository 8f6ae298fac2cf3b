package service

import (
	"context"
	"errors"
	"testing"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/provider/github"
	"github.com/HanabLabs/FocusDock/internal/provider/spotify"

	"github.com/rs/zerolog"
)

type fakeGitHubOAuth struct {
	authCalls []string
}

func (f *fakeGitHubOAuth) AuthURL(redirectURI, state string) string {
	f.authCalls = append(f.authCalls, state)
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (f *fakeGitHubOAuth) ExchangeCode(ctx context.Context, code string) (string, error) {
	return "gh-token", nil
}

func (f *fakeGitHubOAuth) GetUser(ctx context.Context, accessToken string) (*github.User, error) {
	return &github.User{Login: "dev"}, nil
}

type fakeSpotifyOAuth struct {
	exchangeCalls int
}

func (f *fakeSpotifyOAuth) AuthURL(redirectURI, state string) string {
	return "https://accounts.spotify.com/authorize?state=" + state
}

func (f *fakeSpotifyOAuth) ExchangeCode(ctx context.Context, code, redirectURI string) (*spotify.TokenPair, error) {
	f.exchangeCalls++
	return &spotify.TokenPair{AccessToken: "sp-token", RefreshToken: "sp-refresh"}, nil
}

func newIntegrationServiceForTest(ur *fakeUserRepo, ar *fakeActivityRepo, gh *fakeGitHubOAuth, sp *fakeSpotifyOAuth) *IntegrationService {
	return NewIntegrationService(ur, ar, gh, sp, nil, "activity_sync", "https://app.example.com", zerolog.Nop())
}

func TestSpotifyConnectionRequiresPaidTier(t *testing.T) {
	ur := newFakeUserRepo(testUser(model.TierFree))
	sp := &fakeSpotifyOAuth{}
	svc := newIntegrationServiceForTest(ur, &fakeActivityRepo{}, &fakeGitHubOAuth{}, sp)

	err := svc.ConnectSpotify(context.Background(), "u1", "auth-code")
	if !errors.Is(err, ErrPaidTierRequired) {
		t.Fatalf("err = %v, want ErrPaidTierRequired", err)
	}
	if sp.exchangeCalls != 0 {
		t.Fatal("code exchanged before the tier gate")
	}
	if ur.users["u1"].SpotifyConnected {
		t.Fatal("spotify connected for a free-tier user")
	}
}

func TestDisconnectGitHubClearsTokenAndData(t *testing.T) {
	ur := newFakeUserRepo(connectedGitHubUser())
	ar := &fakeActivityRepo{aggregates: []model.CommitAggregate{{UserID: "u1", Repository: "dash"}}}
	svc := newIntegrationServiceForTest(ur, ar, &fakeGitHubOAuth{}, &fakeSpotifyOAuth{})

	if err := svc.DisconnectGitHub(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	u := ur.users["u1"]
	if u.GitHubConnected || u.GitHubAccessToken != nil || u.GitHubUsername != nil {
		t.Fatal("github credentials not cleared")
	}
	if ar.deleteCommitCalls != 1 || len(ar.aggregates) != 0 {
		t.Fatal("synced commit data not removed")
	}
}

func TestDisconnectSpotifyClearsTokens(t *testing.T) {
	ur := newFakeUserRepo(connectedSpotifyUser())
	svc := newIntegrationServiceForTest(ur, &fakeActivityRepo{}, &fakeGitHubOAuth{}, &fakeSpotifyOAuth{})

	if err := svc.DisconnectSpotify(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	u := ur.users["u1"]
	if u.SpotifyConnected || u.SpotifyAccessToken != nil || u.SpotifyRefreshToken != nil {
		t.Fatal("spotify credentials not cleared")
	}
}

func TestAuthURLsUseFreshState(t *testing.T) {
	gh := &fakeGitHubOAuth{}
	svc := newIntegrationServiceForTest(newFakeUserRepo(), &fakeActivityRepo{}, gh, &fakeSpotifyOAuth{})

	_, s1 := svc.GitHubAuthURL()
	_, s2 := svc.GitHubAuthURL()
	if s1 == "" || s1 == s2 {
		t.Fatalf("states %q and %q are not fresh per request", s1, s2)
	}
}
