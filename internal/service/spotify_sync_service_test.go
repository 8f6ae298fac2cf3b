package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/provider/spotify"

	"github.com/rs/zerolog"
)

type fakeSpotifyAPI struct {
	pages     [][]spotify.PlayItem
	cursors   []int64
	failAfter int // fail on the Nth call (1-based); 0 disables
	calls     int
}

func (f *fakeSpotifyAPI) RecentlyPlayed(ctx context.Context, accessToken string, limit int, before int64) ([]spotify.PlayItem, error) {
	f.calls++
	f.cursors = append(f.cursors, before)
	if f.failAfter > 0 && f.calls >= f.failAfter {
		return nil, errors.New("boom")
	}
	if f.calls > len(f.pages) {
		return nil, nil
	}
	return f.pages[f.calls-1], nil
}

func connectedSpotifyUser() *model.UserProfile {
	access := "sp-token"
	refresh := "sp-refresh"
	return &model.UserProfile{
		UserID:              "u1",
		SpotifyConnected:    true,
		SpotifyAccessToken:  &access,
		SpotifyRefreshToken: &refresh,
	}
}

func plays(n int, newest time.Time) []spotify.PlayItem {
	items := make([]spotify.PlayItem, n)
	for i := range items {
		items[i] = spotify.PlayItem{
			TrackName:  "Track",
			ArtistName: "Artist",
			DurationMS: 180000,
			PlayedAt:   newest.Add(-time.Duration(i) * time.Minute),
		}
	}
	return items
}

func newSpotifySyncForTest(repo *fakeUserRepo, activity *fakeActivityRepo, api *fakeSpotifyAPI) *SpotifySyncService {
	return NewSpotifySyncService(repo, activity, staticVault{}, api, 50, time.Microsecond, zerolog.Nop())
}

func TestSpotifySyncStoresEachPlay(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeSpotifyAPI{pages: [][]spotify.PlayItem{plays(3, now.Add(-time.Hour))}}
	activity := &fakeActivityRepo{}
	userRepo := newFakeUserRepo(connectedSpotifyUser())
	svc := newSpotifySyncForTest(userRepo, activity, api)

	n, err := svc.Sync(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || len(activity.sessions) != 3 {
		t.Fatalf("plays stored = %d/%d, want 3", n, len(activity.sessions))
	}
	if userRepo.spotifySyncTouches != 1 {
		t.Fatal("last_synced_at not touched")
	}
}

func TestSpotifySyncPagesWithBeforeCursor(t *testing.T) {
	now := time.Now().UTC()
	page1 := plays(50, now.Add(-time.Hour))
	page2 := plays(10, now.Add(-3*time.Hour))
	api := &fakeSpotifyAPI{pages: [][]spotify.PlayItem{page1, page2}}
	activity := &fakeActivityRepo{}
	svc := newSpotifySyncForTest(newFakeUserRepo(connectedSpotifyUser()), activity, api)

	n, err := svc.Sync(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 60 {
		t.Fatalf("plays stored = %d, want 60", n)
	}
	if len(api.cursors) != 2 || api.cursors[0] != 0 {
		t.Fatalf("cursors = %v, want first request without a cursor", api.cursors)
	}
	wantCursor := page1[len(page1)-1].PlayedAt.UnixMilli()
	if api.cursors[1] != wantCursor {
		t.Fatalf("second cursor = %d, want oldest play %d", api.cursors[1], wantCursor)
	}
}

func TestSpotifySyncStopsAtWindowEdge(t *testing.T) {
	now := time.Now().UTC()
	page := plays(49, now.Add(-time.Hour))
	page = append(page, spotify.PlayItem{TrackName: "Old", ArtistName: "Artist", PlayedAt: now.AddDate(0, 0, -60)})
	api := &fakeSpotifyAPI{pages: [][]spotify.PlayItem{page}}
	activity := &fakeActivityRepo{}
	svc := newSpotifySyncForTest(newFakeUserRepo(connectedSpotifyUser()), activity, api)

	n, err := svc.Sync(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 49 {
		t.Fatalf("plays stored = %d, want 49 (out-of-window play dropped)", n)
	}
	if api.calls != 1 {
		t.Fatalf("api calls = %d, want 1 (window edge stops pagination)", api.calls)
	}
}

func TestSpotifySyncKeepsPartialResultOnLaterPageFailure(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeSpotifyAPI{
		pages:     [][]spotify.PlayItem{plays(50, now.Add(-time.Hour))},
		failAfter: 2,
	}
	activity := &fakeActivityRepo{}
	svc := newSpotifySyncForTest(newFakeUserRepo(connectedSpotifyUser()), activity, api)

	n, err := svc.Sync(context.Background(), "u1")
	if err != nil {
		t.Fatalf("later page failure escalated: %v", err)
	}
	if n != 50 {
		t.Fatalf("plays stored = %d, want the 50 already fetched", n)
	}
}

func TestSpotifySyncFirstPageFailureEscalates(t *testing.T) {
	api := &fakeSpotifyAPI{failAfter: 1}
	svc := newSpotifySyncForTest(newFakeUserRepo(connectedSpotifyUser()), &fakeActivityRepo{}, api)

	if _, err := svc.Sync(context.Background(), "u1"); err == nil {
		t.Fatal("expected error when no page could be fetched")
	}
}

func TestSpotifySyncRequiresConnection(t *testing.T) {
	svc := newSpotifySyncForTest(newFakeUserRepo(&model.UserProfile{UserID: "u1"}), &fakeActivityRepo{}, &fakeSpotifyAPI{})

	_, err := svc.Sync(context.Background(), "u1")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}
