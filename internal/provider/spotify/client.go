// Package spotify is a minimal client for the Spotify Web API, covering the
// OAuth token flows and the recently-played history endpoint.
package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized is returned when Spotify rejects the access token. The
// caller should attempt a refresh before giving up.
var ErrUnauthorized = errors.New("spotify: unauthorized")

// Client talks to the Spotify API on behalf of one OAuth app.
type Client struct {
	apiBaseURL   string
	authBaseURL  string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient creates a Spotify client. httpClient may be nil, in which case a
// client with a 30s timeout is used.
func NewClient(apiBaseURL, authBaseURL, clientID, clientSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiBaseURL:   strings.TrimRight(apiBaseURL, "/"),
		authBaseURL:  strings.TrimRight(authBaseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

// TokenPair is the result of an authorization-code exchange. Refresh grants
// only return a new access token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// PlayItem is one play event from the recently-played history.
type PlayItem struct {
	TrackName  string
	ArtistName string
	DurationMS int
	PlayedAt   time.Time
}

// AuthURL builds the OAuth authorize URL for the given redirect and state.
func (c *Client) AuthURL(redirectURI, state string) string {
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", c.clientID)
	v.Set("scope", "user-read-recently-played user-read-private")
	v.Set("redirect_uri", redirectURI)
	v.Set("state", state)
	return c.authBaseURL + "/authorize?" + v.Encode()
}

// ExchangeCode trades an OAuth authorization code for an access/refresh pair.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.postToken(ctx, form, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("spotify token exchange: empty access token")
	}
	return &TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postToken(ctx, form, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("spotify token refresh: empty access token")
	}
	return tok.AccessToken, nil
}

// GetMe probes the access token against the profile endpoint.
func (c *Client) GetMe(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/v1/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("spotify probe: status %d", resp.StatusCode)
	}
	return nil
}

// RecentlyPlayed returns one page of the listening history, newest first.
// before is a unix-millisecond cursor; zero means "from the most recent".
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string, limit int, before int64) ([]PlayItem, error) {
	u := c.apiBaseURL + "/v1/me/player/recently-played?limit=" + strconv.Itoa(limit)
	if before > 0 {
		u += "&before=" + strconv.FormatInt(before, 10)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify recently-played: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify recently-played: status %d", resp.StatusCode)
	}

	var payload struct {
		Items []struct {
			Track struct {
				Name    string `json:"name"`
				Artists []struct {
					Name string `json:"name"`
				} `json:"artists"`
				DurationMS int `json:"duration_ms"`
			} `json:"track"`
			PlayedAt time.Time `json:"played_at"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode spotify history: %w", err)
	}

	items := make([]PlayItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		artist := "Unknown Artist"
		if len(it.Track.Artists) > 0 {
			artist = it.Track.Artists[0].Name
		}
		items = append(items, PlayItem{
			TrackName:  it.Track.Name,
			ArtistName: artist,
			DurationMS: it.Track.DurationMS,
			PlayedAt:   it.PlayedAt,
		})
	}
	return items, nil
}

func (c *Client) postToken(ctx context.Context, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authBaseURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.ErrorDescription != "" {
			return fmt.Errorf("spotify token request: %s", e.ErrorDescription)
		}
		return fmt.Errorf("spotify token request: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode spotify token response: %w", err)
	}
	return nil
}
