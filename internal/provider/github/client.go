// Package github is a minimal client for the GitHub REST and OAuth APIs,
// covering only the calls the activity synchronizer needs.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized is returned when GitHub rejects the access token.
// GitHub OAuth app tokens have no refresh grant, so callers must treat this
// as "provider disconnected".
var ErrUnauthorized = errors.New("github: unauthorized")

// Client talks to the GitHub API on behalf of one OAuth app.
type Client struct {
	apiBaseURL   string
	oauthBaseURL string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient creates a GitHub client. httpClient may be nil, in which case a
// client with a 30s timeout is used.
func NewClient(apiBaseURL, oauthBaseURL, clientID, clientSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiBaseURL:   strings.TrimRight(apiBaseURL, "/"),
		oauthBaseURL: strings.TrimRight(oauthBaseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

// User is the authenticated GitHub user.
type User struct {
	Login string `json:"login"`
}

// Repo is one repository owned by or visible to the user.
type Repo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// Commit is one commit from the repository commit list.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
}

// AuthURL builds the OAuth authorize URL for the given redirect and state.
func (c *Client) AuthURL(redirectURI, state string) string {
	v := url.Values{}
	v.Set("client_id", c.clientID)
	v.Set("redirect_uri", redirectURI)
	v.Set("scope", "repo")
	v.Set("state", state)
	return c.oauthBaseURL + "/login/oauth/authorize?" + v.Encode()
}

// ExchangeCode trades an OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"code":          code,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthBaseURL+"/login/oauth/access_token", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("github token exchange: %w", err)
	}
	defer resp.Body.Close()

	var tok struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode github token response: %w", err)
	}
	if tok.Error != "" {
		return "", fmt.Errorf("github token exchange: %s", tok.Error)
	}
	if tok.AccessToken == "" {
		return "", errors.New("github token exchange: empty access token")
	}
	return tok.AccessToken, nil
}

// GetUser fetches the authenticated user. Doubles as the cheap token probe.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, accessToken, "/user", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListRepos returns up to 100 of the user's most recently updated repositories.
func (c *Client) ListRepos(ctx context.Context, accessToken string) ([]Repo, error) {
	var repos []Repo
	if err := c.getJSON(ctx, accessToken, "/user/repos?per_page=100&sort=updated", &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// ListCommits returns one page of commits for the repository, filtered by
// author and the since timestamp.
func (c *Client) ListCommits(ctx context.Context, accessToken, repoFullName, author string, since time.Time, page, perPage int) ([]Commit, error) {
	v := url.Values{}
	v.Set("since", since.UTC().Format(time.RFC3339))
	v.Set("author", author)
	v.Set("per_page", strconv.Itoa(perPage))
	v.Set("page", strconv.Itoa(page))
	path := "/repos/" + repoFullName + "/commits?" + v.Encode()

	var commits []Commit
	if err := c.getJSON(ctx, accessToken, path, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github request %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode github response %s: %w", path, err)
	}
	return nil
}
