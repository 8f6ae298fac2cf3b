package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthUser is an account in the external auth store.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthAdminClient is the admin surface of the external auth store. Account
// creation and deletion happen here; profiles live in the relational store.
type AuthAdminClient interface {
	FindUserByEmail(ctx context.Context, email string) (*AuthUser, error)
	// CreateUser creates an account with the email marked confirmed, since
	// control of the address was already proven via verification code.
	CreateUser(ctx context.Context, email, password string) (*AuthUser, error)
	DeleteUser(ctx context.Context, userID string) error
}

// supabaseAuthClient implements AuthAdminClient against the GoTrue admin
// REST API using the service role key.
type supabaseAuthClient struct {
	baseURL        string
	serviceRoleKey string
	httpClient     *http.Client
}

// NewSupabaseAuthClient creates an AuthAdminClient for the given Supabase
// project URL.
func NewSupabaseAuthClient(baseURL, serviceRoleKey string) AuthAdminClient {
	return &supabaseAuthClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		serviceRoleKey: serviceRoleKey,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *supabaseAuthClient) FindUserByEmail(ctx context.Context, email string) (*AuthUser, error) {
	u := c.baseURL + "/auth/v1/admin/users?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth admin list users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth admin list users: status %d", resp.StatusCode)
	}

	var payload struct {
		Users []AuthUser `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode auth admin list response: %w", err)
	}
	for i := range payload.Users {
		if strings.EqualFold(payload.Users[i].Email, email) {
			return &payload.Users[i], nil
		}
	}
	return nil, nil
}

func (c *supabaseAuthClient) CreateUser(ctx context.Context, email, password string) (*AuthUser, error) {
	body, err := json.Marshal(map[string]interface{}{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/admin/users", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth admin create user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("auth admin create user: status %d", resp.StatusCode)
	}

	var u AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode auth admin create response: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("auth admin create user: empty user id")
	}
	return &u, nil
}

func (c *supabaseAuthClient) DeleteUser(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/auth/v1/admin/users/"+userID, nil)
	if err != nil {
		return err
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth admin delete user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("auth admin delete user: status %d", resp.StatusCode)
	}
	return nil
}

func (c *supabaseAuthClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("apikey", c.serviceRoleKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
}
