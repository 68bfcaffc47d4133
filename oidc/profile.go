package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Profile is the account of the authenticated user as returned by the
// account console.
type Profile struct {
	ID               string `json:"id,omitempty"`
	Username         string `json:"username,omitempty"`
	Email            string `json:"email,omitempty"`
	FirstName        string `json:"firstName,omitempty"`
	LastName         string `json:"lastName,omitempty"`
	Enabled          bool   `json:"enabled,omitempty"`
	EmailVerified    bool   `json:"emailVerified,omitempty"`
	Totp             bool   `json:"totp,omitempty"`
	CreatedTimestamp int64  `json:"createdTimestamp,omitempty"`
}

// LoadUserProfile fetches the user's account profile.
func (c *Client) LoadUserProfile(ctx context.Context) (*Profile, error) {
	const op = "Client.LoadUserProfile"
	var p Profile
	if err := c.getJSON(ctx, c.endpoints.Account, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// LoadUserInfo fetches the claims of the userinfo endpoint.
func (c *Client) LoadUserInfo(ctx context.Context) (map[string]interface{}, error) {
	const op = "Client.LoadUserInfo"
	info := map[string]interface{}{}
	if err := c.getJSON(ctx, c.endpoints.UserInfo, &info); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	if _, _, err := c.usable(); err != nil {
		return err
	}
	if endpoint == "" {
		return fmt.Errorf("provider has no such endpoint: %w", ErrConfiguration)
	}
	token := c.tokens.Tokens().AccessToken
	if token == "" {
		return ErrNotAuthenticated
	}
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(token), TokenType: "Bearer"}),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrUserInfoFailed, ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: unable to read response: %s", ErrUserInfoFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUserInfoFailed, resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: unable to decode response: %s", ErrUserInfoFailed, err)
	}
	return nil
}
