// Package backend is the HTTP client for the bot backend that applies member
// updates on the relay's behalf.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/gateway"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
)

const (
	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

type Config struct {
	BaseURL string
	// Auth is sent verbatim in the Authorization header.
	Auth    string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	auth       string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient builds a client. Timeout bounds every call except UpdateMembers,
// which runs as long as the caller's context allows.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		auth:       cfg.Auth,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// WithHTTPClient swaps the underlying transport client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type updateMembersRequest struct {
	GuildID uint64           `json:"guild_id"`
	Members []gateway.Member `json:"members"`
	Nonce   string           `json:"nonce"`
}

// UpdateMembers submits one chunk of members for a bulk update.
func (c *Client) UpdateMembers(ctx context.Context, guildID uint64, members []gateway.Member, nonce string) error {
	body := updateMembersRequest{GuildID: guildID, Members: members, Nonce: nonce}
	return c.do(ctx, http.MethodPost, "/api/users/update", body, nil)
}

type updateUserRequest struct {
	GuildID  uint64 `json:"guild_id"`
	MemberID uint64 `json:"member_id"`
	DMUser   bool   `json:"dm_user"`
}

// UpdateUser asks the backend to refresh one user in one guild without
// messaging them.
func (c *Client) UpdateUser(ctx context.Context, userID, guildID uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	body := updateUserRequest{GuildID: guildID, MemberID: userID}
	return c.do(ctx, http.MethodPost, "/api/users/"+strconv.FormatUint(userID, 10)+"/update", body, nil)
}

type memberJoinRequest struct {
	Member gateway.Member `json:"member"`
}

// MemberJoin reports a member that just joined a guild.
func (c *Client) MemberJoin(ctx context.Context, guildID uint64, member gateway.Member) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	path := fmt.Sprintf("/api/users/%d/%d/join", member.ID, guildID)
	return c.do(ctx, http.MethodPost, path, memberJoinRequest{Member: member}, nil)
}

// Premium is the backend's premium state for a guild.
type Premium struct {
	Premium  bool     `json:"premium"`
	Features []string `json:"features"`
}

func (c *Client) PremiumStatus(ctx context.Context, guildID uint64) (Premium, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out Premium
	if err := c.do(ctx, http.MethodGet, "/api/premium/guilds/"+strconv.FormatUint(guildID, 10), nil, &out); err != nil {
		return Premium{}, err
	}
	if out.Features == nil {
		out.Features = []string{}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := jsoncodec.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &errspkg.StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read %s response: %w", path, err)
	}
	if err := jsoncodec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode %s response: %w", path, err)
	}
	return nil
}
