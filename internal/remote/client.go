// Package remote is the client for the platform's REST API. Every call is
// bound to one account's credentials and classified into an Outcome.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL     string
	TokenHeader string
	UserAgent   string
	Locale      string
	Timeout     time.Duration
	PartDelay   time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client holds the connection settings shared by all accounts.
type Client struct {
	baseURL     string
	tokenHeader string
	userAgent   string
	locale      string
	timeout     time.Duration
	partDelay   time.Duration
	http        *http.Client
	logger      *slog.Logger
}

// New creates a Client. BaseURL is required.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("remote: base URL is not configured")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}
	c := &Client{
		baseURL:     base,
		tokenHeader: opts.TokenHeader,
		userAgent:   opts.UserAgent,
		locale:      opts.Locale,
		timeout:     opts.Timeout,
		partDelay:   opts.PartDelay,
		http:        opts.HTTPClient,
		logger:      opts.Logger,
	}
	if c.tokenHeader == "" {
		c.tokenHeader = "Authorization"
	}
	if c.locale == "" {
		c.locale = "en"
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Credentials identify one account on every call.
type Credentials struct {
	Token      string
	DeviceInfo string
}

// Account is a Client bound to one account's credentials.
// Calls on one Account must not be issued concurrently.
type Account struct {
	c     *Client
	creds Credentials
}

// Account binds the client to creds.
func (c *Client) Account(creds Credentials) *Account {
	return &Account{c: c, creds: creds}
}

// Explore fetches one batch of candidates.
func (a *Account) Explore(ctx context.Context) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	if err := a.list(ctx, "explore", "/user/explore/v2", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Like answers "okay" to a candidate.
func (a *Account) Like(ctx context.Context, userID string) Outcome {
	q := url.Values{"userId": {userID}, "isOkay": {"1"}}
	return a.act(ctx, "like", http.MethodGet, "/user/undoableAnswer/v5", q, nil)
}

// ChatRooms fetches one page of chat rooms. An empty cursor fetches the first page.
func (a *Account) ChatRooms(ctx context.Context, cursor string) (ChatRoomPage, error) {
	var page ChatRoomPage
	path := "/chatroom/dashboard/v1"
	var q url.Values
	if cursor != "" {
		path = "/chatroom/more/v1"
		q = url.Values{"fromDate": {cursor}}
	}
	if err := a.list(ctx, "chat_rooms", path, q, &page); err != nil {
		return ChatRoomPage{}, err
	}
	return page, nil
}

// SendMessage sends text to a room. The text is split on commas and every
// part is sent as its own message, in order.
func (a *Account) SendMessage(ctx context.Context, roomID, text string) Outcome {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return Outcome{Kind: Transient, Err: errors.New("empty message")}
	}
	var out Outcome
	for i, part := range parts {
		if i > 0 && a.c.partDelay > 0 {
			select {
			case <-ctx.Done():
				return Outcome{Kind: Transient, Err: ctx.Err()}
			case <-time.After(a.c.partDelay):
			}
		}
		payload := map[string]string{"chatRoomId": roomID, "message": part, "locale": a.c.locale}
		out = a.act(ctx, "send_message", http.MethodPost, "/chat/send/v2", nil, payload)
		if !out.OK() {
			return out
		}
	}
	return out
}

// OpenChatroom opens a room with a lounge user and returns its id.
// A 412 outcome means the user does not accept chats.
func (a *Account) OpenChatroom(ctx context.Context, userID string) (string, Outcome) {
	payload := map[string]string{"waitingRoomId": userID, "locale": a.c.locale}
	status, body, err := a.do(ctx, http.MethodPost, "/chatroom/open/v2", nil, payload)
	if err != nil {
		return "", Outcome{Kind: Transient, Err: fmt.Errorf("open_chatroom: %w", err)}
	}
	out := classify(status, body)
	if !out.OK() {
		return "", out
	}
	var resp struct {
		ChatRoom struct {
			ID string `json:"_id"`
		} `json:"chatRoom"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.ChatRoom.ID == "" {
		return "", Outcome{Kind: Transient, Status: status, Err: errors.New("open_chatroom: response has no chat room id")}
	}
	return resp.ChatRoom.ID, out
}

// LoungeDashboard fetches the users currently offered in the lounge.
func (a *Account) LoungeDashboard(ctx context.Context) ([]LoungeMatch, error) {
	var resp struct {
		Both []LoungeMatch `json:"both"`
	}
	if err := a.list(ctx, "lounge_dashboard", "/lounge/dashboard/v1", url.Values{"locale": {a.c.locale}}, &resp); err != nil {
		return nil, err
	}
	return resp.Both, nil
}

// Unsubscribe leaves a chat room.
func (a *Account) Unsubscribe(ctx context.Context, roomID string) Outcome {
	payload := map[string]string{"chatRoomId": roomID}
	return a.act(ctx, "unsubscribe", http.MethodPost, "/chatroom/unsubscribe/v1", nil, payload)
}

// UpdateFilter replaces the account's remote search filter.
func (a *Account) UpdateFilter(ctx context.Context, f Filter) Outcome {
	return a.act(ctx, "update_filter", http.MethodPost, "/user/updateFilter/v1", nil, f)
}

// Me fetches the account's own profile; used to verify a token.
func (a *Account) Me(ctx context.Context) (*Profile, Outcome) {
	status, body, err := a.do(ctx, http.MethodGet, "/user/v1/me", nil, nil)
	if err != nil {
		return nil, Outcome{Kind: Transient, Err: fmt.Errorf("me: %w", err)}
	}
	out := classify(status, body)
	if !out.OK() {
		return nil, out
	}
	var resp struct {
		User Profile `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Outcome{Kind: Transient, Status: status, Err: fmt.Errorf("me: decode: %w", err)}
	}
	return &resp.User, out
}

// SplitMessage splits a message on commas, dropping blank parts.
func SplitMessage(text string) []string {
	raw := strings.Split(text, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// list performs a listing call. Non-200 responses decode to nothing so that
// pagination ends; only transport failures, rejected credentials and
// malformed bodies are errors.
func (a *Account) list(ctx context.Context, op, path string, q url.Values, out any) error {
	status, body, err := a.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res := classify(status, body)
	if res.Kind == Fatal {
		return &FatalError{Status: status, Code: res.ErrorCode}
	}
	if status != http.StatusOK {
		a.c.logger.Warn("listing returned non-200",
			"module", "remote",
			"operation", op,
			"status", status,
			"error_code", res.ErrorCode,
		)
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func (a *Account) act(ctx context.Context, op, method, path string, q url.Values, payload any) Outcome {
	status, body, err := a.do(ctx, method, path, q, payload)
	if err != nil {
		return Outcome{Kind: Transient, Err: fmt.Errorf("%s: %w", op, err)}
	}
	out := classify(status, body)
	if !out.OK() {
		a.c.logger.Debug("action not accepted",
			"module", "remote",
			"operation", op,
			"outcome", out.Kind.String(),
			"status", status,
			"error_code", out.ErrorCode,
		)
	}
	return out
}

// do issues one request with the per-call timeout and identity headers.
func (a *Account) do(ctx context.Context, method, path string, q url.Values, payload any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.c.timeout)
	defer cancel()

	u := a.c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, err
	}
	a.setHeaders(req, payload != nil)

	resp, err := a.c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (a *Account) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set(a.c.tokenHeader, a.creds.Token)
	if a.creds.DeviceInfo != "" {
		req.Header.Set("X-Device-Info", a.creds.DeviceInfo)
	}
	if a.c.userAgent != "" {
		req.Header.Set("User-Agent", a.c.userAgent)
	}
	req.Header.Set("Accept-Language", a.c.locale)
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
}
