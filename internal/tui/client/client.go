// Package client talks to a profile daemon over its HTTP/JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wpplus/internal/api"
	"github.com/matheus3301/wpplus/internal/config"
	"github.com/matheus3301/wpplus/internal/lock"
	"github.com/matheus3301/wpplus/internal/scheduler"
	"github.com/matheus3301/wpplus/internal/session"
	"github.com/matheus3301/wpplus/internal/store"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Msg, e.Status, e.Code)
	}
	return fmt.Sprintf("daemon answered %d", e.Status)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client wraps HTTP calls to the daemon.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the daemon listening on addr ("host:port" or a
// full URL).
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: 30 * time.Second}}
}

// ResolveAddr finds the daemon for a profile. A running daemon records its
// address in the profile lock; otherwise the configured listen address is
// assumed.
func ResolveAddr(sessionName string, cfg *config.Config) string {
	if info, err := lock.Read(session.LockPath(sessionName)); err == nil && info.Addr != "" {
		return info.Addr
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg.Listen
}

// Base is the daemon URL this client targets.
func (c *Client) Base() string { return c.base }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		var e api.ErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Code: e.Code, Msg: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Health pings the daemon.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// Status fetches the session state, booting the session if needed.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/whatsapp/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connect asks the daemon to start the session.
func (c *Client) Connect(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/whatsapp/connect", nil, nil)
}

// Logout unlinks the device.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/whatsapp/logout", nil, nil)
}

// Send delivers content to phone now and returns the WhatsApp message id.
func (c *Client) Send(ctx context.Context, phone, content string) (string, error) {
	return c.send(ctx, map[string]string{"phone": phone, "content": content})
}

// SendTemplate sends the quick reply templateID to phone.
func (c *Client) SendTemplate(ctx context.Context, phone, templateID string) (string, error) {
	return c.send(ctx, map[string]string{"phone": phone, "templateId": templateID})
}

func (c *Client) send(ctx context.Context, req map[string]string) (string, error) {
	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/send", req, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// ListScheduled returns the queue, soonest first.
func (c *Client) ListScheduled(ctx context.Context) ([]store.ScheduledMessage, error) {
	var out []store.ScheduledMessage
	err := c.do(ctx, http.MethodGet, "/api/scheduled", nil, &out)
	return out, err
}

// CreateScheduled queues content for contactID at at.
func (c *Client) CreateScheduled(ctx context.Context, contactID, content string, at time.Time) (*store.ScheduledMessage, error) {
	req := map[string]string{
		"contactId":   contactID,
		"content":     content,
		"scheduledAt": at.Format(time.RFC3339),
	}
	var out store.ScheduledMessage
	if err := c.do(ctx, http.MethodPost, "/api/scheduled", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateScheduled edits a pending message; nil fields are left alone.
func (c *Client) UpdateScheduled(ctx context.Context, id string, content *string, at *time.Time) (*store.ScheduledMessage, error) {
	req := map[string]string{}
	if content != nil {
		req["content"] = *content
	}
	if at != nil {
		req["scheduledAt"] = at.Format(time.RFC3339)
	}
	var out store.ScheduledMessage
	if err := c.do(ctx, http.MethodPatch, "/api/scheduled/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteScheduled removes a pending message.
func (c *Client) DeleteScheduled(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/scheduled/"+url.PathEscape(id), nil, nil)
}

// RunScheduler forces a dispatch pass.
func (c *Client) RunScheduler(ctx context.Context) (*scheduler.TickReport, error) {
	var out scheduler.TickReport
	if err := c.do(ctx, http.MethodPost, "/api/scheduled/run", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListContacts returns contacts with their pending counts.
func (c *Client) ListContacts(ctx context.Context) ([]store.ContactSummary, error) {
	var out []store.ContactSummary
	err := c.do(ctx, http.MethodGet, "/api/contacts", nil, &out)
	return out, err
}

// CreateContact adds or renames the contact for phone.
func (c *Client) CreateContact(ctx context.Context, phone, name string) (*store.Contact, error) {
	var out store.Contact
	if err := c.do(ctx, http.MethodPost, "/api/contacts", map[string]string{"phone": phone, "name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncContacts imports the address book of the linked account.
func (c *Client) SyncContacts(ctx context.Context) (int, error) {
	var out struct {
		Synced int `json:"synced"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/contacts/sync", nil, &out); err != nil {
		return 0, err
	}
	return out.Synced, nil
}

// ListChats returns mirrored chats, most recent first.
func (c *Client) ListChats(ctx context.Context) ([]store.ChatSummary, error) {
	var out []store.ChatSummary
	err := c.do(ctx, http.MethodGet, "/api/chats", nil, &out)
	return out, err
}

// ListMessages returns one page of a chat's history.
func (c *Client) ListMessages(ctx context.Context, chatID, cursor string, limit int) (*api.MessagePage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/chats/" + url.PathEscape(chatID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out api.MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListQuickReplies returns the saved templates.
func (c *Client) ListQuickReplies(ctx context.Context) ([]store.QuickReply, error) {
	var out []store.QuickReply
	err := c.do(ctx, http.MethodGet, "/api/quick-replies", nil, &out)
	return out, err
}

// CreateQuickReply saves a template.
func (c *Client) CreateQuickReply(ctx context.Context, shortcut, content string) (*store.QuickReply, error) {
	var out store.QuickReply
	if err := c.do(ctx, http.MethodPost, "/api/quick-replies", map[string]string{"shortcut": shortcut, "content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteQuickReply removes a template.
func (c *Client) DeleteQuickReply(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/quick-replies/"+url.PathEscape(id), nil, nil)
}
