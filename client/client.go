// Package client talks to the cardstudio REST API.
package client

import (
	"bytes"
	"cardstudio/core"
	"cardstudio/i18n"
	"cardstudio/mailer"
	"cardstudio/payment"
	"cardstudio/textvar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// APIError is returned for every non-2xx response. Message is taken from
// the response body "message" field, else its "error" field, else the
// generic failure text in the caller's language.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if lang := i18n.FromContext(ctx).Code(); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(ctx, data)}
		logrus.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debug(apiErr.Message)
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(ctx context.Context, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return i18n.T(ctx, i18n.MsgGenericFailure)
}

// Designs

func (c *Client) ListDesigns(ctx context.Context) ([]*core.Design, error) {
	var out []*core.Design
	err := c.do(ctx, http.MethodGet, "/api/v1/designs", nil, &out)
	return out, err
}

func (c *Client) GetDesign(ctx context.Context, id string) (*core.Design, error) {
	var out core.Design
	if err := c.do(ctx, http.MethodGet, "/api/v1/designs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDesign stores d under a fresh id chosen by the server.
func (c *Client) CreateDesign(ctx context.Context, d *core.Design) (*core.Design, error) {
	var out core.Design
	if err := c.do(ctx, http.MethodPost, "/api/v1/designs", d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveDesign(ctx context.Context, d *core.Design) (*core.Design, error) {
	var out core.Design
	if err := c.do(ctx, http.MethodPut, "/api/v1/designs/"+url.PathEscape(d.ID), d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDesign(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/designs/"+url.PathEscape(id), nil, nil)
}

// AddItem creates an item of the given kind with the server defaults and
// returns it.
func (c *Client) AddItem(ctx context.Context, designID string, kind core.ItemKind, src string) (*core.Item, error) {
	var out core.Item
	body := map[string]any{"type": kind, "src": src}
	if err := c.do(ctx, http.MethodPost, "/api/v1/designs/"+url.PathEscape(designID)+"/items", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddText(ctx context.Context, designID string) (*core.Item, error) {
	var out core.Item
	if err := c.do(ctx, http.MethodPost, "/api/v1/designs/"+url.PathEscape(designID)+"/text", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PatchItem(ctx context.Context, designID, itemID string, patch map[string]any) (*core.Item, error) {
	var out core.Item
	path := "/api/v1/designs/" + url.PathEscape(designID) + "/items/" + url.PathEscape(itemID)
	if err := c.do(ctx, http.MethodPatch, path, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveSelected deletes the selected item and reports whether one was removed.
func (c *Client) RemoveSelected(ctx context.Context, designID string) (bool, error) {
	var out struct {
		Removed bool `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/v1/designs/"+url.PathEscape(designID)+"/selection/item", nil, &out)
	return out.Removed, err
}

// Select changes the selection; nil clears it.
func (c *Client) Select(ctx context.Context, designID string, itemID *string) error {
	body := map[string]*string{"id": itemID}
	return c.do(ctx, http.MethodPut, "/api/v1/designs/"+url.PathEscape(designID)+"/selection", body, nil)
}

func (c *Client) ItemFilter(ctx context.Context, designID, itemID string) (string, error) {
	var out struct {
		Filter string `json:"filter"`
	}
	path := "/api/v1/designs/" + url.PathEscape(designID) + "/items/" + url.PathEscape(itemID) + "/filter"
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Filter, err
}

// Invitations

type InvitationRequest struct {
	DesignID       string           `json:"designId"`
	Recipient      *core.Recipient  `json:"recipient,omitempty"`
	Recipients     []core.Recipient `json:"recipients,omitempty"`
	Event          *core.Event      `json:"event,omitempty"`
	Message        string           `json:"message,omitempty"`
	OrganizationID string           `json:"organizationId,omitempty"`
}

type SentInvitation struct {
	Invitation *core.Invitation `json:"invitation"`
	Link       string           `json:"link"`
}

type InvitationView struct {
	Invitation *core.Invitation `json:"invitation"`
	Message    string           `json:"message"`
}

func (c *Client) SendInvitation(ctx context.Context, req InvitationRequest) (*SentInvitation, error) {
	var out SentInvitation
	if err := c.do(ctx, http.MethodPost, "/api/v1/invitations/send", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendInvitations(ctx context.Context, req InvitationRequest) (*mailer.BulkResult, error) {
	var out mailer.BulkResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/invitations/send-bulk", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListInvitations(ctx context.Context) ([]*core.Invitation, error) {
	var out []*core.Invitation
	err := c.do(ctx, http.MethodGet, "/api/v1/invitations", nil, &out)
	return out, err
}

func (c *Client) ViewInvitation(ctx context.Context, token string) (*InvitationView, error) {
	var out InvitationView
	if err := c.do(ctx, http.MethodGet, "/api/v1/invitations/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Organizations

func (c *Client) ListOrganizations(ctx context.Context) ([]*core.Organization, error) {
	var out []*core.Organization
	err := c.do(ctx, http.MethodGet, "/api/v1/organizations", nil, &out)
	return out, err
}

func (c *Client) CreateOrganization(ctx context.Context, org *core.Organization) (*core.Organization, error) {
	var out core.Organization
	if err := c.do(ctx, http.MethodPost, "/api/v1/organizations", org, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteOrganization(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/organizations/"+url.PathEscape(id), nil, nil)
}

// Payments

func (c *Client) Plans(ctx context.Context) ([]payment.Plan, error) {
	var out []payment.Plan
	err := c.do(ctx, http.MethodGet, "/api/v1/payments/plans", nil, &out)
	return out, err
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	var out payment.Intent
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/intents", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Text variables and locale

func (c *Client) TextVariables(ctx context.Context) ([]textvar.Variable, error) {
	var out []textvar.Variable
	err := c.do(ctx, http.MethodGet, "/api/v1/textvars", nil, &out)
	return out, err
}

func (c *Client) RenderText(ctx context.Context, template string, values map[string]string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	body := map[string]any{"template": template, "values": values}
	err := c.do(ctx, http.MethodPost, "/api/v1/textvars/render", body, &out)
	return out.Text, err
}

func (c *Client) SetLanguage(ctx context.Context, code string) (persisted bool, err error) {
	var out struct {
		Persisted *bool `json:"persisted"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/v1/locale", map[string]string{"language": code}, &out); err != nil {
		return false, err
	}
	return out.Persisted != nil && *out.Persisted, nil
}
