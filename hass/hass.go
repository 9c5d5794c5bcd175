package hass

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

const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

var ErrNotFound = errors.New("entity not found")

// State is the current state of a Home Assistant entity.
type State struct {
	EntityId    string                     `json:"entity_id"`
	State       string                     `json:"state"`
	Attributes  map[string]json.RawMessage `json:"attributes"`
	LastChanged time.Time                  `json:"last_changed"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// Available is false for the "unknown" and "unavailable" sentinels.
func (s *State) Available() bool {
	return s != nil && s.State != "" && s.State != StateUnknown && s.State != StateUnavailable
}

// Attribute decodes the named attribute into v. It returns false when the
// attribute is missing or null.
func (s *State) Attribute(name string, v any) (bool, error) {
	raw, ok := s.Attributes[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding attribute %s of %s: %w", name, s.EntityId, err)
	}
	return true, nil
}

type Client struct {
	logger  *slog.Logger
	baseURL string
	token   string
	client  *http.Client
}

func New(logger *slog.Logger, baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		logger:  logger.With(slog.String("module", "hass")),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetState returns the state of entityId. A missing entity yields ErrNotFound.
func (c *Client) GetState(ctx context.Context, entityId string) (*State, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityId), nil)
	if err != nil {
		return nil, fmt.Errorf("get state of %s: %w", entityId, err)
	}
	var s State
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decoding state of %s: %w", entityId, err)
	}
	return &s, nil
}

type serviceResponse struct {
	ServiceResponse json.RawMessage `json:"service_response"`
}

// CallServiceWithResponse calls a service that returns data, e.g.
// weather.get_forecasts, and returns the raw service_response object.
func (c *Client) CallServiceWithResponse(ctx context.Context, domain, service string, data any) (json.RawMessage, error) {
	path := fmt.Sprintf("/api/services/%s/%s?return_response", url.PathEscape(domain), url.PathEscape(service))
	body, err := c.do(ctx, http.MethodPost, path, data)
	if err != nil {
		return nil, fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}
	var res serviceResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decoding response of %s.%s: %w", domain, service, err)
	}
	return res.ServiceResponse, nil
}

func (c *Client) CallService(ctx context.Context, domain, service string, data any) error {
	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	if _, err := c.do(ctx, http.MethodPost, path, data); err != nil {
		return fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}
	return nil
}

// Notify creates a persistent notification. Notifications with the same id
// replace each other.
func (c *Client) Notify(ctx context.Context, title, message, id string) error {
	return c.CallService(ctx, "persistent_notification", "create", map[string]string{
		"title":           title,
		"message":         message,
		"notification_id": id,
	})
}

func (c *Client) do(ctx context.Context, method, path string, data any) ([]byte, error) {
	var reqBody io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("home assistant request", slog.String("method", method), slog.String("path", path))

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("got status %s: %s", res.Status, strings.TrimSpace(string(body)))
	}

	return body, nil
}
