// Package backend wraps every outbound call to the ride backend's
// api/v2 surface. A failed call means unknown outcome, never confirmed
// failure: the write may have landed even when the response was lost.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/config"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.BackendConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) ForwardEvent(ctx context.Context, event string, data any) (json.RawMessage, error) {
	return c.postJSON(ctx, "/api/v2/event", map[string]any{
		"event": event,
		"data":  data,
	})
}

func (c *Client) PostEvent(ctx context.Context, envelope any) (json.RawMessage, error) {
	return c.postJSON(ctx, "/api/v2/event", envelope)
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	body, err := c.getJSON(ctx, "/api/v2/order-status/"+url.PathEscape(orderID))
	if err != nil {
		return nil, err
	}
	var out struct {
		Order *domain.Order `json:"order"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("order status for %s: %w", orderID, err)
	}
	if out.Order == nil {
		return nil, domain.ErrOrderStatusUnknown
	}
	return out.Order, nil
}

func (c *Client) FindNearbyDrivers(ctx context.Context, lat, lon, radiusMeters float64) ([]domain.DriverCandidate, error) {
	body, err := c.postJSON(ctx, "/api/v2/find-nearby-drivers", map[string]any{
		"from_lat":  lat,
		"from_long": lon,
		"radius":    radiusMeters,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Status string                   `json:"status"`
		Data   []domain.DriverCandidate `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("nearby drivers: %w", err)
	}
	if out.Status != domain.StatusSuccess {
		return nil, nil
	}
	return out.Data, nil
}

func (c *Client) UserType(ctx context.Context, userID string) (domain.UserType, error) {
	body, err := c.getJSON(ctx, "/api/v2/user-type/"+url.PathEscape(userID))
	if err != nil {
		return "", err
	}
	var out struct {
		UserType domain.UserType `json:"userType"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("user type for %s: %w", userID, err)
	}
	return out.UserType, nil
}

func (c *Client) StoreNotifyToken(ctx context.Context, userID, token string) error {
	_, err := c.postJSON(ctx, "/api/v2/store-fcm-token", map[string]any{
		"user_id":      userID,
		"notify_token": token,
	})
	return err
}

func (c *Client) LastEvent(ctx context.Context, userID string) (*domain.StoredEvent, error) {
	body, err := c.getJSON(ctx, "/api/v2/last-event/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}
	var out domain.StoredEvent
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("last event for %s: %w", userID, err)
	}
	if out.EventType == "" {
		return nil, nil
	}
	// The backend stores event_data as a JSON-encoded string; unwrap it
	// so callers get the payload object directly.
	if len(out.EventData) > 0 && out.EventData[0] == '"' {
		var inner string
		if err := json.Unmarshal(out.EventData, &inner); err == nil {
			out.EventData = json.RawMessage(inner)
		}
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("backend %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	return body, nil
}
