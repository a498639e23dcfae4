// Package directory reads customers and pets from the user directory service.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pawpal/api/internal/platform/config"
	"github.com/pawpal/api/internal/services"
)

const defaultTimeout = 3 * time.Second

// Client implements services.Directory over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ services.Directory = (*Client)(nil)

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a directory client from configuration.
func NewClient(cfg config.DirectoryConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("directory: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("directory: invalid base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: base,
		token:   strings.TrimSpace(cfg.AuthToken),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type userPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Rank    string `json:"rank"`
	Active  bool   `json:"active"`
}

type petPayload struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"ownerId"`
	Name    string  `json:"name"`
	Weight  float64 `json:"weight"`
}

// GetUser fetches a customer profile.
func (c *Client) GetUser(ctx context.Context, userID string) (services.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return services.User{}, fmt.Errorf("%w: user id is required", services.ErrNotFound)
	}
	var payload userPayload
	if err := c.get(ctx, &payload, "users", userID); err != nil {
		return services.User{}, err
	}
	return services.User{
		ID:      payload.ID,
		Name:    payload.Name,
		Email:   payload.Email,
		Phone:   payload.Phone,
		Address: payload.Address,
		Rank:    payload.Rank,
		Active:  payload.Active,
	}, nil
}

// GetPet fetches one of the customer's pets.
func (c *Client) GetPet(ctx context.Context, userID, petID string) (services.Pet, error) {
	userID = strings.TrimSpace(userID)
	petID = strings.TrimSpace(petID)
	if userID == "" || petID == "" {
		return services.Pet{}, fmt.Errorf("%w: user and pet ids are required", services.ErrNotFound)
	}
	var payload petPayload
	if err := c.get(ctx, &payload, "users", userID, "pets", petID); err != nil {
		return services.Pet{}, err
	}
	owner := payload.OwnerID
	if owner == "" {
		owner = userID
	}
	return services.Pet{
		ID:      payload.ID,
		OwnerID: owner,
		Name:    payload.Name,
		Weight:  payload.Weight,
	}, nil
}

func (c *Client) get(ctx context.Context, out any, segments ...string) error {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	endpoint, err := url.JoinPath(c.baseURL, escaped...)
	if err != nil {
		return fmt.Errorf("%w: directory: build url: %v", services.ErrDependencyUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: directory: build request: %v", services.ErrDependencyUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: directory: %v", services.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: directory: %s", services.ErrNotFound, strings.Join(segments, "/"))
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: directory: status %d: %s", services.ErrDependencyUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: directory: decode: %v", services.ErrDependencyUnavailable, err)
	}
	return nil
}
