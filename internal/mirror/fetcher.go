// AngelaMos | 2026
// fetcher.go

package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/profile"
)

const entitlementPath = "/v1/profile/entitlement"

type Fetcher interface {
	FetchEntitlement(ctx context.Context) (*profile.EntitlementSnapshot, error)
}

// TokenSource returns the bearer token for the signed-in user.
type TokenSource func(ctx context.Context) (string, error)

type HTTPFetcher struct {
	baseURL string
	token   TokenSource
	client  *http.Client
}

func NewHTTPFetcher(baseURL string, token TokenSource, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type envelope struct {
	Success bool                         `json:"success"`
	Data    *profile.EntitlementSnapshot `json:"data"`
	Error   *core.ErrorBody              `json:"error"`
}

func (f *HTTPFetcher) FetchEntitlement(ctx context.Context) (*profile.EntitlementSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+entitlementPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build entitlement request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if f.token != nil {
		token, err := f.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("entitlement token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch entitlement: %w: %w", core.ErrRetryable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	var body envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("fetch entitlement: %w", core.ErrUnauthorized)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("fetch entitlement: status %d: %w", resp.StatusCode, core.ErrRetryable)
	case resp.StatusCode != http.StatusOK:
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && body.Error != nil {
			msg = body.Error.Message
		}
		return nil, fmt.Errorf("fetch entitlement: status %d: %s", resp.StatusCode, msg)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("decode entitlement: %w", decodeErr)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("decode entitlement: empty data")
	}
	return body.Data, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
