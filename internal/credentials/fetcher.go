// Package credentials fetches short-lived streaming tokens from the trusted
// backend. Long-lived vendor secrets never appear in this process; the
// backend endpoint exchanges them for a token with a server-side TTL of tens
// of seconds.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicegate/internal/domain"
)

const defaultTimeout = 8 * time.Second

// Config maps each vendor to its key-issuance endpoint.
type Config struct {
	Endpoints map[domain.VendorID]string
	Timeout   time.Duration
}

// Fetcher implements ports.CredentialFetcher over HTTP. Tokens are never
// cached: every call is a fresh round trip.
type Fetcher struct {
	endpoints map[domain.VendorID]string
	client    *http.Client
}

func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	endpoints := make(map[domain.VendorID]string, len(cfg.Endpoints))
	for vendor, endpoint := range cfg.Endpoints {
		endpoints[vendor] = strings.TrimSpace(endpoint)
	}
	return &Fetcher{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
	}
}

type keyResponse struct {
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresInSeconds"`
	Error     string `json:"error"`
}

// Fetch retrieves a token for the vendor. Any response lacking a non-empty
// key field is a failure; the server's error message, when present, is
// carried in the wrapped error so the session can surface it verbatim.
func (f *Fetcher) Fetch(ctx context.Context, vendor domain.VendorID) (domain.Credential, error) {
	endpoint, ok := f.endpoints[vendor]
	if !ok || endpoint == "" {
		return domain.Credential{}, fmt.Errorf("%w: no key endpoint configured for vendor %q", domain.ErrCredentialUnavailable, vendor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrCredentialUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrCredentialUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrCredentialUnavailable, err)
	}

	var parsed keyResponse
	// Decode errors are folded into the empty-key check below: a body we
	// cannot parse has no usable key either way.
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(parsed.Error)
		if message == "" {
			message = fmt.Sprintf("key endpoint returned status %d", resp.StatusCode)
		}
		return domain.Credential{}, fmt.Errorf("%w: %s", domain.ErrCredentialUnavailable, message)
	}

	token := strings.TrimSpace(parsed.Key)
	if token == "" {
		return domain.Credential{}, fmt.Errorf("%w: key endpoint returned no key", domain.ErrCredentialUnavailable)
	}

	return domain.Credential{
		Token:     token,
		ExpiresIn: time.Duration(parsed.ExpiresIn) * time.Second,
	}, nil
}
