// Package httpstore is a ledger.Store that talks to a ledgerd server over
// HTTP, using ETag and If-Match for conditional writes.
package httpstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// LedgerPath is the resource served by ledgerd.
const LedgerPath = "/ledger"

// maxDocumentBytes caps how much of a response body is read.
const maxDocumentBytes = 8 << 20

// Store is a remote ledger reached over HTTP.
type Store struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ ledger.Store = (*Store)(nil)

// New returns a store for the ledgerd server at baseURL. token, if set, is
// sent as a bearer credential. client may be nil.
func New(baseURL, token string, client *http.Client) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ledger url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid ledger url %q: missing host", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Store{
		endpoint: strings.TrimRight(u.String(), "/") + LedgerPath,
		token:    token,
		client:   client,
	}, nil
}

func (s *Store) GetLatest(ctx context.Context) (*ledger.Ledger, ledger.Version, error) {
	req, err := s.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, "", err
	}

	resp, body, err := s.do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError(resp, body)
	}

	v, ok := ledger.ParseETag(resp.Header.Get("ETag"))
	if !ok {
		return nil, "", fmt.Errorf("ledger response has no usable ETag (got %q)", resp.Header.Get("ETag"))
	}
	l, err := ledger.Decode(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return l, v, nil
}

func (s *Store) PutIfMatch(ctx context.Context, l *ledger.Ledger, expected ledger.Version) (ledger.Version, error) {
	data, err := ledger.Encode(l)
	if err != nil {
		return "", err
	}

	req, err := s.newRequest(ctx, http.MethodPut, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", ledger.ETag(expected))

	resp, body, err := s.do(req)
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		v, ok := ledger.ParseETag(resp.Header.Get("ETag"))
		if !ok {
			return "", fmt.Errorf("ledger write response has no usable ETag")
		}
		return v, nil
	case http.StatusPreconditionFailed:
		current, _ := ledger.ParseETag(resp.Header.Get("ETag"))
		return "", &ledger.ConflictError{Expected: expected, Current: current}
	default:
		return "", statusError(resp, body)
	}
}

func (s *Store) newRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

func (s *Store) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger request %s %s failed: %w", req.Method, s.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read ledger response: %w", err)
	}
	return resp, body, nil
}

func statusError(resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Errorf("ledger server returned %s", resp.Status)
	}
	return fmt.Errorf("ledger server returned %s: %s", resp.Status, msg)
}
