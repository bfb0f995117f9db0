// Package ledger is the client adapter for the external state regulatory
// tracking system. It owns request timeouts, retry/backoff and the five-way
// classification of transport outcomes; callers observe *Error values, never
// raw HTTP status codes.
//
// The external system has no transactions and no rollback. Create endpoints
// do not return the generated identifier synchronously, so callers re-query
// by name after a create (see the sync package's create-or-link resolver).
package ledger

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
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cultivarhq/trace-sync-server/internal/versions"
)

const (
	// DefaultTimeout bounds each individual request attempt.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxTries bounds the retry loop for rate-limited and transient
	// failures, counting the initial attempt.
	DefaultMaxTries = 4

	// maxResponseSize caps response bodies (4MB); the ledger returns paged
	// lists well below this.
	maxResponseSize = 4 * 1024 * 1024

	productionBaseURL = "https://api.trace.example.com"
	sandboxBaseURL    = "https://sandbox-api.trace.example.com"

	userAgent = "cts-trace-api/1.0"

	// supportedAPIVersion is the ledger API revision this client was written
	// against. The ledger reports its own revision on every response; a newer
	// one is worth a warning because payload shapes occasionally grow fields.
	supportedAPIVersion = "2.1.0"

	apiVersionHeader = "X-Trace-Api-Version"
)

// Credentials are the per-site secrets required by every ledger call. One
// Client is constructed per sync invocation from the site's stored
// credentials; there is no process-wide client.
type Credentials struct {
	VendorKey     string
	UserKey       string
	LicenseNumber string
	Sandbox       bool
}

// Validate checks that all required credential fields are present.
func (c Credentials) Validate() error {
	if c.VendorKey == "" {
		return fmt.Errorf("vendor key is required")
	}
	if c.UserKey == "" {
		return fmt.Errorf("user key is required")
	}
	if c.LicenseNumber == "" {
		return fmt.Errorf("facility license number is required")
	}
	return nil
}

// Client is the external ledger client adapter. Resource families are
// exposed as services on the client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	maxTries   uint
	log        *slog.Logger

	versionWarn sync.Once

	// Resource services.
	Strains      *StrainsService
	Locations    *LocationsService
	PlantBatches *PlantBatchesService
	Harvests     *HarvestsService
	Packages     *PackagesService
	LabTests     *LabTestsService
	Waste        *WasteService
	Transfers    *TransfersService
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxTries overrides the bounded retry attempt count.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		c.maxTries = n
	}
}

// WithBaseURL overrides the ledger endpoint, used by tests against a local
// httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithLogger sets the structured logger for retry diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New constructs a Client scoped to one site's credentials. The sandbox flag
// selects the ledger environment.
func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		creds:      creds,
		maxTries:   DefaultMaxTries,
		log:        slog.Default(),
	}
	if creds.Sandbox {
		c.baseURL = sandboxBaseURL
	} else {
		c.baseURL = productionBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Strains = &StrainsService{client: c}
	c.Locations = &LocationsService{client: c}
	c.PlantBatches = &PlantBatchesService{client: c}
	c.Harvests = &HarvestsService{client: c}
	c.Packages = &PackagesService{client: c}
	c.LabTests = &LabTestsService{client: c}
	c.Waste = &WasteService{client: c}
	c.Transfers = &TransfersService{client: c}
	return c
}

// get performs a GET with retry and decodes the response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// ListWindow bounds a list call to records last modified inside the window.
// Zero bounds are omitted from the query, so the zero value lists everything.
type ListWindow struct {
	ModifiedStart time.Time
	ModifiedEnd   time.Time
}

func (w ListWindow) query() url.Values {
	if w.ModifiedStart.IsZero() && w.ModifiedEnd.IsZero() {
		return nil
	}
	q := url.Values{}
	if !w.ModifiedStart.IsZero() {
		q.Set("lastModifiedStart", w.ModifiedStart.UTC().Format(time.RFC3339))
	}
	if !w.ModifiedEnd.IsZero() {
		q.Set("lastModifiedEnd", w.ModifiedEnd.UTC().Format(time.RFC3339))
	}
	return q
}

// post performs a POST with retry and decodes the response into out when out
// is non-nil.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// do runs one logical call with the bounded retry policy. Rate-limited and
// transient failures are retried with exponential backoff; validation, auth
// and conflict outcomes stop immediately.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	operation := func() (struct{}, error) {
		err := c.doOnce(ctx, method, path, query, body, out)
		if err == nil {
			return struct{}{}, nil
		}

		var le *Error
		if errors.As(err, &le) && !le.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warn("Retrying ledger call",
			"method", method,
			"path", path,
			"wait", wait,
			"error", err)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify),
	)
	return err
}

// doOnce performs a single HTTP attempt and classifies the outcome.
func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("invalid request URL: %v", err)}
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("licenseNumber", c.creds.LicenseNumber)
	u.RawQuery = q.Encode()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Message: fmt.Sprintf("encoding request payload: %v", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("building request: %v", err)}
	}
	req.SetBasicAuth(c.creds.VendorKey, c.creds.UserKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, connection resets and DNS failures are all transient.
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if v := resp.Header.Get(apiVersionHeader); v != "" && versions.IsNewerVersion(v, supportedAPIVersion) {
		c.versionWarn.Do(func() {
			c.log.Warn("Ledger reports a newer API revision than this client supports",
				"reported", v,
				"supported", supportedAPIVersion)
		})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &Error{Kind: KindTransient, Message: fmt.Sprintf("reading response body: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data, resp.StatusCode),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Kind: KindTransient, Message: fmt.Sprintf("decoding response: %v", err)}
		}
	}
	return nil
}

// errorMessage extracts the ledger's error message from a failure body,
// falling back to the raw body or the status text.
func errorMessage(data []byte, statusCode int) string {
	var payload struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if len(data) > 0 {
		const maxLen = 512
		msg := string(data)
		if len(msg) > maxLen {
			msg = msg[:maxLen]
		}
		return msg
	}
	return strconv.Itoa(statusCode) + " " + http.StatusText(statusCode)
}
