package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials() Credentials {
	return Credentials{
		VendorKey:     "vendor-key",
		UserKey:       "user-key",
		LicenseNumber: "C11-0000123-LIC",
		Sandbox:       true,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(testCredentials(), append([]Option{WithBaseURL(srv.URL)}, opts...)...)
}

func TestCredentialsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Credentials)
		wantErr string
	}{
		{"valid", func(*Credentials) {}, ""},
		{"missing_vendor_key", func(c *Credentials) { c.VendorKey = "" }, "vendor key is required"},
		{"missing_user_key", func(c *Credentials) { c.UserKey = "" }, "user key is required"},
		{"missing_license", func(c *Credentials) { c.LicenseNumber = "" }, "license number is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			creds := testCredentials()
			tt.mutate(&creds)
			err := creds.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want ErrorKind
	}{
		{http.StatusBadRequest, KindValidation},
		{http.StatusNotFound, KindValidation},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusConflict, KindConflict},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusServiceUnavailable, KindTransient},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.code), "status %d", tt.code)
	}
}

func TestErrorRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Error{Kind: KindRateLimited}).Retryable())
	assert.True(t, (&Error{Kind: KindTransient}).Retryable())
	assert.False(t, (&Error{Kind: KindValidation}).Retryable())
	assert.False(t, (&Error{Kind: KindAuth}).Retryable())
	assert.False(t, (&Error{Kind: KindConflict}).Retryable())
}

func TestRequestCarriesAuthAndLicense(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		_, _ = w.Write([]byte("[]"))
	})

	_, err := client.Strains.ListActive(context.Background(), ListWindow{})
	require.NoError(t, err)

	require.NotNil(t, captured)
	user, pass, ok := captured.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "vendor-key", user)
	assert.Equal(t, "user-key", pass)
	assert.Equal(t, "C11-0000123-LIC", captured.URL.Query().Get("licenseNumber"))
	assert.Equal(t, userAgent, captured.Header.Get("User-Agent"))
}

func TestTransientFailuresAreRetried(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"Id": 7, "Name": "Blue Dream"}]`))
	}, WithMaxTries(4))

	strains, err := client.Strains.ListActive(context.Background(), ListWindow{})
	require.NoError(t, err)
	require.Len(t, strains, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRateLimitIsRetried(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("[]"))
	}, WithMaxTries(2))

	_, err := client.Strains.ListActive(context.Background(), ListWindow{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestValidationAndAuthFailuresAreNotRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		wantKind ErrorKind
	}{
		{"bad_request", http.StatusBadRequest, KindValidation},
		{"unauthorized", http.StatusUnauthorized, KindAuth},
		{"conflict", http.StatusConflict, KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var attempts atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"Message": "the ledger said no"}`))
			}, WithMaxTries(4))

			_, err := client.Strains.ListActive(context.Background(), ListWindow{})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Contains(t, err.Error(), "the ledger said no")
			assert.Equal(t, int32(1), attempts.Load(), "non-retryable failures stop immediately")
		})
	}
}

func TestRetriesStopAtMaxTries(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithMaxTries(3))

	_, err := client.Strains.ListActive(context.Background(), ListWindow{})
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestErrorMessageFallsBackToBodyThenStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "structured", errorMessage([]byte(`{"Message": "structured"}`), 400))
	assert.Equal(t, "plain text body", errorMessage([]byte("plain text body"), 400))
	assert.Equal(t, "503 Service Unavailable", errorMessage(nil, 503))
}

func TestFindByNameMatchesExactly(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Strain{
			{ID: 1, Name: "Blue Dream"},
			{ID: 2, Name: "Blue Dream Haze"},
		})
	}, WithMaxTries(1))

	found, err := client.Strains.FindByName(context.Background(), "Blue Dream")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.ID)

	missing, err := client.Strains.FindByName(context.Background(), "blue dream")
	require.NoError(t, err)
	assert.Nil(t, missing, "lookup is case sensitive exact match")
}

func TestDestroyReturnsTransaction(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var reqs []WasteDestroyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqs))
		require.Len(t, reqs, 1)
		_ = json.NewEncoder(w).Encode([]WasteTransaction{
			{ID: 1, TransactionID: "WD-000001", SourceName: reqs[0].SourceName},
		})
	}, WithMaxTries(1))

	txn, err := client.Waste.Destroy(context.Background(), WasteDestroyRequest{
		SourceType: "package", SourceName: "1A4FF0300000022000000001",
		Weight: 40, UnitOfWeight: "Grams",
		WasteReason: "Contamination", RenderingMethod: "Grinder",
	})
	require.NoError(t, err)
	assert.Equal(t, "WD-000001", txn.TransactionID)
}

func TestDestroyEmptyResponseIsTransient(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}, WithMaxTries(1))

	_, err := client.Waste.Destroy(context.Background(), WasteDestroyRequest{
		SourceType: "package", SourceName: "1A4FF0300000022000000001", Weight: 40,
	})
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Contains(t, err.Error(), "no transaction returned")
}

func TestListByPackagePassesLabelQuery(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		_, _ = w.Write([]byte("[]"))
	}, WithMaxTries(1))

	_, err := client.LabTests.ListByPackage(context.Background(), "1A4FF0300000022000000001")
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "/labtests/v1/results", captured.URL.Path)
	assert.Equal(t, "1A4FF0300000022000000001", captured.URL.Query().Get("packageLabel"))
}

func TestListWindowBoundsTheQuery(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		_, _ = w.Write([]byte("[]"))
	}, WithMaxTries(1))

	window := ListWindow{
		ModifiedStart: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		ModifiedEnd:   time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	_, err := client.Strains.ListActive(context.Background(), window)
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "2026-05-01T00:00:00Z", captured.URL.Query().Get("lastModifiedStart"))
	assert.Equal(t, "2026-05-02T00:00:00Z", captured.URL.Query().Get("lastModifiedEnd"))
}

func TestZeroListWindowAddsNoQuery(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		_, _ = w.Write([]byte("[]"))
	}, WithMaxTries(1))

	_, err := client.Strains.ListActive(context.Background(), ListWindow{})
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Empty(t, captured.URL.Query().Get("lastModifiedStart"))
	assert.Empty(t, captured.URL.Query().Get("lastModifiedEnd"))
}

func TestSandboxFlagSelectsEnvironment(t *testing.T) {
	t.Parallel()

	sandbox := New(Credentials{Sandbox: true})
	assert.Equal(t, sandboxBaseURL, sandbox.baseURL)
	production := New(Credentials{Sandbox: false})
	assert.Equal(t, productionBaseURL, production.baseURL)
}
