package grafana

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "/api/datasources", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret-token", time.Second)
	body, err := c.Get(context.Background(), c.URL("/api/datasources"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(body))
}

func TestClientGetNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	endpoint := c.URL("api/v1/provisioning/templates")
	_, err := c.Get(context.Background(), endpoint)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assert.Equal(t, endpoint, fetchErr.URL)
	assert.Contains(t, fetchErr.Body, "permission denied")
}

func TestClientGetTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL + "/api/health"
	srv.Close()

	c := NewClient("http://unused", "t", time.Second)
	_, err := c.Get(context.Background(), endpoint)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
	assert.NotNil(t, fetchErr.Err)
}

func TestJoinID(t *testing.T) {
	tests := []struct {
		endpoint string
		id       string
		expected string
	}{
		{"http://g/api/dashboards/uid", "abc", "http://g/api/dashboards/uid/abc"},
		{"http://g/api/dashboards/uid/", "abc", "http://g/api/dashboards/uid/abc"},
		{"http://g/api/datasources", "12", "http://g/api/datasources/12"},
		{"http://g/api/x", "a b/c", "http://g/api/x/a%20b%2Fc"},
		{"http://g/api/x?orgId=2", "u1", "http://g/api/x/u1?orgId=2"},
	}
	for _, tt := range tests {
		if got := JoinID(tt.endpoint, tt.id); got != tt.expected {
			t.Errorf("JoinID(%q, %q) = %q, want %q", tt.endpoint, tt.id, got, tt.expected)
		}
	}
}
