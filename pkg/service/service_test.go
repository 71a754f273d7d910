package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPIngress_CheckHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewHTTPIngress("ns-a", "site", server.URL, nil, "")
	result := svc.Check(context.Background())

	assert.Equal(t, OK, result.Status)
}

func TestHTTPIngress_CheckUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewHTTPIngress("ns-a", "site", server.URL, nil, "")
	result := svc.Check(context.Background())

	assert.Equal(t, FAIL, result.Status)
}

func TestHTTPIngress_Equal(t *testing.T) {
	a := NewHTTPIngress("ns-a", "site", "https://x/health", nil, "")
	b := NewHTTPIngress("ns-a", "site", "https://x/health", nil, "")
	c := NewHTTPIngress("ns-b", "site", "https://x/health", nil, "")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestHTTPIngress_Key(t *testing.T) {
	svc := NewHTTPIngress("ns-a", "site", "https://x/health", nil, "")
	require.Equal(t, "ns-a/https://x/health", svc.Key())
}

func TestDatabase_EqualIgnoresCategory(t *testing.T) {
	a := NewDatabase("primary", "mongodb://host/db", "infra")
	b := NewDatabase("primary", "mongodb://host/db", "other")

	assert.True(t, a.Equal(b))
}

func TestSearch_Kind(t *testing.T) {
	svc := NewSearch("logs", "https://es.example.com", "")
	assert.Equal(t, KindSearch, svc.Kind())
}
