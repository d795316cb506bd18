package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prevURL, prevToken := apiURL, authToken
	apiURL, authToken = srv.URL, "tok"
	t.Cleanup(func() { apiURL, authToken = prevURL, prevToken })
}

func TestCallDecodesSuccess(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/communities", r.URL.Path)
		assert.Equal(t, "Humor", r.URL.Query().Get("category"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"total":3,"source":"demo"}`))
	})

	result, err := call(newAPIClient().R().SetQueryParam("category", "Humor"), http.MethodGet, "/communities")
	require.NoError(t, err)
	assert.Equal(t, "3", str(result, "total"))
	assert.Equal(t, "demo", str(result, "source"))
	assert.Equal(t, "", str(result, "missing"))
}

func TestCallSurfacesAPIMessage(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"error":"FORBIDDEN","message":"access restricted to administrators"}`))
	})

	_, err := call(newAPIClient().R(), http.MethodPost, "/communities")
	require.Error(t, err)
	assert.Equal(t, "API error: access restricted to administrators", err.Error())
}

func TestCallWithoutMessage(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := call(newAPIClient().R(), http.MethodGet, "/user-activity")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRequireToken(t *testing.T) {
	prev := authToken
	t.Cleanup(func() { authToken = prev })

	authToken = ""
	assert.Error(t, requireToken())
	authToken = "x"
	assert.NoError(t, requireToken())
}
