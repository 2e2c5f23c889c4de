package whip

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishCapturesLocation(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), "v=0")
		w.Header().Set("Location", "/resource/abc123")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("v=0\r\na=ice-ufrag:x\r\n"))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/whip/endpoint", "secret-token")
	answer, err := c.Publish("v=0\r\n")
	require.NoError(t, err)
	require.Contains(t, answer, "v=0")
	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Equal(t, server.URL+"/resource/abc123", c.resourceLocation)
}

func TestPublishRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	_, err := c.Publish("v=0\r\n")
	require.Error(t, err)
}

func TestTeardownSendsDelete(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	c.resourceLocation = server.URL + "/resource/abc"
	c.Teardown()
	require.Equal(t, http.MethodDelete, method)
}
