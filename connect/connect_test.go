package connect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

func TestConnect(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/connect", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Credentials{RoomURL: "ws://bot.local/rooms/abc", Token: "t0k"})
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL + "/connect"}
	creds, err := c.Connect(context.Background(), Request{BotType: "shawarma"})
	require.NoError(t, err)
	assert.Equal(t, "shawarma", got.BotType)
	assert.Equal(t, "ws://bot.local/rooms/abc", creds.RoomURL)

	u, err := creds.SignalURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://bot.local/rooms/abc?token=t0k", u)
}

func TestConnectErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"Failed to create room"}`))
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL + "/connect"}
	_, err := c.Connect(context.Background(), Request{})
	assert.ErrorContains(t, err, "Failed to create room")
}

func TestConnectMissingRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"x"}`))
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL + "/connect"}
	_, err := c.Connect(context.Background(), Request{})
	assert.ErrorContains(t, err, "missing room_url")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL + "/connect"}
	require.NoError(t, c.Health(context.Background()))

	c = &Client{URL: srv.URL + "/elsewhere/connect"}
	assert.ErrorContains(t, c.Health(context.Background()), "404")
}
