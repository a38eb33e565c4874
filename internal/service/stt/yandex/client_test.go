package yandex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestParseServerMessage(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		text  string
		final bool
		ok    bool
	}{
		{"result", `{"result":"why is grass green","final":true}`, "why is grass green", true, true},
		{"alternatives", `{"alternatives":[{"text":"why"}],"final":false}`, "why", false, true},
		{"partial", `{"partial":"wh"}`, "wh", false, true},
		{"is_final", `{"text":"hello","is_final":true}`, "hello", true, true},
		{"unknown", `{"foo":"bar"}`, "", false, false},
		{"garbage", `not json`, "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, ok := parseServerMessage([]byte(tc.in))
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.text, res.Text)
			require.Equal(t, tc.final, res.Final)
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := NewRecognizer(Config{})
	require.Error(t, err)
}

func TestRecognizerStreamsFinalResults(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAudio := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Api-Key secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// стартовый JSON
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_, audio, err := conn.ReadMessage()
		if err != nil {
			return
		}
		gotAudio <- audio
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"partial":"why is"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":"why is the sky blue","final":true}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	rec, err := NewRecognizer(Config{
		Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:   "secret",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := rec.Open(ctx)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.WriteAudio([]byte{1, 0, 2, 0}))
	select {
	case audio := <-gotAudio:
		require.Equal(t, []byte{1, 0, 2, 0}, audio)
	case <-ctx.Done():
		t.Fatal("audio not received")
	}

	// частичные гипотезы отфильтрованы: AllowPartials выключен
	select {
	case res := <-stream.Results():
		require.True(t, res.Final)
		require.Equal(t, "why is the sky blue", res.Text)
	case <-ctx.Done():
		t.Fatal("no result")
	}
}

func TestRecognizerForwardsPartialsWhenEnabled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotParams := make(chan sessionParams, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var params sessionParams
		if err := conn.ReadJSON(&params); err != nil {
			return
		}
		gotParams <- params
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"partial":"why do"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	rec, err := NewRecognizer(Config{Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http"), APIKey: "k", Partials: true})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := rec.Open(ctx)
	require.NoError(t, err)

	select {
	case res := <-stream.Results():
		require.False(t, res.Final)
		require.Equal(t, "why do", res.Text)
	case <-ctx.Done():
		t.Fatal("partial not delivered")
	}
	params := <-gotParams
	require.True(t, params.PartialResults)
	require.Equal(t, "en-US", params.Lang)
	require.Equal(t, 16000, params.SampleRate)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	require.ErrorIs(t, stream.WriteAudio([]byte{0, 0}), ErrClosed)
}
