package discord

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticToken string

func (s staticToken) BotToken() (string, error) {
	if s == "" {
		return "", interfaces.ErrKeyNotConfigured
	}
	return string(s), nil
}

func TestVerifyInteraction(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	parsed, err := ParsePublicKey(hex.EncodeToString(pub))
	require.NoError(t, err)

	body := []byte(`{"type":1}`)
	ts := "1700000000"
	sig := hex.EncodeToString(ed25519.Sign(priv, append([]byte(ts), body...)))

	assert.NoError(t, VerifyInteraction(parsed, sig, ts, body))
	assert.ErrorIs(t, VerifyInteraction(parsed, sig, "1700000001", body), ErrBadSignature)
	assert.ErrorIs(t, VerifyInteraction(parsed, sig, ts, []byte(`{"type":2}`)), ErrBadSignature)
	assert.ErrorIs(t, VerifyInteraction(parsed, "zz", ts, body), ErrBadSignature)
	assert.ErrorIs(t, VerifyInteraction(parsed, "", ts, body), ErrMissingSignature)
	assert.ErrorIs(t, VerifyInteraction(parsed, sig, "", body), ErrMissingSignature)

	_, err = ParsePublicKey("abcd")
	assert.Error(t, err)
	_, err = ParsePublicKey("not hex")
	assert.Error(t, err)
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

func recordingDiscord(t *testing.T, status int) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), Auth: r.Header.Get("Authorization"), Body: body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func TestClient_PutCommands(t *testing.T) {
	srv, recorded := recordingDiscord(t, http.StatusOK)
	client := NewClient(srv.URL+"/api/v10/", staticToken("bot-secret"), testLogger())
	ctx := context.Background()

	require.NoError(t, client.PutGlobalCommands(ctx, "app1", []interfaces.Command{{Name: "ping", Description: "Ping"}}))
	require.NoError(t, client.PutGuildCommands(ctx, "app1", "g1", nil))

	reqs := recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/api/v10/applications/app1/commands", reqs[0].Path)
	assert.Equal(t, "Bot bot-secret", reqs[0].Auth)
	assert.JSONEq(t, `[{"name":"ping","description":"Ping"}]`, string(reqs[0].Body))

	assert.Equal(t, "/api/v10/applications/app1/guilds/g1/commands", reqs[1].Path)
	assert.JSONEq(t, `[]`, string(reqs[1].Body))
}

func TestClient_PutCommandsErrors(t *testing.T) {
	srv, _ := recordingDiscord(t, http.StatusBadRequest)
	client := NewClient(srv.URL, staticToken("bot-secret"), testLogger())

	err := client.PutGlobalCommands(context.Background(), "app1", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	noToken := NewClient(srv.URL, staticToken(""), testLogger())
	err = noToken.PutGlobalCommands(context.Background(), "app1", nil)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotConfigured)
}

func TestClient_Forward(t *testing.T) {
	srv, recorded := recordingDiscord(t, http.StatusCreated)
	client := NewClient(srv.URL+"/api/v10", staticToken("bot-secret"), testLogger())

	headers := http.Header{"Content-Type": {"application/json"}}
	resp, err := client.Forward(context.Background(), http.MethodPost, "/channels/1/messages", "wait=true", headers, strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	reqs := recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v10/channels/1/messages?wait=true", reqs[0].Path)
	assert.Equal(t, "Bot bot-secret", reqs[0].Auth)
	assert.Equal(t, `{"content":"hi"}`, string(reqs[0].Body))
}

func TestBuildCommandSets(t *testing.T) {
	a := &interfaces.Manifest{
		ID: "a",
		ApplicationCommands: interfaces.ApplicationCommands{
			Global: []interfaces.Command{{Name: "ping"}, {Name: "help"}},
			Guild: []interfaces.GuildCommand{
				{Command: interfaces.Command{Name: "admin"}, GuildIDs: []string{"g1", "g2"}},
			},
		},
	}
	b := &interfaces.Manifest{
		ID: "b",
		ApplicationCommands: interfaces.ApplicationCommands{
			Global: []interfaces.Command{{Name: "ping", Description: "from b"}},
			Guild: []interfaces.GuildCommand{
				{Command: interfaces.Command{Name: "mod"}, GuildIDs: []string{"g2"}},
			},
		},
	}

	sets := BuildCommandSets([]*interfaces.Manifest{a, b})
	assert.Equal(t, []interfaces.Command{{Name: "ping", Description: "from b"}, {Name: "help"}}, sets.Global)
	assert.Equal(t, []string{"g1", "g2"}, sets.GuildIDs())
	assert.Equal(t, []interfaces.Command{{Name: "admin"}}, sets.Guilds["g1"])
	assert.Equal(t, []interfaces.Command{{Name: "admin"}, {Name: "mod"}}, sets.Guilds["g2"])

	// Guild commands serialize without their guild list.
	data, err := json.Marshal(sets.Guilds["g1"])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "guild_id")

	empty := BuildCommandSets(nil)
	assert.Equal(t, []interfaces.Command{}, empty.Global)
	assert.Empty(t, empty.GuildIDs())
}
