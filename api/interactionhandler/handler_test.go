package interactionhandler

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hiyocord/hiyocord-nexus/discord"
	"github.com/hiyocord/hiyocord-nexus/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubTransfer struct {
	calls  int
	result *gateway.TransferResult
	err    error
}

func (s *stubTransfer) Transfer(_ context.Context, _ http.Header, _ []byte) (*gateway.TransferResult, error) {
	s.calls++
	return s.result, s.err
}

func setupTest(t *testing.T, transfer *stubTransfer) (*chi.Mux, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	mux := chi.NewRouter()
	NewHandler(transfer, pub, getTestLogger()).RegisterRoutes(mux)
	return mux, priv
}

func discordRequest(priv ed25519.PrivateKey, body []byte) *http.Request {
	ts := "1700000000"
	sig := ed25519.Sign(priv, append([]byte(ts), body...))
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
	req.Header.Set(discord.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(discord.HeaderTimestamp, ts)
	return req
}

func TestHandleInteraction(t *testing.T) {
	transfer := &stubTransfer{result: &gateway.TransferResult{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"type":4,"data":{"content":"pong"}}`),
	}}
	mux, priv := setupTest(t, transfer)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, discordRequest(priv, []byte(`{"type":2,"data":{"name":"ping"}}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"type":4,"data":{"content":"pong"}}`, rr.Body.String())
	assert.Equal(t, 1, transfer.calls)
}

func TestHandleInteraction_BadSignature(t *testing.T) {
	transfer := &stubTransfer{}
	mux, priv := setupTest(t, transfer)

	tests := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{"missing signature", func(r *http.Request) { r.Header.Del(discord.HeaderSignature) }},
		{"missing timestamp", func(r *http.Request) { r.Header.Del(discord.HeaderTimestamp) }},
		{"wrong timestamp", func(r *http.Request) { r.Header.Set(discord.HeaderTimestamp, "1700000001") }},
		{"not hex", func(r *http.Request) { r.Header.Set(discord.HeaderSignature, "zz") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := discordRequest(priv, []byte(`{"type":1}`))
			tt.mutate(req)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rr.Body.String())
		})
	}
	assert.Zero(t, transfer.calls)
}

func TestHandleInteraction_TransferError(t *testing.T) {
	transfer := &stubTransfer{err: &gateway.RequestError{StatusCode: http.StatusBadRequest, Err: gateway.ErrValidation}}
	mux, priv := setupTest(t, transfer)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, discordRequest(priv, []byte(`{"type":99}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
