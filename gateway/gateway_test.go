package gateway

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/discord"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/kms"
	"github.com/hiyocord/hiyocord-nexus/provenance"
	"github.com/hiyocord/hiyocord-nexus/registry"
	"github.com/hiyocord/hiyocord-nexus/storage"
	"github.com/hiyocord/hiyocord-nexus/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateKeyPair(t *testing.T) *cryptoutils.KeyPair {
	t.Helper()
	alg, err := cryptoutils.LookupAlgorithm(string(cryptoutils.Ed25519))
	require.NoError(t, err)
	kp, err := alg.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

type fixture struct {
	repo      *registry.Repository
	keyring   *kms.SimpleKeyring
	gatewayKP *cryptoutils.KeyPair
	workerKP  *cryptoutils.KeyPair
	tokens    *provenance.Issuer
	auth      *WorkerAuthenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)

	gatewayKP := generateKeyPair(t)
	keyring, err := kms.NewSimpleKeyring(secret)
	require.NoError(t, err)
	keyring, err = keyring.WithSigningKey(cryptoutils.Ed25519, gatewayKP.PrivateKey)
	require.NoError(t, err)
	keyring = keyring.WithBotToken("bot-secret")

	provenanceSecret, err := keyring.ProvenanceSecret()
	require.NoError(t, err)
	tokens, err := provenance.NewIssuer(provenanceSecret)
	require.NoError(t, err)

	return &fixture{
		repo:      registry.NewRepository(storage.NewMemoryKV(), testLogger()),
		keyring:   keyring,
		gatewayKP: gatewayKP,
		workerKP:  generateKeyPair(t),
		tokens:    tokens,
		auth:      NewWorkerAuthenticator(cryptoutils.DefaultReplayWindow),
	}
}

func (f *fixture) manifest(id, baseURL string) *interfaces.Manifest {
	return &interfaces.Manifest{
		Version:            "1.0.0",
		ID:                 id,
		BaseURL:            baseURL,
		SignatureAlgorithm: string(cryptoutils.Ed25519),
		PublicKey:          f.workerKP.PublicKey,
		ApplicationCommands: interfaces.ApplicationCommands{
			Global: []interfaces.Command{{Name: "ping", Description: "Ping"}},
			Guild:  []interfaces.GuildCommand{},
		},
		Permissions: []interfaces.Permission{{
			Type:   interfaces.PermissionDiscordAPIScope,
			Scopes: map[string][]string{"/channels/{id}/messages": {"POST"}},
		}},
	}
}

// workerSign signs like a worker SDK would.
func (f *fixture) workerSign(t *testing.T, headers http.Header, body []byte) http.Header {
	t.Helper()
	signed, err := cryptoutils.SignRequest(cryptoutils.Ed25519, f.workerKP.PrivateKey, headers, body)
	require.NoError(t, err)
	return signed
}

type receivedInteraction struct {
	header http.Header
	host   string
	path   string
	body   []byte
}

func TestTransfer_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var received []receivedInteraction
	worker := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, receivedInteraction{header: r.Header.Clone(), host: r.Host, path: r.URL.Path, body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":4,"data":{"content":"pong"}}`))
	}))
	defer worker.Close()

	svc := NewManifestService(f.repo, nil, f.auth, registry.ValidationOptions{}, testLogger())
	_, err := svc.Register(ctx, f.manifest("svc1", worker.URL))
	require.NoError(t, err)

	transfer := NewInteractionTransfer(f.repo, f.keyring, f.tokens, TransferConfig{}, testLogger())
	transfer.httpClient = worker.Client()

	body := []byte(`{"id":"int-1","application_id":"app1","type":2,"data":{"id":"c1","name":"ping"}}`)
	incoming := http.Header{
		"Content-Type":          {"application/json"},
		"X-Signature-Ed25519":   {"abc"},
		"X-Signature-Timestamp": {"1700000000"},
		"X-Hiyocord-Spoofed":    {"1"},
	}
	result, err := transfer.Transfer(ctx, incoming, body)
	require.NoError(t, err)
	assert.Equal(t, "svc1", result.ManifestID)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.JSONEq(t, `{"type":4,"data":{"content":"pong"}}`, string(result.Body))

	mu.Lock()
	require.Len(t, received, 1)
	got := received[0]
	mu.Unlock()

	assert.Equal(t, "/interactions", got.path)
	workerURL, err := url.Parse(worker.URL)
	require.NoError(t, err)
	assert.Equal(t, workerURL.Host, got.host)
	assert.Equal(t, body, got.body)
	assert.Empty(t, got.header.Get("X-Hiyocord-Spoofed"))
	assert.Equal(t, "abc", got.header.Get("X-Signature-Ed25519"))

	ok, reason := cryptoutils.VerifyRequest(f.gatewayKP.PublicKey, got.header, got.body)
	assert.True(t, ok, "gateway signature rejected: %v", reason)
	assert.True(t, cryptoutils.IsFresh(got.header.Get(cryptoutils.HeaderTimestamp), time.Now()))

	claims, err := f.tokens.Verify(got.header.Get(provenance.Header))
	require.NoError(t, err)
	assert.Equal(t, "svc1", claims.ManifestID)
	assert.Equal(t, "int-1", claims.InteractionID)
}

func TestTransfer_LocalOutcomes(t *testing.T) {
	f := newFixture(t)
	transfer := NewInteractionTransfer(f.repo, f.keyring, f.tokens, TransferConfig{}, testLogger())
	ctx := context.Background()

	result, err := transfer.Transfer(ctx, http.Header{}, []byte(`{"id":"1","type":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":1}`, string(result.Body))

	result, err = transfer.Transfer(ctx, http.Header{}, []byte(`{"id":"1","type":2,"data":{"name":"unknown"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":4,"data":{"content":"This interaction is not registered in Hiyocord Nexus."}}`, string(result.Body))

	_, err = transfer.Transfer(ctx, http.Header{}, []byte(`{"id":"1","type":9}`))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))

	_, err = transfer.Transfer(ctx, http.Header{}, []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestTransfer_WorkerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer worker.Close()

	require.NoError(t, f.repo.Save(ctx, f.manifest("svc1", worker.URL)))
	transfer := NewInteractionTransfer(f.repo, f.keyring, f.tokens, TransferConfig{}, testLogger())

	_, err := transfer.Transfer(ctx, http.Header{}, []byte(`{"id":"1","type":2,"data":{"name":"ping"}}`))
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))

	worker.Close()
	_, err = transfer.Transfer(ctx, http.Header{}, []byte(`{"id":"2","type":2,"data":{"name":"ping"}}`))
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}

type fakeDiscord struct {
	mu       sync.Mutex
	status   int
	requests []*http.Request
	bodies   []string
}

func (d *fakeDiscord) Forward(_ context.Context, method, apiPath, rawQuery string, headers http.Header, body io.Reader) (*http.Response, error) {
	data, _ := io.ReadAll(body)
	req := httptest.NewRequest(method, "https://discord.test/api/v10"+apiPath, nil)
	req.Header = headers
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.bodies = append(d.bodies, string(data))
	d.mu.Unlock()

	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"id":"m1"}`)),
	}, nil
}

func TestDiscordProxy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Save(ctx, f.manifest("svc1", "https://svc1.example")))

	body := []byte(`{"content":"hello"}`)
	signedRequest := func(method, path string, extra http.Header) *ProxyRequest {
		headers := http.Header{"Content-Type": {"application/json"}, HeaderManifestID: {"svc1"}}
		for k, v := range extra {
			headers[k] = v
		}
		return &ProxyRequest{Method: method, Path: path, Header: f.workerSign(t, headers, body), Body: body}
	}

	t.Run("allowed", func(t *testing.T) {
		discord := &fakeDiscord{}
		proxy := NewDiscordProxy(f.repo, f.auth, f.tokens, discord, testLogger())

		resp, err := proxy.Forward(ctx, signedRequest(http.MethodPost, "/channels/123/messages", nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		require.Len(t, discord.requests, 1)
		forwarded := discord.requests[0].Header
		assert.Empty(t, forwarded.Get("Authorization"))
		assert.Empty(t, forwarded.Get(cryptoutils.HeaderSignature))
		assert.Empty(t, forwarded.Get(cryptoutils.HeaderTimestamp))
		assert.Empty(t, forwarded.Get(HeaderManifestID))
		assert.Equal(t, "application/json", forwarded.Get("Content-Type"))
		assert.Equal(t, string(body), discord.bodies[0])
	})

	t.Run("denied before upstream", func(t *testing.T) {
		discord := &fakeDiscord{}
		proxy := NewDiscordProxy(f.repo, f.auth, f.tokens, discord, testLogger())

		_, err := proxy.Forward(ctx, signedRequest(http.MethodGet, "/channels/123/messages", nil))
		var permErr *PermissionError
		require.ErrorAs(t, err, &permErr)
		assert.Equal(t, "svc1", permErr.ManifestID)
		assert.Equal(t, "GET /channels/123/messages", permErr.RequiredScope)
		assert.Equal(t, http.StatusForbidden, StatusCode(err))
		assert.Empty(t, discord.requests)
	})

	t.Run("provenance token identifies manifest", func(t *testing.T) {
		discord := &fakeDiscord{}
		proxy := NewDiscordProxy(f.repo, f.auth, f.tokens, discord, testLogger())

		token, err := f.tokens.Issue("svc1", "int-1", time.Minute)
		require.NoError(t, err)
		headers := f.workerSign(t, http.Header{"Authorization": {"Bot " + token}}, body)
		resp, err := proxy.Forward(ctx, &ProxyRequest{Method: http.MethodPost, Path: "/channels/1/messages", Header: headers, Body: body})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Empty(t, discord.requests[0].Header.Get("Authorization"))
	})

	t.Run("discord 4xx passes through", func(t *testing.T) {
		proxy := NewDiscordProxy(f.repo, f.auth, f.tokens, &fakeDiscord{status: http.StatusNotFound}, testLogger())
		resp, err := proxy.Forward(ctx, signedRequest(http.MethodPost, "/channels/1/messages", nil))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("discord 5xx is upstream failure", func(t *testing.T) {
		proxy := NewDiscordProxy(f.repo, f.auth, f.tokens, &fakeDiscord{status: http.StatusServiceUnavailable}, testLogger())
		_, err := proxy.Forward(ctx, signedRequest(http.MethodPost, "/channels/1/messages", nil))
		assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	})

	authFailures := []struct {
		name string
		req  func() *ProxyRequest
	}{
		{"unsigned", func() *ProxyRequest {
			return &ProxyRequest{Method: http.MethodPost, Path: "/channels/1/messages", Header: http.Header{HeaderManifestID: {"svc1"}}, Body: body}
		}},
		{"tampered body", func() *ProxyRequest {
			req := signedRequest(http.MethodPost, "/channels/1/messages", nil)
			req.Body = []byte(`{"content":"evil"}`)
			return req
		}},
		{"unknown manifest", func() *ProxyRequest {
			req := signedRequest(http.MethodPost, "/channels/1/messages", nil)
			req.Header.Set(HeaderManifestID, "other")
			return req
		}},
		{"no manifest id", func() *ProxyRequest {
			req := signedRequest(http.MethodPost, "/channels/1/messages", nil)
			req.Header.Del(HeaderManifestID)
			return req
		}},
		{"bad token", func() *ProxyRequest {
			return signedRequest(http.MethodPost, "/channels/1/messages", http.Header{"Authorization": {"Bot not-a-jwt"}})
		}},
		{"stale timestamp", func() *ProxyRequest {
			headers := http.Header{HeaderManifestID: {"svc1"}}
			signed, err := cryptoutils.DefaultCodec.SignRequest(cryptoutils.Ed25519, f.workerKP.PrivateKey, headers, body, time.Now().Add(-2*time.Minute))
			require.NoError(t, err)
			return &ProxyRequest{Method: http.MethodPost, Path: "/channels/1/messages", Header: signed, Body: body}
		}},
	}
	for _, tc := range authFailures {
		t.Run(tc.name, func(t *testing.T) {
			discord := &fakeDiscord{}
			proxy := NewDiscordProxy(f.repo, f.auth, f.tokens, discord, testLogger())
			_, err := proxy.Forward(ctx, tc.req())
			require.ErrorIs(t, err, ErrAuthentication)
			assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
			assert.Equal(t, "unauthorized", PublicMessage(err))
			assert.Empty(t, discord.requests)
		})
	}
}

func TestDiscordProxy_RejectsAmbiguousPaths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.manifest("svc1", "https://svc1.example")
	m.Permissions[0].Scopes["/channels/{channel}/messages/{message}"] = []string{"DELETE"}
	require.NoError(t, f.repo.Save(ctx, m))

	var mu sync.Mutex
	var upstreamPaths []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		upstreamPaths = append(upstreamPaths, r.URL.EscapedPath())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	client := discord.NewClient(upstream.URL+"/api/v10", f.keyring, testLogger())
	proxy := NewDiscordProxy(f.repo, f.auth, f.tokens, client, testLogger())

	send := func(path string) (*http.Response, error) {
		headers := f.workerSign(t, http.Header{HeaderManifestID: {"svc1"}}, nil)
		return proxy.Forward(ctx, &ProxyRequest{Method: http.MethodDelete, Path: path, Header: headers})
	}

	for _, path := range []string{
		"/channels/1/messages/..",
		"/channels/1/messages/.",
		"/channels/1/messages/%2e%2e",
		"/channels/1/messages/..%2F..%2F..%2Fguilds%2F9%2Fmembers%2F5",
		"/channels//1/messages/2",
		"/channels/1/messages/2/",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := send(path)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, http.StatusBadRequest, StatusCode(err))
		})
	}

	mu.Lock()
	assert.Empty(t, upstreamPaths)
	mu.Unlock()

	resp, err := send("/channels/1/messages/2")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	mu.Lock()
	assert.Equal(t, []string{"/api/v10/channels/1/messages/2"}, upstreamPaths)
	mu.Unlock()
}

type fakeSyncer struct {
	reasons []string
}

func (s *fakeSyncer) Enqueue(reason string) (*tasks.Task, error) {
	s.reasons = append(s.reasons, reason)
	return &tasks.Task{ID: reason, Reason: reason}, nil
}

func TestManifestService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	syncer := &fakeSyncer{}
	svc := NewManifestService(f.repo, syncer, f.auth, registry.ValidationOptions{}, testLogger())

	m := f.manifest("svc1", "https://svc1.example")
	m.ApplicationCommands.Global = append(m.ApplicationCommands.Global, interfaces.Command{Name: "old"})
	task, err := svc.Register(ctx, m)
	require.NoError(t, err)
	require.NotNil(t, task)

	// Replacing drops indices of the previous version.
	replacement := f.manifest("svc1", "https://svc1.example")
	_, err = svc.Register(ctx, replacement)
	require.NoError(t, err)

	_, err = f.repo.FindByInteraction(ctx, &interfaces.Interaction{Type: interfaces.InteractionApplicationCommand, Data: &interfaces.InteractionData{Name: "old"}})
	assert.ErrorIs(t, err, interfaces.ErrManifestNotFound)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	invalid := f.manifest("svc2", "http://insecure.example")
	_, err = svc.Register(ctx, invalid)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	_, err = svc.Get(ctx, "svc2")
	assert.ErrorIs(t, err, interfaces.ErrManifestNotFound, "invalid manifests are never stored")

	_, err = svc.Delete(ctx, "svc1")
	require.NoError(t, err)
	_, err = svc.Delete(ctx, "svc1")
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	assert.Equal(t, []string{"register svc1", "register svc1", "delete svc1"}, syncer.reasons)
}

func TestManifestService_Authentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewManifestService(f.repo, nil, f.auth, registry.ValidationOptions{}, testLogger())

	m := f.manifest("svc1", "https://svc1.example")
	body, err := json.Marshal(m)
	require.NoError(t, err)

	// New manifest: signed with its own key.
	headers := f.workerSign(t, http.Header{"Content-Type": {"application/json"}}, body)
	require.NoError(t, svc.AuthenticateRegistration(ctx, m, headers, body))
	_, err = svc.Register(ctx, m)
	require.NoError(t, err)

	// Replacement with a new key must still be signed with the stored key.
	rotated := f.manifest("svc1", "https://svc1.example")
	newKP := generateKeyPair(t)
	rotated.PublicKey = newKP.PublicKey
	rotatedBody, err := json.Marshal(rotated)
	require.NoError(t, err)

	selfSigned, err := cryptoutils.SignRequest(cryptoutils.Ed25519, newKP.PrivateKey, http.Header{}, rotatedBody)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.AuthenticateRegistration(ctx, rotated, selfSigned, rotatedBody), ErrAuthentication)

	oldSigned := f.workerSign(t, http.Header{}, rotatedBody)
	assert.NoError(t, svc.AuthenticateRegistration(ctx, rotated, oldSigned, rotatedBody))

	deleteHeaders := f.workerSign(t, http.Header{}, nil)
	assert.NoError(t, svc.AuthenticateDeletion(ctx, "svc1", deleteHeaders, nil))
	assert.ErrorIs(t, svc.AuthenticateDeletion(ctx, "nope", deleteHeaders, nil), interfaces.ErrManifestNotFound)

	// Algorithm header must match the manifest's declared algorithm.
	alg, err := cryptoutils.LookupAlgorithm(string(cryptoutils.ECDSAP256))
	require.NoError(t, err)
	ecKP, err := alg.GenerateKeyPair()
	require.NoError(t, err)
	ecSigned, err := cryptoutils.SignRequest(cryptoutils.ECDSAP256, ecKP.PrivateKey, http.Header{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.AuthenticateDeletion(ctx, "svc1", ecSigned, nil), ErrAuthentication)
}

func TestManifestService_WorkerPermissionTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewManifestService(f.repo, nil, f.auth, registry.ValidationOptions{}, testLogger()).
		WithWorkerPermissionTypes(interfaces.PermissionDiscordAPIScope)

	signed := func(m *interfaces.Manifest) (http.Header, []byte) {
		body, err := json.Marshal(m)
		require.NoError(t, err)
		return f.workerSign(t, http.Header{"Content-Type": {"application/json"}}, body), body
	}
	withBot := func(m *interfaces.Manifest) *interfaces.Manifest {
		m.Permissions = append(m.Permissions, interfaces.Permission{Type: interfaces.PermissionDiscordBot})
		return m
	}

	// New manifest asking for a restricted grant.
	greedy := withBot(f.manifest("svc1", "https://svc1.example"))
	headers, body := signed(greedy)
	err := svc.AuthenticateRegistration(ctx, greedy, headers, body)
	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "DISCORD_BOT", permErr.RequiredScope)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))

	// Scoped grants are fine.
	scoped := f.manifest("svc1", "https://svc1.example")
	headers, body = signed(scoped)
	require.NoError(t, svc.AuthenticateRegistration(ctx, scoped, headers, body))
	_, err = svc.Register(ctx, scoped)
	require.NoError(t, err)

	// A replacement cannot escalate.
	headers, body = signed(greedy)
	assert.ErrorIs(t, svc.AuthenticateRegistration(ctx, greedy, headers, body), ErrPermissionDenied)

	// A grant stored by the operator survives worker re-registration.
	_, err = svc.Register(ctx, withBot(f.manifest("svc1", "https://svc1.example")))
	require.NoError(t, err)
	renewed := withBot(f.manifest("svc1", "https://svc1.example"))
	headers, body = signed(renewed)
	assert.NoError(t, svc.AuthenticateRegistration(ctx, renewed, headers, body))
}

func TestStatusCode(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{nil, http.StatusOK},
		{unauthorized(assert.AnError), http.StatusUnauthorized},
		{&PermissionError{}, http.StatusForbidden},
		{interfaces.ErrManifestNotFound, http.StatusNotFound},
		{&interfaces.ValidationError{Problems: []string{"x"}}, http.StatusBadRequest},
		{configuration(interfaces.ErrKeyNotConfigured), http.StatusInternalServerError},
		{&RequestError{StatusCode: http.StatusBadGateway, Err: ErrUpstream}, http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, StatusCode(tc.err), "%v", tc.err)
	}

	assert.Equal(t, "gateway misconfigured", PublicMessage(configuration(interfaces.ErrKeyNotConfigured)))
	assert.Equal(t, "internal server error", PublicMessage(assert.AnError))
}
