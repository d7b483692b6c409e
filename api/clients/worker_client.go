package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hiyocord/hiyocord-nexus/api"
	"github.com/hiyocord/hiyocord-nexus/api/proxyhandler"
	"github.com/hiyocord/hiyocord-nexus/common"
	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/gateway"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/provenance"
)

// ErrGatewaySignature is returned by VerifyGatewayRequest for requests not
// signed by the gateway.
var ErrGatewaySignature = errors.New("request is not signed by the gateway")

// WorkerClient is the worker side of the gateway protocol. It signs
// manifest and proxy requests with the worker's private key.
type WorkerClient struct {
	baseURL    string
	manifestID string
	algorithm  cryptoutils.AlgorithmName
	privateKey string
	httpClient *http.Client
}

// NewWorkerClient creates a client for a gateway.
//
// Parameters:
//   - baseURL: The gateway base URL (e.g., "https://nexus.example.com")
//   - manifestID: The id of the worker's manifest
//   - algorithm: The signature algorithm declared in the manifest
//   - privateKey: The worker's base64 PKCS#8 private key
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewWorkerClient(baseURL, manifestID string, algorithm cryptoutils.AlgorithmName, privateKey string, timeout ...time.Duration) *WorkerClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &WorkerClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		manifestID: manifestID,
		algorithm:  algorithm,
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// RegisterManifest creates or replaces the worker's manifest. When
// replacing, the client must hold the key of the currently stored
// manifest even if m carries a new public key.
func (c *WorkerClient) RegisterManifest(ctx context.Context, m *interfaces.Manifest) (*api.ManifestChangeResponse, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	req, err := c.newSignedRequest(ctx, http.MethodPost, c.baseURL+"/manifest", body)
	if err != nil {
		return nil, err
	}
	return c.doManifestChange(req, "register manifest")
}

// DeleteManifest removes the manifest with the given id.
func (c *WorkerClient) DeleteManifest(ctx context.Context, id string) (*api.ManifestChangeResponse, error) {
	req, err := c.newSignedRequest(ctx, http.MethodDelete, c.baseURL+"/manifest/"+id, nil)
	if err != nil {
		return nil, err
	}
	return c.doManifestChange(req, "delete manifest")
}

// GatewayPublicKey fetches the key gateway-forwarded interactions are
// signed with.
func (c *WorkerClient) GatewayPublicKey(ctx context.Context) (*api.PublicKeyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/.well-known/nexus-public-key", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("public key request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("public key request failed with code %d: %s", resp.StatusCode, string(body))
	}

	var result api.PublicKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse public key response: %w", err)
	}
	return &result, nil
}

// DiscordAPI calls the Discord REST API through the gateway proxy.
//
// Parameters:
//   - method: HTTP method of the Discord call
//   - apiPath: Discord API path below /api/v10, e.g. "/channels/1/messages"
//   - body: request body, may be nil
//   - provenanceToken: token received with the interaction being answered;
//     when empty the call is identified by manifest id only
//
// The caller must close the response body.
func (c *WorkerClient) DiscordAPI(ctx context.Context, method, apiPath string, body []byte, provenanceToken string) (*http.Response, error) {
	target := c.baseURL + proxyhandler.PathPrefix + "/" + strings.TrimPrefix(apiPath, "/")

	req, err := c.newRequest(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(gateway.HeaderManifestID, c.manifestID)
	if provenanceToken != "" {
		req.Header.Set("Authorization", "Bot "+provenanceToken)
	}
	if err := c.sign(req, body); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord proxy request failed: %w", err)
	}
	return resp, nil
}

func (c *WorkerClient) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	// Set before signing so the transport adds nothing the signature misses.
	req.Header.Set("User-Agent", common.PackageName+"-worker/"+common.Version)
	req.Header.Set("Accept-Encoding", "identity")
	return req, nil
}

func (c *WorkerClient) sign(req *http.Request, body []byte) error {
	signed, err := cryptoutils.SignRequest(c.algorithm, c.privateKey, req.Header, body)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header = signed
	return nil
}

func (c *WorkerClient) newSignedRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if err := c.sign(req, body); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *WorkerClient) doManifestChange(req *http.Request, action string) (*api.ManifestChangeResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s failed with code %d: %s", action, resp.StatusCode, string(body))
	}

	var result api.ManifestChangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", action, err)
	}
	return &result, nil
}

// VerifyGatewayRequest checks that an interaction delivered to a worker
// was signed by the gateway key and is fresh. It returns the provenance
// token the worker passes back on proxied Discord calls.
func VerifyGatewayRequest(gatewayPublicKey string, headers http.Header, body []byte) (string, error) {
	ok, reason := cryptoutils.VerifyRequest(gatewayPublicKey, headers, body)
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrGatewaySignature, reason)
	}
	if !cryptoutils.IsFresh(headers.Get(cryptoutils.HeaderTimestamp), time.Now()) {
		return "", fmt.Errorf("%w: stale timestamp", ErrGatewaySignature)
	}
	return headers.Get(provenance.Header), nil
}
