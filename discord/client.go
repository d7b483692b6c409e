package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hiyocord/hiyocord-nexus/common"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// DefaultAPIBase is the Discord REST API root, version included.
const DefaultAPIBase = "https://discord.com/api/v10"

// TokenSource supplies the bot credential per call.
type TokenSource interface {
	BotToken() (string, error)
}

// APIError is a non-2xx answer from Discord.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Discord REST API with the gateway's bot token.
type Client struct {
	apiBase    string
	tokens     TokenSource
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Discord REST client.
//
// Parameters:
//   - apiBase: API root including the version, e.g. DefaultAPIBase
//   - tokens: source of the bot token
//   - log: logger
//   - timeout: request timeout (optional, default 30 seconds)
func NewClient(apiBase string, tokens TokenSource, log *slog.Logger, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	return &Client{
		apiBase: strings.TrimSuffix(apiBase, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
		log: log,
	}
}

// PutGlobalCommands replaces the application's global commands.
func (c *Client) PutGlobalCommands(ctx context.Context, applicationID string, commands []interfaces.Command) error {
	path := fmt.Sprintf("/applications/%s/commands", applicationID)
	return c.putCommands(ctx, path, commands)
}

// PutGuildCommands replaces the application's commands in one guild. An
// empty list removes every guild command.
func (c *Client) PutGuildCommands(ctx context.Context, applicationID, guildID string, commands []interfaces.Command) error {
	path := fmt.Sprintf("/applications/%s/guilds/%s/commands", applicationID, guildID)
	return c.putCommands(ctx, path, commands)
}

func (c *Client) putCommands(ctx context.Context, path string, commands []interfaces.Command) error {
	if commands == nil {
		commands = []interfaces.Command{}
	}
	body, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("failed to marshal commands: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	resp, err := c.Forward(ctx, http.MethodPut, path, "", headers, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Debug("Commands registered", slog.String("path", path), slog.Int("count", len(commands)))
	return nil
}

// Forward sends one request to apiPath under the API root with the bot
// token as credential, and returns Discord's response as is. headers must
// already be free of caller credentials. Forward makes a single attempt.
func (c *Client) Forward(ctx context.Context, method, apiPath, rawQuery string, headers http.Header, body io.Reader) (*http.Response, error) {
	token, err := c.tokens.BotToken()
	if err != nil {
		return nil, err
	}

	target := c.apiBase + "/" + strings.TrimPrefix(apiPath, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build discord request: %w", err)
	}
	for name, values := range headers {
		req.Header[name] = values
	}
	req.Header.Set("Authorization", "Bot "+token)
	req.Header.Set("User-Agent", fmt.Sprintf("DiscordBot (https://github.com/hiyocord/hiyocord-nexus, %s)", common.Version))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord request failed: %w", err)
	}
	return resp, nil
}
