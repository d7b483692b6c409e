package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hiyocord/hiyocord-nexus/api/dashboardhandler"
	"github.com/hiyocord/hiyocord-nexus/api/interactionhandler"
	"github.com/hiyocord/hiyocord-nexus/api/manifesthandler"
	"github.com/hiyocord/hiyocord-nexus/api/proxyhandler"
	"github.com/hiyocord/hiyocord-nexus/api/servers"
	"github.com/hiyocord/hiyocord-nexus/cmd/flags"
	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/discord"
	"github.com/hiyocord/hiyocord-nexus/gateway"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/kms"
	"github.com/hiyocord/hiyocord-nexus/provenance"
	"github.com/hiyocord/hiyocord-nexus/registry"
	"github.com/hiyocord/hiyocord-nexus/sessions"
	"github.com/hiyocord/hiyocord-nexus/storage"
	"github.com/hiyocord/hiyocord-nexus/tasks"
	"github.com/urfave/cli/v2"
)

const (
	minProvenanceTTL = 15 * time.Second
	maxProvenanceTTL = provenance.MaxTTL
)

func main() {
	app := &cli.App{
		Name:   "nexus-server",
		Usage:  "Route Discord interactions to registered workers",
		Flags:  append(append(flags.CommonFlags, flags.LogServiceFlagFn("hiyocord-nexus")), flags.GatewayFlags...),
		Action: runGateway,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runGateway(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provenanceTTL := cCtx.Duration(flags.ProvenanceTTLFlag.Name)
	if provenanceTTL < minProvenanceTTL || provenanceTTL > maxProvenanceTTL {
		return fmt.Errorf("--%s must be between %s and %s", flags.ProvenanceTTLFlag.Name, minProvenanceTTL, maxProvenanceTTL)
	}

	discordKey, err := discord.ParsePublicKey(cCtx.String(flags.DiscordPublicKeyFlag.Name))
	if err != nil {
		logger.Error("Invalid Discord public key", "err", err)
		return err
	}

	keyring, err := loadKeyring(cCtx, logger)
	if err != nil {
		logger.Error("Failed to load gateway keys", "err", err)
		return err
	}

	kv, err := openKV(ctx, cCtx.String(flags.KVURIFlag.Name), cCtx.StringSlice(flags.KVMirrorURIFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to open manifest store", "err", err)
		return err
	}
	if closer, ok := kv.(io.Closer); ok {
		defer closer.Close()
	}
	repo := registry.NewRepository(kv, logger)

	provenanceSecret, err := keyring.ProvenanceSecret()
	if err != nil {
		return err
	}
	tokens, err := provenance.NewIssuer(provenanceSecret)
	if err != nil {
		return err
	}

	sessionSecret, err := keyring.SessionSecret()
	if err != nil {
		return err
	}
	sessionManager, err := sessions.NewManager(sessionSecret, cCtx.Duration(flags.SessionTTLFlag.Name))
	if err != nil {
		return err
	}

	discordClient := discord.NewClient(cCtx.String(flags.DiscordAPIBaseFlag.Name), keyring, logger)

	var syncer gateway.CommandSyncer
	var queue *tasks.CommandSyncQueue
	if appID := cCtx.String(flags.DiscordApplicationIDFlag.Name); appID != "" {
		queue = tasks.NewCommandSyncQueue(tasks.CommandSyncConfig{
			ApplicationID: appID,
			QueueSize:     cCtx.Int(flags.CommandSyncQueueFlag.Name),
		}, repo, discordClient, logger)
		go queue.Run(ctx)
		defer queue.Close()
		syncer = queue
	} else {
		logger.Warn("No Discord application id configured, command registration is disabled")
	}

	workerPermissions, err := parsePermissionTypes(cCtx.StringSlice(flags.WorkerPermissionTypesFlag.Name))
	if err != nil {
		logger.Error("Invalid worker permission types", "err", err)
		return err
	}
	dashboardOrigins, err := parseOrigins(cCtx.StringSlice(flags.DashboardOriginFlag.Name))
	if err != nil {
		logger.Error("Invalid dashboard origin", "err", err)
		return err
	}

	auth := gateway.NewWorkerAuthenticator(cryptoutils.DefaultReplayWindow)
	manifests := gateway.NewManifestService(repo, syncer, auth, registry.ValidationOptions{
		AllowInsecureBaseURL: cCtx.Bool(flags.AllowInsecureWorkerURLsFlag.Name),
	}, logger).WithWorkerPermissionTypes(workerPermissions...)
	transfer := gateway.NewInteractionTransfer(repo, keyring, tokens, gateway.TransferConfig{
		TokenTTL: provenanceTTL,
		Timeout:  cCtx.Duration(flags.WorkerTimeoutFlag.Name),
	}, logger)
	proxy := gateway.NewDiscordProxy(repo, auth, tokens, discordClient, logger)

	dashboard := dashboardhandler.NewHandler(manifests, sessionManager, logger).WithAllowedOrigins(dashboardOrigins...)
	if queue != nil {
		dashboard.WithSyncStatus(queue)
	}

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
	server, err := servers.New(cfg,
		interactionhandler.NewHandler(transfer, discordKey, logger),
		proxyhandler.NewHandler(proxy, logger),
		manifesthandler.NewHandler(manifests, keyring, logger),
		dashboard,
	)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// loadKeyring assembles the gateway keyring. The master secret comes from
// --token-secret or is recombined from --token-secret-share values.
func loadKeyring(cCtx *cli.Context, logger *slog.Logger) (*kms.SimpleKeyring, error) {
	secret := []byte(cCtx.String(flags.TokenSecretFlag.Name))
	shares := cCtx.StringSlice(flags.TokenSecretShareFlag.Name)
	switch {
	case len(secret) > 0 && len(shares) > 0:
		return nil, errors.New("--token-secret and --token-secret-share are mutually exclusive")
	case len(shares) > 0:
		combined, err := kms.CombineShares(shares)
		if err != nil {
			return nil, fmt.Errorf("failed to combine token secret shares: %w", err)
		}
		logger.Info("Token secret recombined from shares", slog.Int("shares", len(shares)))
		secret = combined
	case len(secret) == 0:
		return nil, fmt.Errorf("%w: --token-secret or --token-secret-share is required", interfaces.ErrKeyNotConfigured)
	}

	keyring, err := kms.NewSimpleKeyring(secret)
	if err != nil {
		return nil, err
	}
	keyring, err = keyring.WithSigningKey(
		cryptoutils.AlgorithmName(cCtx.String(flags.NexusSignatureAlgorithmFlag.Name)),
		cCtx.String(flags.NexusPrivateKeyFlag.Name),
	)
	if err != nil {
		return nil, err
	}

	if botToken := cCtx.String(flags.DiscordBotTokenFlag.Name); botToken != "" {
		keyring = keyring.WithBotToken(botToken)
	} else {
		logger.Warn("No Discord bot token configured, proxied API calls will fail")
	}
	return keyring, nil
}

func openKV(ctx context.Context, uri string, mirrorURIs []string, logger *slog.Logger) (interfaces.KVStore, error) {
	factory := storage.NewKVFactory(logger)
	open := func(uri string) (interfaces.KVStore, error) {
		loc, err := interfaces.NewKVLocation(uri)
		if err != nil {
			return nil, err
		}
		kv, err := factory.KVStoreFor(ctx, loc)
		if err != nil {
			return nil, err
		}
		if !kv.Available(ctx) {
			logger.Warn("Manifest store is not reachable yet", slog.String("backend", kv.Name()), slog.String("uri", loc.Redacted()))
		}
		return kv, nil
	}

	primary, err := open(uri)
	if err != nil {
		return nil, err
	}
	if len(mirrorURIs) == 0 {
		logger.Info("Manifest store ready", slog.String("backend", primary.Name()))
		return primary, nil
	}

	mirrors := make([]interfaces.KVStore, 0, len(mirrorURIs))
	for _, mirrorURI := range mirrorURIs {
		mirror, err := open(mirrorURI)
		if err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		mirrors = append(mirrors, mirror)
	}
	kv := storage.NewMultiKV(primary, mirrors, logger)
	logger.Info("Manifest store ready", slog.String("backend", kv.Name()))
	return kv, nil
}

func parsePermissionTypes(names []string) ([]interfaces.PermissionType, error) {
	types := make([]interfaces.PermissionType, 0, len(names))
	for _, name := range names {
		switch t := interfaces.PermissionType(strings.ToUpper(strings.TrimSpace(name))); t {
		case interfaces.PermissionDiscordAPIScope, interfaces.PermissionDiscordBot:
			types = append(types, t)
		default:
			return nil, fmt.Errorf("unknown permission type %q", name)
		}
	}
	return types, nil
}

// parseOrigins accepts scheme://host[:port] origins. Wildcards are refused
// since dashboard requests carry the session cookie.
func parseOrigins(origins []string) ([]string, error) {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") || u.Path != "" || strings.Contains(origin, "*") {
			return nil, fmt.Errorf("dashboard origin %q must be scheme://host[:port]", origin)
		}
		out = append(out, origin)
	}
	return out, nil
}
