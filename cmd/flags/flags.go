package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hiyocord/hiyocord-nexus/api"
	"github.com/hiyocord/hiyocord-nexus/common"
	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/discord"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/provenance"
	"github.com/hiyocord/hiyocord-nexus/sessions"
	"github.com/hiyocord/hiyocord-nexus/tasks"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: []string{"NEXUS_LOG_JSON"},
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: []string{"NEXUS_LOG_DEBUG"},
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	Usage:   "generate a uuid and add to all log messages",
	EnvVars: []string{"NEXUS_LOG_UID"},
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "log-service",
		Value:   service,
		Usage:   "add 'service' tag to logs",
		EnvVars: []string{"NEXUS_LOG_SERVICE"},
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	Usage:   "enable pprof debug endpoint",
	EnvVars: []string{"NEXUS_PPROF"},
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	Usage:   "seconds to wait after marking the server not ready on shutdown",
	EnvVars: []string{"NEXUS_DRAIN_SECONDS"},
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics, empty to disable",
	EnvVars: []string{"NEXUS_METRICS_ADDR"},
}
var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: []string{"NEXUS_LISTEN_ADDR"},
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

var KVURIFlag = &cli.StringFlag{
	Name:    "kv-uri",
	Value:   "memory://",
	Usage:   "manifest store backend: memory://, file://, redis://, s3://, vault://, mongodb://, postgres://",
	EnvVars: []string{"NEXUS_KV_URI"},
}

var KVMirrorURIFlag = &cli.StringSliceFlag{
	Name:    "kv-mirror-uri",
	Usage:   "additional backend receiving a copy of every write (repeatable)",
	EnvVars: []string{"NEXUS_KV_MIRROR_URIS"},
}

var DiscordApplicationIDFlag = &cli.StringFlag{
	Name:    "discord-application-id",
	Usage:   "Discord application id commands are registered for",
	EnvVars: []string{"NEXUS_DISCORD_APPLICATION_ID"},
}
var DiscordPublicKeyFlag = &cli.StringFlag{
	Name:     "discord-public-key",
	Required: true,
	Usage:    "hex Ed25519 public key of the Discord application",
	EnvVars:  []string{"NEXUS_DISCORD_PUBLIC_KEY"},
}
var DiscordBotTokenFlag = &cli.StringFlag{
	Name:    "discord-bot-token",
	Usage:   "Discord bot token injected into proxied API calls",
	EnvVars: []string{"NEXUS_DISCORD_BOT_TOKEN"},
}
var DiscordAPIBaseFlag = &cli.StringFlag{
	Name:    "discord-api-base",
	Value:   discord.DefaultAPIBase,
	Usage:   "Discord REST API root",
	EnvVars: []string{"NEXUS_DISCORD_API_BASE"},
}

var NexusPrivateKeyFlag = &cli.StringFlag{
	Name:     "nexus-private-key",
	Required: true,
	Usage:    "base64 PKCS#8 private key the gateway signs forwarded interactions with",
	EnvVars:  []string{"NEXUS_PRIVATE_KEY"},
}
var NexusSignatureAlgorithmFlag = &cli.StringFlag{
	Name:    "nexus-signature-algorithm",
	Value:   string(cryptoutils.Ed25519),
	Usage:   "algorithm of --nexus-private-key",
	EnvVars: []string{"NEXUS_SIGNATURE_ALGORITHM"},
}

var TokenSecretFlag = &cli.StringFlag{
	Name:    "token-secret",
	Usage:   "master secret for provenance and session tokens, at least 32 bytes",
	EnvVars: []string{"NEXUS_TOKEN_SECRET"},
}
var TokenSecretShareFlag = &cli.StringSliceFlag{
	Name:    "token-secret-share",
	Usage:   "Shamir share of the master secret (repeatable), alternative to --token-secret",
	EnvVars: []string{"NEXUS_TOKEN_SECRET_SHARES"},
}

var ProvenanceTTLFlag = &cli.DurationFlag{
	Name:    "provenance-ttl",
	Value:   provenance.DefaultTTL,
	Usage:   "lifetime of provenance tokens issued with forwarded interactions, 15s to 5m",
	EnvVars: []string{"NEXUS_PROVENANCE_TTL"},
}
var WorkerTimeoutFlag = &cli.DurationFlag{
	Name:    "worker-timeout",
	Value:   2500 * time.Millisecond,
	Usage:   "timeout for forwarding an interaction to a worker",
	EnvVars: []string{"NEXUS_WORKER_TIMEOUT"},
}
var AllowInsecureWorkerURLsFlag = &cli.BoolFlag{
	Name:    "allow-insecure-worker-urls",
	Value:   false,
	Usage:   "accept http:// worker base URLs (development only)",
	EnvVars: []string{"NEXUS_ALLOW_INSECURE_WORKER_URLS"},
}
var CommandSyncQueueFlag = &cli.IntFlag{
	Name:    "command-sync-queue",
	Value:   tasks.DefaultQueueSize,
	Usage:   "pending command sync tasks accepted before new ones are rejected",
	EnvVars: []string{"NEXUS_COMMAND_SYNC_QUEUE"},
}
var SessionTTLFlag = &cli.DurationFlag{
	Name:    "session-ttl",
	Value:   sessions.DefaultTTL,
	Usage:   "lifetime of dashboard sessions",
	EnvVars: []string{"NEXUS_SESSION_TTL"},
}
var DashboardOriginFlag = &cli.StringSliceFlag{
	Name:    "dashboard-origin",
	Usage:   "origin allowed to call the dashboard API with credentials (repeatable)",
	EnvVars: []string{"NEXUS_DASHBOARD_ORIGIN"},
}
var WorkerPermissionTypesFlag = &cli.StringSliceFlag{
	Name:    "worker-permission-types",
	Value:   cli.NewStringSlice(string(interfaces.PermissionDiscordAPIScope), string(interfaces.PermissionDiscordBot)),
	Usage:   "permission types a worker may request in a self-signed registration",
	EnvVars: []string{"NEXUS_WORKER_PERMISSION_TYPES"},
}

var GatewayFlags = []cli.Flag{
	ListenAddrFlag,
	KVURIFlag,
	KVMirrorURIFlag,
	DiscordApplicationIDFlag,
	DiscordPublicKeyFlag,
	DiscordBotTokenFlag,
	DiscordAPIBaseFlag,
	NexusPrivateKeyFlag,
	NexusSignatureAlgorithmFlag,
	TokenSecretFlag,
	TokenSecretShareFlag,
	ProvenanceTTLFlag,
	WorkerTimeoutFlag,
	AllowInsecureWorkerURLsFlag,
	CommandSyncQueueFlag,
	SessionTTLFlag,
	DashboardOriginFlag,
	WorkerPermissionTypesFlag,
}
