package common

// PackageName is used as the Prometheus namespace and the default log service tag.
const PackageName = "hiyocord_nexus"

// Version is overridden at build time via -ldflags "-X github.com/hiyocord/hiyocord-nexus/common.Version=...".
var Version = "dev"
