package registry

import (
	"fmt"
	"net/url"
	"regexp"
	"unicode/utf8"

	"github.com/blang/semver/v4"
	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// SupportedManifestMajor is the manifest schema major version accepted on
// registration.
const SupportedManifestMajor = 1

// Discord limits, in characters.
const (
	MaxCommandNameLength = 32
	MaxCustomIDLength    = 100
)

var manifestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

type ValidationOptions struct {
	// AllowInsecureBaseURL permits http:// worker base URLs (local development).
	AllowInsecureBaseURL bool
}

// ValidateManifest checks a manifest before it is accepted for
// registration. All problems are collected into a single
// *interfaces.ValidationError.
func ValidateManifest(m *interfaces.Manifest, opts ValidationOptions) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !manifestIDPattern.MatchString(m.ID) {
		addf("id %q must match %s", m.ID, manifestIDPattern)
	}

	if v, err := semver.ParseTolerant(m.Version); err != nil {
		addf("version %q is not a semantic version", m.Version)
	} else if v.Major != SupportedManifestMajor {
		addf("version %s is not supported, expected %d.x", v, SupportedManifestMajor)
	}

	if u, err := url.Parse(m.BaseURL); err != nil || u.Host == "" {
		addf("base_url %q is not an absolute URL", m.BaseURL)
	} else if u.Scheme != "https" && !(opts.AllowInsecureBaseURL && u.Scheme == "http") {
		addf("base_url scheme %q is not allowed", u.Scheme)
	}

	if err := cryptoutils.ValidatePublicKey(m.SignatureAlgorithm, m.PublicKey); err != nil {
		addf("public_key: %v", err)
	}

	seen := make(map[string]bool)
	for i, cmd := range m.ApplicationCommands.Global {
		if cmd.Name == "" {
			addf("application_commands.global[%d]: name is required", i)
			continue
		}
		if utf8.RuneCountInString(cmd.Name) > MaxCommandNameLength {
			addf("application_commands.global[%d]: name exceeds %d characters", i, MaxCommandNameLength)
		}
		if seen[cmd.Name] {
			addf("application_commands.global: duplicate command %q", cmd.Name)
		}
		seen[cmd.Name] = true
	}

	seenGuild := make(map[string]bool)
	for i, cmd := range m.ApplicationCommands.Guild {
		if cmd.Name == "" {
			addf("application_commands.guild[%d]: name is required", i)
			continue
		}
		if utf8.RuneCountInString(cmd.Name) > MaxCommandNameLength {
			addf("application_commands.guild[%d]: name exceeds %d characters", i, MaxCommandNameLength)
		}
		if len(cmd.GuildIDs) == 0 {
			addf("application_commands.guild[%d]: guild_id is required", i)
		}
		for _, guildID := range cmd.GuildIDs {
			key := GuildCommandKey(guildID, cmd.Name)
			if seenGuild[key] {
				addf("application_commands.guild: duplicate command %q in guild %s", cmd.Name, guildID)
			}
			seenGuild[key] = true
		}
	}

	for i, id := range m.MessageComponentIDs {
		if id == "" {
			addf("message_component_ids[%d] is empty", i)
		} else if utf8.RuneCountInString(id) > MaxCustomIDLength {
			addf("message_component_ids[%d] exceeds %d characters", i, MaxCustomIDLength)
		}
	}
	for i, id := range m.ModalSubmitIDs {
		if id == "" {
			addf("modal_submit_ids[%d] is empty", i)
		} else if utf8.RuneCountInString(id) > MaxCustomIDLength {
			addf("modal_submit_ids[%d] exceeds %d characters", i, MaxCustomIDLength)
		}
	}

	for i, p := range m.Permissions {
		switch p.Type {
		case interfaces.PermissionDiscordBot:
		case interfaces.PermissionDiscordAPIScope:
			if len(p.Scopes) == 0 {
				addf("permissions[%d]: scopes are required", i)
			}
		default:
			addf("permissions[%d]: unknown type %q", i, p.Type)
		}
	}

	if len(problems) > 0 {
		return &interfaces.ValidationError{Problems: problems}
	}
	return nil
}
