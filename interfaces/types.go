package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PermissionType discriminates permission grants.
type PermissionType string

const (
	// PermissionDiscordBot grants unrestricted Discord API access.
	PermissionDiscordBot PermissionType = "DISCORD_BOT"
	// PermissionDiscordAPIScope grants access to listed path templates.
	PermissionDiscordAPIScope PermissionType = "DISCORD_API_SCOPE"
)

// Permission is one grant in a manifest's permission list. Scopes maps a
// Discord API path template such as "/channels/{id}/messages" to the HTTP
// methods allowed on it.
type Permission struct {
	Type   PermissionType      `json:"type"`
	Scopes map[string][]string `json:"scopes,omitempty"`
}

// UnmarshalJSON accepts both the object form and the bare string form
// ("DISCORD_BOT") of a grant.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*p = Permission{Type: PermissionType(name)}
		return nil
	}
	type plain Permission
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Permission(v)
	return nil
}

// Command is a Discord application command definition. Fields the gateway
// does not interpret are carried through to Discord unchanged.
type Command struct {
	Name                     string            `json:"name"`
	Description              string            `json:"description,omitempty"`
	Type                     int               `json:"type,omitempty"`
	Options                  json.RawMessage   `json:"options,omitempty"`
	NameLocalizations        map[string]string `json:"name_localizations,omitempty"`
	DescriptionLocalizations map[string]string `json:"description_localizations,omitempty"`
	DefaultMemberPermissions *string           `json:"default_member_permissions,omitempty"`
	NSFW                     *bool             `json:"nsfw,omitempty"`
	IntegrationTypes         []int             `json:"integration_types,omitempty"`
	Contexts                 []int             `json:"contexts,omitempty"`
}

// GuildCommand is a command registered in each of GuildIDs.
type GuildCommand struct {
	Command
	GuildIDs []string `json:"guild_id"`
}

type ApplicationCommands struct {
	Global []Command      `json:"global"`
	Guild  []GuildCommand `json:"guild"`
}

// Manifest describes one worker registration.
type Manifest struct {
	Version             string              `json:"version"`
	ID                  string              `json:"id"`
	Name                string              `json:"name,omitempty"`
	BaseURL             string              `json:"base_url"`
	IconURL             string              `json:"icon_url,omitempty"`
	Description         string              `json:"description,omitempty"`
	SignatureAlgorithm  string              `json:"signature_algorithm"`
	PublicKey           string              `json:"public_key"`
	ApplicationCommands ApplicationCommands `json:"application_commands"`
	MessageComponentIDs []string            `json:"message_component_ids"`
	ModalSubmitIDs      []string            `json:"modal_submit_ids"`
	Permissions         []Permission        `json:"permissions"`
}

var (
	// ErrManifestNotFound is returned when no manifest exists for an id or
	// no manifest owns an interaction.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrInvalidManifest wraps every manifest validation failure.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// ValidationError lists every problem found in a manifest.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidManifest, e.Problems)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidManifest }
