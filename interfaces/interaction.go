package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
)

// InteractionType is Discord's interaction type discriminator.
type InteractionType int

const (
	InteractionPing                           InteractionType = 1
	InteractionApplicationCommand             InteractionType = 2
	InteractionMessageComponent               InteractionType = 3
	InteractionApplicationCommandAutocomplete InteractionType = 4
	InteractionModalSubmit                    InteractionType = 5
)

// ErrUnknownInteractionType is a protocol error, distinct from a routing miss.
var ErrUnknownInteractionType = errors.New("unknown interaction type")

type InteractionData struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	CustomID string `json:"custom_id,omitempty"`
}

type InteractionGuild struct {
	ID string `json:"id"`
}

// Interaction holds the routing-relevant fields of a Discord interaction.
type Interaction struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"application_id"`
	Type          InteractionType   `json:"type"`
	GuildID       string            `json:"guild_id,omitempty"`
	Guild         *InteractionGuild `json:"guild,omitempty"`
	Data          *InteractionData  `json:"data,omitempty"`
}

// GuildContext returns the guild the interaction was invoked in, or "".
func (i *Interaction) GuildContext() string {
	if i.GuildID != "" {
		return i.GuildID
	}
	if i.Guild != nil {
		return i.Guild.ID
	}
	return ""
}

func (i *Interaction) CommandName() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.Name
}

func (i *Interaction) CustomID() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.CustomID
}

// ParseInteraction decodes a raw interaction payload.
func ParseInteraction(body []byte) (*Interaction, error) {
	var interaction Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		return nil, fmt.Errorf("failed to decode interaction: %w", err)
	}
	if interaction.Type == 0 {
		return nil, errors.New("interaction type is missing")
	}
	return &interaction, nil
}
