package registry

import (
	"fmt"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// LookupKeys derives the index keys that may own an interaction, in
// priority order. Application commands and autocompletes invoked in a
// guild try the guild-scoped command first, so a guild command shadows a
// global command of the same name inside that guild.
//
// Interaction kinds that are never routed return ErrUnknownInteractionType.
func LookupKeys(interaction *interfaces.Interaction) ([]string, error) {
	switch interaction.Type {
	case interfaces.InteractionApplicationCommand, interfaces.InteractionApplicationCommandAutocomplete:
		name := interaction.CommandName()
		if guildID := interaction.GuildContext(); guildID != "" {
			return []string{GuildCommandKey(guildID, name), GlobalCommandKey(name)}, nil
		}
		return []string{GlobalCommandKey(name)}, nil
	case interfaces.InteractionMessageComponent:
		return []string{ComponentKey(interaction.CustomID())}, nil
	case interfaces.InteractionModalSubmit:
		return []string{ModalKey(interaction.CustomID())}, nil
	default:
		return nil, fmt.Errorf("%w: %d", interfaces.ErrUnknownInteractionType, interaction.Type)
	}
}
