package registry

import (
	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// Key layout of the manifest store.
const (
	manifestListKey      = "manifests"
	manifestKeyPrefix    = "manifest:"
	globalCommandPrefix  = "cmd:global:"
	guildCommandPrefix   = "cmd:guild:"
	componentIndexPrefix = "component:"
	modalIndexPrefix     = "modal:"
)

func ManifestKey(id string) string { return manifestKeyPrefix + id }

func GlobalCommandKey(name string) string { return globalCommandPrefix + name }

func GuildCommandKey(guildID, name string) string {
	return guildCommandPrefix + guildID + ":" + name
}

func ComponentKey(customID string) string { return componentIndexPrefix + customID }

func ModalKey(customID string) string { return modalIndexPrefix + customID }

// IndexKeys lists every index entry a manifest owns, in write order:
// global commands, guild commands per guild, components, modals.
func IndexKeys(m *interfaces.Manifest) []string {
	keys := make([]string, 0, len(m.ApplicationCommands.Global)+len(m.MessageComponentIDs)+len(m.ModalSubmitIDs))
	for _, cmd := range m.ApplicationCommands.Global {
		keys = append(keys, GlobalCommandKey(cmd.Name))
	}
	for _, cmd := range m.ApplicationCommands.Guild {
		for _, guildID := range cmd.GuildIDs {
			keys = append(keys, GuildCommandKey(guildID, cmd.Name))
		}
	}
	for _, id := range m.MessageComponentIDs {
		keys = append(keys, ComponentKey(id))
	}
	for _, id := range m.ModalSubmitIDs {
		keys = append(keys, ModalKey(id))
	}
	return keys
}
