package discord

import (
	"sort"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// CommandSets is the full set of commands to register with Discord.
type CommandSets struct {
	Global []interfaces.Command
	Guilds map[string][]interfaces.Command
}

// GuildIDs returns the guilds with at least one command, sorted.
func (s CommandSets) GuildIDs() []string {
	ids := make([]string, 0, len(s.Guilds))
	for id := range s.Guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BuildCommandSets merges the commands of every manifest. Guild commands
// are fanned out to each of their guilds with the guild list dropped.
// Manifests are taken in order; a later manifest's command replaces an
// earlier one of the same name in the same scope, matching index
// resolution where the last writer wins.
func BuildCommandSets(manifests []*interfaces.Manifest) CommandSets {
	sets := CommandSets{
		Global: []interfaces.Command{},
		Guilds: make(map[string][]interfaces.Command),
	}

	globalPos := make(map[string]int)
	guildPos := make(map[string]map[string]int)

	for _, m := range manifests {
		for _, cmd := range m.ApplicationCommands.Global {
			if i, ok := globalPos[cmd.Name]; ok {
				sets.Global[i] = cmd
				continue
			}
			globalPos[cmd.Name] = len(sets.Global)
			sets.Global = append(sets.Global, cmd)
		}

		for _, gc := range m.ApplicationCommands.Guild {
			for _, guildID := range gc.GuildIDs {
				pos, ok := guildPos[guildID]
				if !ok {
					pos = make(map[string]int)
					guildPos[guildID] = pos
				}
				if i, ok := pos[gc.Name]; ok {
					sets.Guilds[guildID][i] = gc.Command
					continue
				}
				pos[gc.Name] = len(sets.Guilds[guildID])
				sets.Guilds[guildID] = append(sets.Guilds[guildID], gc.Command)
			}
		}
	}
	return sets
}
