package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/streamwatch/platform"
)

func TestMutatingCommandsRequireManagePermissions(t *testing.T) {
	b := &Bot{registry: platform.NewRegistry()}
	want := map[string]int64{
		"track":      discordgo.PermissionManageChannels,
		"untrack":    discordgo.PermissionManageChannels,
		"setchannel": discordgo.PermissionManageServer,
	}

	seen := map[string]bool{}
	for _, cmd := range b.commandDefinitions() {
		seen[cmd.Name] = true
		perm, mutating := want[cmd.Name]
		if !mutating {
			if cmd.DefaultMemberPermissions != nil {
				t.Errorf("%s should be usable by every member, has permissions %#x",
					cmd.Name, *cmd.DefaultMemberPermissions)
			}
			continue
		}
		if cmd.DefaultMemberPermissions == nil {
			t.Errorf("%s has no default member permissions, any member could mutate tracking", cmd.Name)
			continue
		}
		if *cmd.DefaultMemberPermissions&perm == 0 {
			t.Errorf("%s permissions = %#x, want %#x set", cmd.Name, *cmd.DefaultMemberPermissions, perm)
		}
	}
	for name := range want {
		if !seen[name] {
			t.Errorf("command %s not defined", name)
		}
	}
}
