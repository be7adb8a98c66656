package channel

import (
	"context"
	"testing"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

func TestDiscordDirectory_CapacityProfile(t *testing.T) {
	api := &fakeAPI{guilds: map[string]*discordgo.Guild{
		"g0": {ID: "g0", PremiumTier: discordgo.PremiumTierNone},
		"g2": {ID: "g2", PremiumTier: discordgo.PremiumTier2},
		"g3": {ID: "g3", PremiumTier: discordgo.PremiumTier3},
	}}
	dir := newDiscordDirectory(api, nil, domain.CapacityLimits{})

	tests := map[string]int64{
		"g0": 10 * domain.MiB,
		"g2": 50 * domain.MiB,
		"g3": 50 * domain.MiB,
	}
	for guild, want := range tests {
		p, err := dir.CapacityProfile(context.Background(), guild)
		if err != nil {
			t.Fatalf("%s: %v", guild, err)
		}
		if p.AttachmentCeiling != want {
			t.Errorf("%s: ceiling %d, want %d", guild, p.AttachmentCeiling, want)
		}
	}

	if _, err := dir.CapacityProfile(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown guild")
	}
}

func TestDiscordDirectory_CustomLimits(t *testing.T) {
	api := &fakeAPI{guilds: map[string]*discordgo.Guild{"g1": {ID: "g1", PremiumTier: discordgo.PremiumTier1}}}
	limits := domain.CapacityLimits{DefaultCeiling: 8 * domain.MiB, ElevatedCeiling: 25 * domain.MiB, ElevatedTier: 1}
	dir := newDiscordDirectory(api, nil, limits)

	p, err := dir.CapacityProfile(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Tier != 1 || p.AttachmentCeiling != 25*domain.MiB {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestDiscordDirectory_Reachable(t *testing.T) {
	api := &fakeAPI{permissions: map[string]int64{
		"ok":       discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionAttachFiles,
		"readonly": discordgo.PermissionViewChannel,
		"hidden":   discordgo.PermissionSendMessages,
	}}
	dir := newDiscordDirectory(api, nil, domain.CapacityLimits{})

	for channelID, want := range map[string]bool{"ok": true, "readonly": false, "hidden": false, "deleted": false} {
		if got := dir.Reachable(context.Background(), channelID); got != want {
			t.Errorf("Reachable(%s) = %v, want %v", channelID, got, want)
		}
	}

	if dir.GuildName("g") != "" || dir.ChannelName("c") != "" {
		t.Fatal("names without state should be empty")
	}
}
