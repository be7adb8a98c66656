package channel

import (
	"context"
	"fmt"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const sendPermissions = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages

// DiscordDirectory answers capacity and reachability questions from the
// session state, falling back to REST lookups.
type DiscordDirectory struct {
	api    DiscordAPI
	state  *discordgo.State
	limits domain.CapacityLimits
	botID  func() string
}

// NewDiscordDirectory builds a directory over session. Zero limits mean the defaults.
func NewDiscordDirectory(session *discordgo.Session, limits domain.CapacityLimits) *DiscordDirectory {
	d := newDiscordDirectory(session, session.State, limits)
	d.botID = func() string {
		if session.State == nil || session.State.User == nil {
			return ""
		}
		return session.State.User.ID
	}
	return d
}

func newDiscordDirectory(api DiscordAPI, state *discordgo.State, limits domain.CapacityLimits) *DiscordDirectory {
	if limits == (domain.CapacityLimits{}) {
		limits = domain.DefaultCapacityLimits()
	}
	return &DiscordDirectory{api: api, state: state, limits: limits, botID: func() string { return "" }}
}

// CapacityProfile derives the attachment ceiling from the guild's boost tier.
func (d *DiscordDirectory) CapacityProfile(ctx context.Context, guildID string) (domain.GuildCapacityProfile, error) {
	var g *discordgo.Guild
	if d.state != nil {
		g, _ = d.state.Guild(guildID)
	}
	if g == nil {
		var err error
		g, err = d.api.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return domain.GuildCapacityProfile{}, fmt.Errorf("guild %s: %w", guildID, mapDiscordError(err))
		}
	}
	return domain.NewCapacityProfile(guildID, int(g.PremiumTier), d.limits), nil
}

// Reachable reports whether the bot can currently view and post in channelID.
func (d *DiscordDirectory) Reachable(ctx context.Context, channelID string) bool {
	perms, err := d.api.UserChannelPermissions(d.botID(), channelID, discordgo.WithContext(ctx))
	if err != nil {
		return false
	}
	return perms&sendPermissions == sendPermissions
}

// GuildName returns the cached name of guildID, or "".
func (d *DiscordDirectory) GuildName(guildID string) string {
	if d.state == nil {
		return ""
	}
	if g, err := d.state.Guild(guildID); err == nil {
		return g.Name
	}
	return ""
}

// ChannelName returns the cached name of channelID, or "".
func (d *DiscordDirectory) ChannelName(channelID string) string {
	if d.state == nil {
		return ""
	}
	if c, err := d.state.Channel(channelID); err == nil {
		return c.Name
	}
	return ""
}
