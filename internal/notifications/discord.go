// Package notifications sends operator-facing Discord notifications for
// the events the event loop (C6) actually produces: bets placed, bonus
// claims, and stream online/offline transitions. Config-gated and never
// fatal to the core loop (spec.md §7 "background tasks recover locally and
// log"). Trimmed from the teacher's internal/notifications package, which
// also supported chat mentions, point-threshold rules, and a multi-provider
// abstraction spec.md's engine has no events for.
package notifications

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/bwmarrin/discordgo"
)

// Discord embed colors, grounded on the teacher's ColorPoints/ColorOnline/
// ColorOffline constants in internal/notifications/discord.go.
const (
	colorBet     = 0xFFD700 // gold
	colorClaim   = 0x9146FF // Twitch purple
	colorOnline  = 0x00FF00
	colorOffline = 0xFF4545
)

var webhookURLPattern = regexp.MustCompile(`/webhooks/(\d+)/([^/?]+)`)

// Notifier implements engine.Notifier over a single Discord webhook. It
// holds no bot session (the teacher's DiscordProvider connects a full bot
// session; a webhook needs only id+token), so Send calls are cheap and
// connectionless.
type Notifier struct {
	session    *discordgo.Session
	webhookID  string
	webhookTok string
}

// New builds a Notifier from a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>. Returns an error if the
// URL doesn't match that shape; callers should treat notification setup
// failures as non-fatal per spec.md §7.
func New(webhookURL string) (*Notifier, error) {
	m := webhookURLPattern.FindStringSubmatch(webhookURL)
	if m == nil {
		return nil, fmt.Errorf("notifications: malformed discord webhook url")
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notifications: create discord session: %w", err)
	}

	return &Notifier{session: session, webhookID: m[1], webhookTok: m[2]}, nil
}

func (n *Notifier) send(title, message string, color int) {
	_, err := n.session.WebhookExecute(n.webhookID, n.webhookTok, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: message,
			Color:       color,
		}},
	})
	if err != nil {
		slog.Warn("discord notification failed", "title", title, "error", err)
	}
}

// BetPlaced notifies that a bet was placed (spec.md's engine produces this
// on a predictor.Bet decision).
func (n *Notifier) BetPlaced(channelName, outcomeTitle string, points int) {
	n.send("Bet placed", fmt.Sprintf("%s: %d points on %q", channelName, points, outcomeTitle), colorBet)
}

// ClaimMade notifies that a bonus community-points claim was redeemed.
func (n *Notifier) ClaimMade(channelName string) {
	n.send("Bonus claimed", channelName, colorClaim)
}

// StreamStatusChanged notifies a live/offline transition.
func (n *Notifier) StreamStatusChanged(channelName string, live bool) {
	if live {
		n.send("Stream online", channelName, colorOnline)
		return
	}
	n.send("Stream offline", channelName, colorOffline)
}
