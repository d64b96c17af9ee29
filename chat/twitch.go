// Package chat connects Twitch IRC to the command router: viewer messages
// become command dispatches, and subscription/bits notices become token
// awards through the platform event interface.
package chat

import (
	"context"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/song-tender/config"
	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/router"
)

// Bot is the Twitch chat transport. It implements router.PlatformEvents for
// subscription and bits awards; membership and super chat never fire here.
type Bot struct {
	channel  string
	username string
	oauth    string
	router   *router.Router

	onSub  func(platform queue.Platform, userID, displayName string, tier int)
	onBits func(platform queue.Platform, userID, displayName string, bits int)
}

// NewBot builds the Twitch transport from config.
func NewBot(cfg *config.Config, r *router.Router) *Bot {
	return &Bot{
		channel:  cfg.TwitchChannel,
		username: cfg.TwitchBotUsername,
		oauth:    cfg.TwitchOAuthToken,
		router:   r,
	}
}

func (b *Bot) OnSubscription(h func(platform queue.Platform, userID, displayName string, tier int)) {
	b.onSub = h
}

func (b *Bot) OnBits(h func(platform queue.Platform, userID, displayName string, bits int)) {
	b.onBits = h
}

func (b *Bot) OnMembership(func(platform queue.Platform, userID, displayName string)) {}

func (b *Bot) OnSuperChat(func(platform queue.Platform, userID, displayName string, amount float64)) {
}

// Run connects to chat and blocks until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	client := twitch.NewClient(b.username, b.oauth)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if msg.Bits > 0 && b.onBits != nil {
			b.onBits(queue.PlatformTwitch, msg.User.ID, msg.User.DisplayName, msg.Bits)
		}
		caller := router.Caller{
			Platform:    queue.PlatformTwitch,
			UserID:      msg.User.ID,
			DisplayName: msg.User.DisplayName,
			Tier:        callerTier(msg.User.Badges),
		}
		b.router.Dispatch(ctx, msg.Message, caller, func(text string) {
			client.Say(b.channel, text)
		})
	})

	client.OnUserNoticeMessage(func(msg twitch.UserNoticeMessage) {
		switch msg.MsgID {
		case "sub", "resub":
			if b.onSub != nil {
				b.onSub(queue.PlatformTwitch, msg.User.ID, msg.User.DisplayName, subTier(msg.MsgParams["msg-param-sub-plan"]))
			}
		case "subgift":
			// The gifter earns the tokens.
			if b.onSub != nil {
				b.onSub(queue.PlatformTwitch, msg.User.ID, msg.User.DisplayName, subTier(msg.MsgParams["msg-param-sub-plan"]))
			}
		}
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(b.channel)
	slog.Info("twitch chat connecting", slog.String("channel", b.channel))
	if err := client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
		return err
	}
	<-done
	return nil
}

func callerTier(badges map[string]int) router.Tier {
	if _, ok := badges["broadcaster"]; ok {
		return router.TierBroadcaster
	}
	if _, ok := badges["moderator"]; ok {
		return router.TierModerator
	}
	return router.TierViewer
}

// subTier maps Twitch sub plans ("1000".."3000", "Prime") to tiers 1-3.
func subTier(plan string) int {
	switch {
	case strings.HasPrefix(plan, "3"):
		return 3
	case strings.HasPrefix(plan, "2"):
		return 2
	default:
		return 1
	}
}
