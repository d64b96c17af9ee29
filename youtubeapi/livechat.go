package youtubeapi

import (
	"context"
	"log/slog"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/router"
)

// Poller reads a YouTube live chat and feeds messages into the router. It
// implements router.PlatformEvents for super chats and new memberships;
// subscription and bits never fire here.
type Poller struct {
	svc        *Service
	liveChatID string
	router     *router.Router

	onMembership func(platform queue.Platform, userID, displayName string)
	onSuperChat  func(platform queue.Platform, userID, displayName string, amount float64)
}

// NewPoller builds a live chat poller for a fixed live chat id.
func NewPoller(svc *Service, liveChatID string, r *router.Router) *Poller {
	return &Poller{svc: svc, liveChatID: liveChatID, router: r}
}

func (p *Poller) OnSubscription(func(platform queue.Platform, userID, displayName string, tier int)) {
}

func (p *Poller) OnBits(func(platform queue.Platform, userID, displayName string, bits int)) {}

func (p *Poller) OnMembership(h func(platform queue.Platform, userID, displayName string)) {
	p.onMembership = h
}

func (p *Poller) OnSuperChat(h func(platform queue.Platform, userID, displayName string, amount float64)) {
	p.onSuperChat = h
}

// Run polls liveChatMessages until the context is cancelled, honoring the
// API's polling interval hints.
func (p *Poller) Run(ctx context.Context) {
	if p.liveChatID == "" {
		slog.Info("youtube poller disabled: no live chat id")
		return
	}
	pageToken := ""
	wait := 5 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		svc, err := p.svc.Client(ctx)
		if err != nil {
			slog.Warn("youtube client unavailable", slog.Any("err", err))
			wait = 30 * time.Second
			continue
		}
		call := svc.LiveChatMessages.List(p.liveChatID, []string{"snippet", "authorDetails"})
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			slog.Warn("youtube live chat poll failed", slog.Any("err", err))
			wait = 30 * time.Second
			continue
		}
		pageToken = resp.NextPageToken
		wait = 5 * time.Second
		if resp.PollingIntervalMillis > 0 {
			wait = time.Duration(resp.PollingIntervalMillis) * time.Millisecond
		}
		for _, item := range resp.Items {
			p.handle(ctx, svc, item)
		}
	}
}

func (p *Poller) handle(ctx context.Context, svc *yt.Service, item *yt.LiveChatMessage) {
	if item.Snippet == nil || item.AuthorDetails == nil {
		return
	}
	author := item.AuthorDetails
	switch item.Snippet.Type {
	case "superChatEvent":
		if p.onSuperChat != nil && item.Snippet.SuperChatDetails != nil {
			// AmountMicros is in millionths of the major currency unit.
			amount := float64(item.Snippet.SuperChatDetails.AmountMicros) / 1e6
			p.onSuperChat(queue.PlatformYouTube, author.ChannelId, author.DisplayName, amount)
		}
	case "newSponsorEvent":
		if p.onMembership != nil {
			p.onMembership(queue.PlatformYouTube, author.ChannelId, author.DisplayName)
		}
	case "textMessageEvent":
		if item.Snippet.TextMessageDetails == nil {
			return
		}
		caller := router.Caller{
			Platform:    queue.PlatformYouTube,
			UserID:      author.ChannelId,
			DisplayName: author.DisplayName,
			Tier:        authorTier(author),
		}
		p.router.Dispatch(ctx, item.Snippet.TextMessageDetails.MessageText, caller, func(text string) {
			p.reply(ctx, svc, text)
		})
	}
}

func (p *Poller) reply(ctx context.Context, svc *yt.Service, text string) {
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: p.liveChatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	if _, err := svc.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do(); err != nil {
		slog.Warn("youtube reply failed", slog.Any("err", err))
	}
}

func authorTier(author *yt.LiveChatMessageAuthorDetails) router.Tier {
	switch {
	case author.IsChatOwner:
		return router.TierBroadcaster
	case author.IsChatModerator:
		return router.TierModerator
	}
	return router.TierViewer
}
