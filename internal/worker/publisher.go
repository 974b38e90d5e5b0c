package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"contest-bot/internal/bot"
	"contest-bot/internal/cache"
	"contest-bot/internal/config"
	"contest-bot/internal/contest"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Publisher posts the leaderboard to the contest chat on a fixed cadence. It
// is the only caller of the ranking query on a timer; the contest core itself
// runs no background work.
type Publisher struct {
	Service *contest.Service
	Cache   cache.Cache
	Bot     *telego.Bot
	Config  *config.Config
}

func NewPublisher(service *contest.Service, c cache.Cache, tgBot *telego.Bot, cfg *config.Config) *Publisher {
	return &Publisher{
		Service: service,
		Cache:   c,
		Bot:     tgBot,
		Config:  cfg,
	}
}

func (p *Publisher) Start() {
	ticker := time.NewTicker(p.Config.PublishInterval)
	log.Println("Leaderboard publisher started")

	// Run once at start
	p.publish()

	for range ticker.C {
		p.publish()
	}
}

func (p *Publisher) publish() {
	ctx := context.Background()

	// One post per cycle even if the process restarts mid-interval.
	dedupKey := fmt.Sprintf("leaderboard_published_%d", p.Config.ContestChatID)
	if seen, err := p.Cache.Has(ctx, dedupKey); err == nil && seen {
		return
	}

	entries, err := p.Service.GetLeaderboard(ctx, p.Config.ContestChatID, p.Config.LeaderboardSize)
	if err != nil {
		log.Printf("Failed to load leaderboard for publication: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	_, err = p.Bot.SendMessage(ctx, tu.Message(
		tu.ID(p.Config.ContestChatID),
		bot.FormatLeaderboard(entries),
	).WithParseMode(telego.ModeMarkdown))
	if err != nil {
		log.Printf("Failed to publish leaderboard: %v", err)
		return
	}

	if err := p.Cache.Set(ctx, dedupKey, "true", publicationTTL(p.Config.PublishInterval)); err != nil {
		log.Printf("Failed to set publication dedup key: %v", err)
	}
}

// publicationTTL is the dedup key lifetime. The key is set after the post, so
// a TTL equal to the interval would still be alive when the next tick fires
// and every other cycle would skip; it has to expire strictly before then.
func publicationTTL(interval time.Duration) time.Duration {
	if interval <= 2*time.Minute {
		return interval / 2
	}
	return interval - time.Minute
}
