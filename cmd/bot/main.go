package main

import (
	"log"

	"contest-bot/internal/bot"
	"contest-bot/internal/cache"
	"contest-bot/internal/config"
	"contest-bot/internal/contest"
	"contest-bot/internal/database"
	"contest-bot/internal/repository"
	"contest-bot/internal/worker"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	// Connect to Database
	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	// Connect to Redis; fall back to the in-memory cache if unavailable.
	// Cache state is advisory, so a degraded cache only risks duplicate
	// messages, never wrong point totals.
	var contestCache cache.Cache
	if rdb, err := database.ConnectRedis(cfg); err != nil {
		log.Printf("Redis unavailable, using in-memory cache: %v", err)
		contestCache = cache.NewMemory()
	} else {
		contestCache = cache.NewRedis(rdb)
	}

	service := contest.NewService(
		repository.NewParticipantRepository(db),
		repository.NewReferralRepository(db),
		contestCache,
		contest.Settings{
			ReferralPoints: cfg.ReferralPoints,
			TaskPoints:     cfg.TaskPoints,
			TaskURL:        cfg.TaskURL,
		},
	)

	contestBot, err := bot.NewBot(cfg.BotToken, service, contestCache, cfg)
	if err != nil {
		log.Fatalf("Could not create bot: %v", err)
	}

	publisher := worker.NewPublisher(service, contestCache, contestBot.Instance, cfg)
	go publisher.Start()

	log.Println("Service started successfully")
	contestBot.Start()
}
