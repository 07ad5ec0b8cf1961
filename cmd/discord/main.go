package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/groovebox/internal/config"
	"github.com/keshon/groovebox/internal/discord"
	"github.com/keshon/groovebox/internal/logging"
	"github.com/keshon/groovebox/internal/music/cache"
	"github.com/keshon/groovebox/internal/music/sources/youtube"
	"github.com/keshon/groovebox/internal/music/stream"
	"github.com/keshon/groovebox/internal/storage"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		bootLog := logging.Setup("", "info")
		bootLog.Fatal().Err(err).Msg("load configuration")
	}

	log := logging.Setup(cfg.LogFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer store.Close()

	blobCache, err := cache.New(cfg.CacheDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open track cache")
	}

	resolver := youtube.New(nil, log)
	pipeline := stream.New(blobCache, resolver, cfg.FFmpegPath, log)

	bot, err := discord.New(cfg, store, pipeline, resolver, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create bot")
	}

	log.Info().Msg("starting groovebox")
	if err := bot.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("goodbye")
}
