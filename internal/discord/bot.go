// Package discord hosts the bot surface: the gateway session, the
// slash command handlers, and the voice sink feeding opus frames into
// guild voice connections.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/groovebox/internal/config"
	"github.com/keshon/groovebox/internal/music/player"
	"github.com/keshon/groovebox/internal/music/sources/youtube"
	"github.com/keshon/groovebox/internal/music/stream"
	"github.com/keshon/groovebox/internal/storage"
)

// Bot is the Discord bot.
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	store    *storage.Storage
	pipeline *stream.Pipeline
	resolver *youtube.Resolver
	sink     *Sink
	log      zerolog.Logger

	mu      sync.Mutex
	players map[string]*player.Player
}

func New(cfg *config.Config, store *storage.Storage, pipeline *stream.Pipeline, resolver *youtube.Resolver, log zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	b := &Bot{
		dg:       dg,
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		resolver: resolver,
		sink:     NewSink(dg, cfg.FFmpegPath, log),
		log:      log.With().Str("component", "bot").Logger(),
		players:  make(map[string]*player.Player),
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onVoiceStateUpdate)
	return b, nil
}

// Run opens the gateway session and blocks until the context is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, stopping players")

	b.mu.Lock()
	players := make([]*player.Player, 0, len(b.players))
	for _, p := range b.players {
		players = append(players, p)
	}
	b.mu.Unlock()

	for _, p := range players {
		p.Stop()
	}
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().
		Str("user", s.State.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("gateway session ready")

	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", slashCommands); err != nil {
		b.log.Error().Err(err).Msg("register slash commands")
	}
}

// onVoiceStateUpdate watches for the bot itself losing its voice
// channel so the affected player learns about the drop.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.UserID != s.State.User.ID {
		return
	}
	if v.ChannelID == "" {
		b.sink.notifyDisconnected(v.GuildID)
	}
}

// PlayerFor returns the guild's playback engine, creating it on first
// use.
func (b *Bot) PlayerFor(guildID string) *player.Player {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.players[guildID]; ok {
		return p
	}
	p := player.New(guildID, b.sink, b.pipeline, b.store, b.log)
	b.players[guildID] = p
	return p
}

// findUserVoiceChannel returns the voice channel a user currently sits
// in.
func (b *Bot) findUserVoiceChannel(guildID, userID string) (string, error) {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("retrieve guild: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", fmt.Errorf("user is not in a voice channel")
}
