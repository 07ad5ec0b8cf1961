package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/groovebox/internal/music/player"
	"github.com/keshon/groovebox/internal/music/track"
	"github.com/keshon/groovebox/internal/storage"
)

const embedColor = 0x9f00d4

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "play",
		Description: "Queue a track or playlist and start playback",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "url", Description: "Track, playlist or stream URL", Required: true},
			{Type: discordgo.ApplicationCommandOptionBoolean, Name: "next", Description: "Put the track right after the current one"},
		},
	},
	{Name: "pause", Description: "Pause playback"},
	{Name: "resume", Description: "Resume paused playback"},
	{
		Name:        "skip",
		Description: "Skip to the next track",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "count", Description: "How many tracks to skip"},
		},
	},
	{Name: "back", Description: "Go back to the previous track"},
	{
		Name:        "seek",
		Description: "Jump to a position in the current track",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "seconds", Description: "Position in seconds", Required: true},
		},
	},
	{
		Name:        "loop",
		Description: "Set the loop mode",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionString, Name: "mode", Description: "Loop mode", Required: true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "track", Value: "track"},
					{Name: "queue", Value: "queue"},
					{Name: "off", Value: "off"},
				},
			},
		},
	},
	{Name: "nowplaying", Description: "Show the current track"},
	{Name: "queue", Description: "Show the upcoming tracks"},
	{Name: "shuffle", Description: "Shuffle the upcoming tracks"},
	{Name: "clear", Description: "Drop everything except the current track"},
	{
		Name:        "remove",
		Description: "Remove upcoming tracks",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "position", Description: "Position in the upcoming list", Required: true},
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "count", Description: "How many tracks to remove"},
		},
	},
	{
		Name:        "move",
		Description: "Move an upcoming track to another position",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "from", Description: "Current position", Required: true},
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "to", Description: "Target position", Required: true},
		},
	},
	{Name: "stop", Description: "Stop playback, clear the queue and leave"},
	{Name: "disconnect", Description: "Leave the voice channel, keeping the queue"},
	{
		Name:        "settings",
		Description: "Configure playback behavior for this guild",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "wait-seconds", Description: "Idle seconds before auto-disconnect, 0 disables", Required: true},
		},
	},
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" {
		respond(s, i, "This command only works inside a guild.")
		return
	}

	data := i.ApplicationCommandData()
	log := b.log.With().Str("guild", i.GuildID).Str("command", data.Name).Logger()

	var err error
	switch data.Name {
	case "play":
		err = b.handlePlay(s, i, data)
	case "pause":
		err = b.PlayerFor(i.GuildID).Pause()
		respondOK(s, i, err, "Paused.")
	case "resume":
		err = b.PlayerFor(i.GuildID).Play()
		respondOK(s, i, err, "Resumed.")
	case "skip":
		count := intOption(data, "count", 1)
		err = b.PlayerFor(i.GuildID).Forward(count)
		respondOK(s, i, err, "Skipped.")
	case "back":
		err = b.PlayerFor(i.GuildID).Back()
		respondOK(s, i, err, "Went back a track.")
	case "seek":
		err = b.PlayerFor(i.GuildID).Seek(intOption(data, "seconds", 0))
		respondOK(s, i, err, "Seeked.")
	case "loop":
		b.handleLoop(s, i, data)
	case "nowplaying":
		b.handleNowPlaying(s, i)
	case "queue":
		b.handleQueue(s, i)
	case "shuffle":
		b.PlayerFor(i.GuildID).Shuffle()
		respond(s, i, "Shuffled the upcoming tracks.")
	case "clear":
		b.PlayerFor(i.GuildID).Clear()
		respond(s, i, "Cleared the queue.")
	case "remove":
		err = b.PlayerFor(i.GuildID).RemoveAt(intOption(data, "position", 1), intOption(data, "count", 1))
		respondOK(s, i, err, "Removed.")
	case "move":
		err = b.PlayerFor(i.GuildID).Move(intOption(data, "from", 0), intOption(data, "to", 0))
		respondOK(s, i, err, "Moved.")
	case "stop":
		b.PlayerFor(i.GuildID).Stop()
		respond(s, i, "Stopped and left the voice channel.")
	case "disconnect":
		b.PlayerFor(i.GuildID).Disconnect()
		respond(s, i, "Left the voice channel.")
	case "settings":
		err = b.handleSettings(s, i, data)
	}

	if err != nil {
		log.Warn().Err(err).Msg("command failed")
	}
}

func (b *Bot) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	channelID, err := b.findUserVoiceChannel(i.GuildID, interactionUserID(i))
	if err != nil {
		respond(s, i, "Join a voice channel first.")
		return nil
	}

	input := stringOption(data, "url")
	next := boolOption(data, "next")

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return fmt.Errorf("defer response: %w", err)
	}

	tracks, err := b.lookupTracks(input, i)
	if err != nil {
		followup(s, i, fmt.Sprintf("Could not resolve that URL: %v", err))
		return err
	}

	p := b.PlayerFor(i.GuildID)
	p.Enqueue(tracks, next)

	if err := p.Connect(channelID); err != nil {
		followup(s, i, "Could not join your voice channel.")
		return err
	}

	if p.Status() != player.StatusPlaying {
		if err := p.Play(); err != nil {
			followup(s, i, fmt.Sprintf("Playback failed: %v", err))
			return err
		}
	}

	if len(tracks) == 1 {
		followup(s, i, fmt.Sprintf("Queued **%s**.", tracks[0].Title))
	} else {
		followup(s, i, fmt.Sprintf("Queued **%d** tracks.", len(tracks)))
	}
	return nil
}

// lookupTracks resolves a user-supplied URL into queueable tracks.
// Direct stream URLs bypass the resolver entirely.
func (b *Bot) lookupTracks(input string, i *discordgo.InteractionCreate) ([]track.Track, error) {
	if isDirectStreamURL(input) {
		return []track.Track{{
			ID:          track.NewID(),
			Title:       input,
			URL:         input,
			IsLive:      true,
			Source:      track.LiveSegment,
			RequestedBy: interactionUserID(i),
			ChannelID:   i.ChannelID,
		}}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracks, err := b.resolver.Lookup(ctx, input)
	if err != nil {
		return nil, err
	}
	for idx := range tracks {
		tracks[idx].RequestedBy = interactionUserID(i)
		tracks[idx].ChannelID = i.ChannelID
	}
	return tracks, nil
}

func isDirectStreamURL(input string) bool {
	return strings.HasSuffix(input, ".m3u8") ||
		strings.HasSuffix(input, ".pls") ||
		strings.Contains(input, "/stream")
}

func (b *Bot) handleLoop(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	p := b.PlayerFor(i.GuildID)
	switch stringOption(data, "mode") {
	case "track":
		p.SetLoopTrack(true)
		respond(s, i, "Looping the current track.")
	case "queue":
		p.SetLoopQueue(true)
		respond(s, i, "Looping the queue.")
	default:
		p.SetLoopTrack(false)
		p.SetLoopQueue(false)
		respond(s, i, "Looping disabled.")
	}
}

func (b *Bot) handleNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := b.PlayerFor(i.GuildID)
	cur := p.GetCurrent()
	if cur == nil {
		respond(s, i, "Nothing is queued.")
		return
	}

	desc := fmt.Sprintf("[%s](%s)", cur.Title, cur.URL)
	if cur.Artist != "" {
		desc += " by " + cur.Artist
	}
	if !cur.IsLive {
		desc += fmt.Sprintf("\n`%s / %s`", formatDuration(p.Position()), formatDuration(cur.Length))
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s Now Playing", p.Status()),
		Description: desc,
		Color:       embedColor,
	}
	if cur.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.Thumbnail}
	}
	respondEmbed(s, i, embed)
}

func (b *Bot) handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := b.PlayerFor(i.GuildID)
	upcoming := p.GetUpcoming()
	if len(upcoming) == 0 {
		respond(s, i, "The queue is empty.")
		return
	}

	var sb strings.Builder
	for idx, t := range upcoming {
		if idx == 10 {
			fmt.Fprintf(&sb, "and %d more", len(upcoming)-idx)
			break
		}
		fmt.Fprintf(&sb, "%d. [%s](%s)\n", idx+1, t.Title, t.URL)
	}
	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Upcoming (%d)", len(upcoming)),
		Description: sb.String(),
		Color:       embedColor,
	})
}

func (b *Bot) handleSettings(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	wait := intOption(data, "wait-seconds", 0)
	if wait < 0 {
		respond(s, i, "Wait seconds cannot be negative.")
		return nil
	}
	err := b.store.SetSettings(i.GuildID, storage.GuildSettings{
		SecondsToWaitAfterQueueEmpties: wait,
	})
	if err != nil {
		respond(s, i, "Failed to store settings.")
		return err
	}
	if wait == 0 {
		respond(s, i, "Idle auto-disconnect disabled.")
	} else {
		respond(s, i, fmt.Sprintf("Leaving after %d idle seconds.", wait))
	}
	return nil
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func stringOption(data discordgo.ApplicationCommandInteractionData, name string) string {
	for _, opt := range data.Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func intOption(data discordgo.ApplicationCommandInteractionData, name string, def int) int {
	for _, opt := range data.Options {
		if opt.Name == name {
			return int(opt.IntValue())
		}
	}
	return def
}

func boolOption(data discordgo.ApplicationCommandInteractionData, name string) bool {
	for _, opt := range data.Options {
		if opt.Name == name {
			return opt.BoolValue()
		}
	}
	return false
}

func formatDuration(seconds int) string {
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
}

func followup(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content})
}

// respondOK reports the outcome of a simple player operation.
func respondOK(s *discordgo.Session, i *discordgo.InteractionCreate, err error, ok string) {
	if err != nil {
		respond(s, i, "That did not work: "+err.Error())
		return
	}
	respond(s, i, ok)
}
