package discord

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"layeh.com/gopus"

	"github.com/keshon/groovebox/internal/music/voice"
)

const (
	channels      = 2
	sampleRate    = 48000
	frameSize     = 960 // 20ms at 48kHz
	frameDuration = 20 * time.Millisecond
)

// Sink binds guild voice channels over a discordgo session and turns
// opus-in-webm streams into the opus frames Discord expects.
type Sink struct {
	dg         *discordgo.Session
	ffmpegPath string
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*voiceSession // by guild
}

func NewSink(dg *discordgo.Session, ffmpegPath string, log zerolog.Logger) *Sink {
	return &Sink{
		dg:         dg,
		ffmpegPath: ffmpegPath,
		log:        log.With().Str("component", "voice").Logger(),
		sessions:   make(map[string]*voiceSession),
	}
}

func (s *Sink) Bind(guildID, channelID string) (voice.Session, error) {
	vc, err := s.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}

	sess := &voiceSession{
		vc:         vc,
		ffmpegPath: s.ffmpegPath,
		log:        s.log.With().Str("guild", guildID).Logger(),
		events:     make(chan voice.Event, 4),
	}

	s.mu.Lock()
	s.sessions[guildID] = sess
	s.mu.Unlock()
	return sess, nil
}

// notifyDisconnected routes an out-of-band voice drop (kick, region
// move) to the guild's session.
func (s *Sink) notifyDisconnected(guildID string) {
	s.mu.Lock()
	sess := s.sessions[guildID]
	delete(s.sessions, guildID)
	s.mu.Unlock()

	if sess != nil {
		sess.drop()
	}
}

// voiceSession streams one guild's audio. Each Play spawns an ffmpeg
// decode of the incoming webm container to raw PCM, which is then opus
// encoded frame by frame into the voice connection.
type voiceSession struct {
	vc         *discordgo.VoiceConnection
	ffmpegPath string
	log        zerolog.Logger
	events     chan voice.Event

	mu     sync.Mutex
	cancel context.CancelFunc
	paused bool
	closed bool
}

func (s *voiceSession) Play(rs io.ReadCloser) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		rs.Close()
		return fmt.Errorf("voice session is closed")
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.paused = false
	s.mu.Unlock()

	go s.stream(ctx, rs)
	return nil
}

func (s *voiceSession) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *voiceSession) Unpause() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *voiceSession) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *voiceSession) Events() <-chan voice.Event { return s.events }

func (s *voiceSession) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	close(s.events)
	s.mu.Unlock()

	return s.vc.Disconnect()
}

// drop handles Discord tearing the connection down from its side.
func (s *voiceSession) drop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	select {
	case s.events <- voice.EventDisconnected:
	default:
	}
	close(s.events)
	s.mu.Unlock()
}

func (s *voiceSession) emit(ev voice.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Msg("voice event dropped, channel full")
	}
}

func (s *voiceSession) stream(ctx context.Context, rs io.ReadCloser) {
	defer rs.Close()

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	cmd.Stdin = rs

	out, err := cmd.StdoutPipe()
	if err != nil {
		s.log.Error().Err(err).Msg("decoder stdout pipe")
		return
	}
	if err := cmd.Start(); err != nil {
		s.log.Error().Err(err).Msg("decoder start")
		return
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		s.log.Error().Err(err).Msg("opus encoder")
		return
	}

	s.vc.Speaking(true)
	defer s.vc.Speaking(false)

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		if !s.awaitResume(ctx) {
			return
		}

		if _, err := io.ReadFull(out, pcmBuf); err != nil {
			// A clean EOF or a short final frame both mean the track
			// ran out. A cancelled context means we were told to stop.
			if ctx.Err() == nil {
				s.emit(voice.EventIdle)
			}
			return
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		frame, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			s.log.Error().Err(err).Msg("opus encode")
			return
		}

		select {
		case s.vc.OpusSend <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// awaitResume blocks while the session is paused. It reports false once
// the stream context is cancelled.
func (s *voiceSession) awaitResume(ctx context.Context) bool {
	for {
		s.mu.Lock()
		paused := s.paused
		s.mu.Unlock()
		if !paused {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(frameDuration):
		}
	}
}
