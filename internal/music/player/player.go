// Package player implements the per-guild playback engine: the queue
// and cursor, the Playing/Paused/Idle state machine, elapsed-time
// tracking, and the idle auto-disconnect. Streams come from an injected
// pipeline and go out through an injected voice sink, so the engine
// itself never touches the network.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/groovebox/internal/music/sources"
	"github.com/keshon/groovebox/internal/music/stream"
	"github.com/keshon/groovebox/internal/music/track"
	"github.com/keshon/groovebox/internal/music/voice"
	"github.com/keshon/groovebox/internal/storage"
)

// Status is the engine's transport state.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	default:
		return "Idle"
	}
}

// Pipeline produces playable streams for tracks.
type Pipeline interface {
	GetStream(ctx context.Context, t track.Track, opts stream.Options) (io.ReadCloser, error)
}

// SettingsStore supplies persisted per-guild settings.
type SettingsStore interface {
	GetSettings(guildID string) (storage.GuildSettings, error)
}

// Player is the playback engine for one guild. All operations are
// serialized by an internal lock; voice events arrive on a single
// consumer goroutine per bound session.
type Player struct {
	guildID  string
	sink     voice.Sink
	pipeline Pipeline
	settings SettingsStore
	log      zerolog.Logger

	mu          sync.Mutex
	session     voice.Session
	sinkActive  bool // session currently holds a live stream
	status      Status
	queue       []track.Track
	pos         int // cursor; invariant 0 <= pos <= len(queue)
	nowPlaying  *track.Track
	lastURL     string
	positionSec int
	loopTrack   bool
	loopQueue   bool

	tickCancel      context.CancelFunc
	streamCancel    context.CancelFunc
	disconnectTimer *time.Timer
}

func New(guildID string, sink voice.Sink, pipeline Pipeline, settings SettingsStore, log zerolog.Logger) *Player {
	return &Player{
		guildID:  guildID,
		sink:     sink,
		pipeline: pipeline,
		settings: settings,
		log: log.With().
			Str("component", "player").
			Str("guild", guildID).
			Logger(),
	}
}

// Connect binds the engine to a voice channel. It must precede any
// playback operation. Rebinding replaces the previous session.
func (p *Player) Connect(channelID string) error {
	p.mu.Lock()
	old := p.session
	p.session = nil
	p.sinkActive = false
	p.mu.Unlock()

	if old != nil {
		old.Stop()
		_ = old.Disconnect()
	}

	sess, err := p.sink.Bind(p.guildID, channelID)
	if err != nil {
		return fmt.Errorf("bind voice session: %w", err)
	}

	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()

	go p.consumeEvents(sess)
	return nil
}

// consumeEvents drives state-machine transitions from transport events.
// One goroutine per session; it exits when the session closes.
func (p *Player) consumeEvents(sess voice.Session) {
	for ev := range sess.Events() {
		switch ev {
		case voice.EventIdle:
			p.handleStreamEnd(sess)
		case voice.EventDisconnected:
			p.handleDisconnected(sess)
		}
	}
}

// handleStreamEnd reacts to a stream naturally reaching its end:
// loop the current track, or advance, or go idle.
func (p *Player) handleStreamEnd(sess voice.Session) {
	p.mu.Lock()
	if sess != p.session || p.status != StatusPlaying {
		p.mu.Unlock()
		return
	}
	p.sinkActive = false
	cur := p.currentLocked()
	loopT := p.loopTrack
	if p.loopQueue && cur != nil {
		p.queue = append(p.queue, *cur)
	}
	p.mu.Unlock()

	if loopT && cur != nil && !cur.IsLive {
		if err := p.Seek(0); err != nil {
			p.log.Error().Err(err).Msg("loop restart failed")
		}
		return
	}

	if err := p.Forward(1); err != nil && !errors.Is(err, ErrNoMoreTracks) {
		p.log.Error().Err(err).Msg("advance after stream end failed")
	}
}

// handleDisconnected drops the dead session. Playback state degrades to
// Paused so a later Play refetches the stream.
func (p *Player) handleDisconnected(sess voice.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sess != p.session {
		return
	}
	p.session = nil
	p.sinkActive = false
	p.stopTrackingLocked()
	p.cancelStreamLocked()
	if p.status == StatusPlaying {
		p.status = StatusPaused
	}
	p.log.Info().Msg("voice session disconnected")
}

// Play transitions Idle/Paused to Playing for the current track.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return ErrNotConnected
	}
	cur := p.currentLocked()
	if cur == nil {
		p.mu.Unlock()
		return ErrQueueEmpty
	}

	// Resuming the same track with a live stream still attached needs
	// no refetch.
	if p.status == StatusPaused && p.sinkActive && p.nowPlaying != nil && p.nowPlaying.URL == cur.URL {
		p.session.Unpause()
		p.status = StatusPlaying
		p.startTrackingLocked(p.positionSec)
		p.mu.Unlock()
		return nil
	}

	t := *cur
	ctx := p.resetStreamContextLocked()
	p.mu.Unlock()

	opts := stream.Options{}
	if t.Offset > 0 {
		opts.SeekSeconds = t.Offset
		opts.StopSeconds = t.StopAt()
	}

	rs, err := p.pipeline.GetStream(ctx, t, opts)
	if err != nil {
		return p.failCurrent(t, err)
	}

	p.mu.Lock()
	sess := p.session
	if sess == nil {
		p.mu.Unlock()
		rs.Close()
		return ErrNotConnected
	}
	if err := sess.Play(rs); err != nil {
		p.mu.Unlock()
		rs.Close()
		return fmt.Errorf("attach stream: %w", err)
	}
	p.sinkActive = true
	p.status = StatusPlaying
	p.nowPlaying = &t

	// Elapsed time restarts for a new track but carries over when the
	// same URL is replayed after losing the player handle.
	start := 0
	if p.lastURL == t.URL {
		start = p.positionSec
	}
	p.lastURL = t.URL
	p.startTrackingLocked(start)
	p.mu.Unlock()

	p.log.Info().Str("title", t.Title).Str("url", t.URL).Msg("playing")
	return nil
}

// failCurrent handles a fetch failure for the current track: the engine
// always moves past an unplayable track rather than staying stuck. A
// permanently gone source is logged and swallowed; anything else still
// advances but re-raises.
func (p *Player) failCurrent(t track.Track, err error) error {
	if fErr := p.Forward(1); fErr != nil && !errors.Is(fErr, ErrNoMoreTracks) {
		p.log.Error().Err(fErr).Msg("advance past failed track")
	}
	if errors.Is(err, sources.ErrResourceGone) {
		p.log.Info().Str("title", t.Title).Str("url", t.URL).Msg("skipping track, source gone")
		return nil
	}
	return fmt.Errorf("play %q: %w", t.Title, err)
}

// Pause freezes playback and elapsed-time tracking.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusPlaying {
		return ErrNotPlaying
	}
	p.status = StatusPaused
	p.stopTrackingLocked()
	if p.session != nil {
		p.session.Pause()
	}
	return nil
}

// Seek re-enters Playing from a new stream positioned at posSec within
// the current track's clip window.
func (p *Player) Seek(posSec int) error {
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return ErrNotConnected
	}
	cur := p.currentLocked()
	if cur == nil {
		p.mu.Unlock()
		return ErrQueueEmpty
	}
	if cur.IsLive {
		p.mu.Unlock()
		return ErrSeekUnsupported
	}
	if posSec > cur.Length {
		p.mu.Unlock()
		return ErrSeekOutOfRange
	}
	t := *cur
	p.stopTrackingLocked()
	ctx := p.resetStreamContextLocked()
	p.mu.Unlock()

	opts := stream.Options{SeekSeconds: posSec}
	if t.Offset > 0 {
		opts.SeekSeconds = t.Offset + posSec
		opts.StopSeconds = t.StopAt()
	}

	rs, err := p.pipeline.GetStream(ctx, t, opts)
	if err != nil {
		return fmt.Errorf("seek %q: %w", t.Title, err)
	}

	p.mu.Lock()
	sess := p.session
	if sess == nil {
		p.mu.Unlock()
		rs.Close()
		return ErrNotConnected
	}
	if err := sess.Play(rs); err != nil {
		p.mu.Unlock()
		rs.Close()
		return fmt.Errorf("attach stream: %w", err)
	}
	p.sinkActive = true
	p.status = StatusPlaying
	p.nowPlaying = &t
	p.lastURL = t.URL
	p.startTrackingLocked(posSec)
	p.mu.Unlock()
	return nil
}

// ForwardSeek seeks relative to the current position.
func (p *Player) ForwardSeek(deltaSec int) error {
	p.mu.Lock()
	pos := p.positionSec
	p.mu.Unlock()
	return p.Seek(pos + deltaSec)
}

// Forward advances the cursor by skip. With a playable next track and
// an un-paused engine it starts playback; otherwise the engine goes
// idle and, settings permitting, arms the disconnect timer.
func (p *Player) Forward(skip int) error {
	if skip < 1 {
		return nil
	}

	p.mu.Lock()
	if p.pos+skip-1 >= len(p.queue) {
		p.mu.Unlock()
		return ErrNoMoreTracks
	}
	p.pos += skip
	p.positionSec = 0
	p.stopTrackingLocked()
	hasNext := p.currentLocked() != nil
	paused := p.status == StatusPaused
	p.mu.Unlock()

	if hasNext && !paused {
		return p.Play()
	}

	p.mu.Lock()
	p.cancelStreamLocked()
	p.sinkActive = false
	if p.session != nil {
		p.session.Stop()
	}
	p.status = StatusIdle
	p.nowPlaying = nil
	p.mu.Unlock()

	return p.armDisconnectTimer()
}

// Back moves the cursor to the previous track.
func (p *Player) Back() error {
	p.mu.Lock()
	if p.pos-1 < 0 {
		p.mu.Unlock()
		return ErrNoPreviousTrack
	}
	p.pos--
	p.positionSec = 0
	p.stopTrackingLocked()
	paused := p.status == StatusPaused
	p.mu.Unlock()

	if !paused {
		return p.Play()
	}
	return nil
}

// armDisconnectTimer schedules the idle disconnect. The timer decision
// is re-validated against the engine state at fire time, so a guild
// that resumed playback in the interim is left alone.
func (p *Player) armDisconnectTimer() error {
	settings, err := p.settings.GetSettings(p.guildID)
	if err != nil {
		return err
	}
	if settings.SecondsToWaitAfterQueueEmpties == 0 {
		return nil
	}
	wait := time.Duration(settings.SecondsToWaitAfterQueueEmpties) * time.Second

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
	}
	p.disconnectTimer = time.AfterFunc(wait, func() {
		p.mu.Lock()
		idle := p.status == StatusIdle && p.session != nil
		p.mu.Unlock()
		if idle {
			p.log.Info().Msg("queue stayed empty, disconnecting")
			p.Disconnect()
		}
	})
	return nil
}

// Disconnect tears down the voice session. Safe to call repeatedly.
func (p *Player) Disconnect() {
	p.mu.Lock()
	if p.status == StatusPlaying {
		p.status = StatusPaused
		p.stopTrackingLocked()
		if p.session != nil {
			p.session.Pause()
		}
	}
	p.loopTrack = false
	p.cancelStreamLocked()
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
		p.disconnectTimer = nil
	}
	sess := p.session
	p.session = nil
	p.sinkActive = false
	p.mu.Unlock()

	if sess == nil {
		return
	}
	sess.Stop()
	if err := sess.Disconnect(); err != nil {
		p.log.Warn().Err(err).Msg("voice disconnect")
	}
}

// Stop disconnects and resets the engine to an empty queue.
func (p *Player) Stop() {
	p.Disconnect()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	p.pos = 0
	p.status = StatusIdle
	p.nowPlaying = nil
	p.lastURL = ""
	p.positionSec = 0
}

// SetLoopTrack toggles track looping; it displaces queue looping.
func (p *Player) SetLoopTrack(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loopTrack = on
	if on {
		p.loopQueue = false
	}
}

// SetLoopQueue toggles queue looping; it displaces track looping.
func (p *Player) SetLoopQueue(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loopQueue = on
	if on {
		p.loopTrack = false
	}
}

// Status returns the transport state.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Position returns elapsed seconds into the current track.
func (p *Player) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionSec
}

// GetCurrent returns a copy of the track under the cursor, or nil.
func (p *Player) GetCurrent() *track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur := p.currentLocked(); cur != nil {
		t := *cur
		return &t
	}
	return nil
}

func (p *Player) currentLocked() *track.Track {
	if p.pos >= 0 && p.pos < len(p.queue) {
		return &p.queue[p.pos]
	}
	return nil
}

// resetStreamContextLocked cancels any in-flight fetch and returns the
// cancellation context for the next one. The context reaches the
// spawned transcoder, so abandoning a stream kills the process.
func (p *Player) resetStreamContextLocked() context.Context {
	if p.streamCancel != nil {
		p.streamCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.streamCancel = cancel
	return ctx
}

func (p *Player) cancelStreamLocked() {
	if p.streamCancel != nil {
		p.streamCancel()
		p.streamCancel = nil
	}
}

// startTrackingLocked starts the 1-second elapsed-time tick, replacing
// any previous tick source. At most one is active per engine.
func (p *Player) startTrackingLocked(initial int) {
	p.positionSec = initial
	if p.tickCancel != nil {
		p.tickCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.tickCancel = cancel

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.mu.Lock()
				if p.status == StatusPlaying {
					p.positionSec++
				}
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Player) stopTrackingLocked() {
	if p.tickCancel != nil {
		p.tickCancel()
		p.tickCancel = nil
	}
}
