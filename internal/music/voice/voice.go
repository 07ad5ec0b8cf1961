// Package voice defines the narrow interface the playback engine uses
// to talk to a live voice transport. Implementations live elsewhere
// (internal/discord provides the discordgo one) so the engine stays
// testable without a real connection.
package voice

import "io"

// Event is a transition trigger delivered from the transport back into
// the playback engine.
type Event int

const (
	// EventIdle fires when the current stream naturally reaches its end.
	EventIdle Event = iota
	// EventDisconnected fires when the voice session is torn down by
	// the remote side.
	EventDisconnected
)

// Session is a bound voice connection for one guild.
type Session interface {
	// Play starts emitting the given opus-in-webm stream into the
	// session, replacing any stream already playing. The session owns
	// the stream and closes it when playback ends or is replaced.
	Play(stream io.ReadCloser) error
	// Pause suspends frame emission without dropping the stream.
	Pause()
	// Unpause resumes a paused stream.
	Unpause()
	// Stop aborts the current stream, if any.
	Stop()
	// Events delivers Idle/Disconnected triggers. The channel closes
	// when the session is disconnected.
	Events() <-chan Event
	// Disconnect leaves the voice channel and closes Events.
	Disconnect() error
}

// Sink binds voice sessions.
type Sink interface {
	Bind(guildID, channelID string) (Session, error)
}
