package player

import "errors"

var (
	ErrNotConnected    = errors.New("not connected to a voice channel")
	ErrQueueEmpty      = errors.New("the queue has no current track")
	ErrNotPlaying      = errors.New("nothing is currently playing")
	ErrSeekOutOfRange  = errors.New("seek position is past the end of the track")
	ErrSeekUnsupported = errors.New("cannot seek in a live stream")
	ErrNoMoreTracks    = errors.New("no more tracks in the queue")
	ErrNoPreviousTrack = errors.New("no previous track to go back to")
	ErrIndexOutOfRange = errors.New("index is outside the range of the queue")
)
