package sources

import (
	"context"
	"errors"
)

// ErrResourceGone signals that a track's source is permanently
// unavailable upstream. The playback engine skips such tracks silently
// instead of surfacing the failure.
var ErrResourceGone = errors.New("source is no longer available")

// Format is one candidate media stream for a track.
type Format struct {
	URL        string
	Codec      string
	Container  string
	SampleRate int
	// Bitrate is the average bitrate in kbit/s, zero when unknown.
	Bitrate int
	// HasBitrateTag reports whether the candidate carried an explicit
	// peak-bitrate tag alongside its average.
	HasBitrateTag bool
	IsLive        bool
}

// TrackInfo is the result of resolving a track URL.
type TrackInfo struct {
	DurationSeconds int
	IsLive          bool
	Formats         []Format
}

// Resolver resolves a track URL into candidate media streams.
type Resolver interface {
	Resolve(ctx context.Context, url string) (TrackInfo, error)
}
