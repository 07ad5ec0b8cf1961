package track

import "github.com/google/uuid"

// SourceKind tells the pipeline how a track's URL should be fetched.
type SourceKind int

const (
	// StandardMedia is a page URL that must be resolved to a media
	// stream and transcoded locally.
	StandardMedia SourceKind = iota
	// LiveSegment is a URL that already points at a playable stream
	// (HLS and friends) and is fetched as-is.
	LiveSegment
)

// Playlist identifies the batch a track was enqueued as part of.
type Playlist struct {
	Title string
	URL   string
}

// Track is one queued playable unit. It is created when a user enqueues
// a request and never mutated afterwards.
type Track struct {
	ID        string
	Title     string
	Artist    string
	URL       string
	Length    int // seconds
	Offset    int // seconds into the source where this clip starts
	Playlist  *Playlist
	IsLive    bool
	Thumbnail string
	Source    SourceKind

	RequestedBy string
	ChannelID   string
}

// NewID mints a track identity.
func NewID() string {
	return uuid.NewString()
}

// StopAt is the absolute source position where a clipped track ends.
func (t Track) StopAt() int {
	return t.Offset + t.Length
}
