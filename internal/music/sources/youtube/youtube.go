package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"github.com/keshon/groovebox/internal/music/sources"
	"github.com/keshon/groovebox/internal/music/track"
)

// Resolver resolves YouTube watch URLs into candidate audio streams.
type Resolver struct {
	client *youtube.Client
	log    zerolog.Logger
}

func New(httpClient *http.Client, log zerolog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Resolver{
		client: &youtube.Client{HTTPClient: httpClient},
		log:    log.With().Str("component", "youtube").Logger(),
	}
}

func (r *Resolver) Resolve(ctx context.Context, url string) (sources.TrackInfo, error) {
	video, err := r.client.GetVideoContext(ctx, url)
	if err != nil {
		var playErr *youtube.ErrPlayabiltyStatus
		if errors.As(err, &playErr) {
			return sources.TrackInfo{}, fmt.Errorf("%w: %s", sources.ErrResourceGone, playErr.Reason)
		}
		return sources.TrackInfo{}, fmt.Errorf("get video: %w", err)
	}

	isLive := video.Duration == 0

	info := sources.TrackInfo{
		DurationSeconds: int(video.Duration.Seconds()),
		IsLive:          isLive,
	}

	for _, f := range video.Formats.WithAudioChannels() {
		streamURL, err := r.client.GetStreamURLContext(ctx, video, &f)
		if err != nil {
			r.log.Debug().Err(err).Int("itag", f.ItagNo).Msg("skip undecipherable format")
			continue
		}

		codec, container := parseMimeType(f.MimeType)
		sampleRate, _ := strconv.Atoi(f.AudioSampleRate)

		// AverageBitrate is bit/s; candidates are ranked in kbit/s.
		bitrate := f.AverageBitrate / 1000
		if bitrate == 0 {
			bitrate = f.Bitrate / 1000
		}

		info.Formats = append(info.Formats, sources.Format{
			URL:           streamURL,
			Codec:         codec,
			Container:     container,
			SampleRate:    sampleRate,
			Bitrate:       bitrate,
			HasBitrateTag: f.Bitrate > 0,
			IsLive:        isLive,
		})
	}

	return info, nil
}

// Lookup fetches queue metadata for a watch or playlist URL. Playlist
// URLs expand into one track per entry, all tagged with the playlist.
func (r *Resolver) Lookup(ctx context.Context, input string) ([]track.Track, error) {
	if strings.Contains(input, "list=") {
		return r.lookupPlaylist(ctx, input)
	}

	video, err := r.client.GetVideoContext(ctx, input)
	if err != nil {
		var playErr *youtube.ErrPlayabiltyStatus
		if errors.As(err, &playErr) {
			return nil, fmt.Errorf("%w: %s", sources.ErrResourceGone, playErr.Reason)
		}
		return nil, fmt.Errorf("get video: %w", err)
	}

	t := track.Track{
		ID:     track.NewID(),
		Title:  video.Title,
		Artist: video.Author,
		URL:    watchURL(video.ID),
		Length: int(video.Duration.Seconds()),
		IsLive: video.Duration == 0,
		Source: track.StandardMedia,
	}
	if len(video.Thumbnails) > 0 {
		t.Thumbnail = video.Thumbnails[0].URL
	}
	return []track.Track{t}, nil
}

func (r *Resolver) lookupPlaylist(ctx context.Context, input string) ([]track.Track, error) {
	playlist, err := r.client.GetPlaylistContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get playlist: %w", err)
	}

	batch := &track.Playlist{Title: playlist.Title, URL: input}
	tracks := make([]track.Track, 0, len(playlist.Videos))
	for _, entry := range playlist.Videos {
		t := track.Track{
			ID:       track.NewID(),
			Title:    entry.Title,
			Artist:   entry.Author,
			URL:      watchURL(entry.ID),
			Length:   int(entry.Duration.Seconds()),
			Playlist: batch,
			Source:   track.StandardMedia,
		}
		if len(entry.Thumbnails) > 0 {
			t.Thumbnail = entry.Thumbnails[0].URL
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// parseMimeType splits values like `audio/webm; codecs="opus"` into the
// codec and container parts.
func parseMimeType(mimeType string) (codec, container string) {
	parts := strings.SplitN(mimeType, ";", 2)
	if slash := strings.IndexByte(parts[0], '/'); slash >= 0 {
		container = strings.TrimSpace(parts[0][slash+1:])
	}
	if len(parts) == 2 {
		rest := strings.TrimSpace(parts[1])
		rest = strings.TrimPrefix(rest, "codecs=")
		rest = strings.Trim(rest, `"`)
		// Composite codec strings keep only the leading codec name.
		codec = strings.SplitN(rest, ".", 2)[0]
		codec = strings.SplitN(codec, ",", 2)[0]
	}
	return codec, container
}
