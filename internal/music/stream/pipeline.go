// Package stream turns a queued track into a decoded, time-bounded
// audio byte stream in the opus-in-webm target format, consulting the
// on-disk content cache before going upstream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/groovebox/internal/music/cache"
	"github.com/keshon/groovebox/internal/music/sources"
	"github.com/keshon/groovebox/internal/music/track"
	"github.com/keshon/groovebox/pkg/retrylimit"
)

// Fetches longer than this are never cached.
const cacheDurationCeiling = 30 * time.Minute

// Options bound the produced stream. Zero values mean "from the start"
// and "to the end".
type Options struct {
	SeekSeconds int
	StopSeconds int
}

func (o Options) trimmed() bool {
	return o.SeekSeconds > 0 || o.StopSeconds > 0
}

type Pipeline struct {
	cache      *cache.FileCache
	resolver   sources.Resolver
	limiter    *retrylimit.AdaptiveLimiter
	httpClient *http.Client
	ffmpegPath string
	log        zerolog.Logger
}

func New(blobCache *cache.FileCache, resolver sources.Resolver, ffmpegPath string, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cache:      blobCache,
		resolver:   resolver,
		limiter:    retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ffmpegPath: ffmpegPath,
		log:        log.With().Str("component", "stream").Logger(),
	}
}

// GetStream produces the playable byte stream for a track. The caller
// owns the stream; closing it terminates any underlying transcoder
// process, and cancelling ctx does the same.
func (p *Pipeline) GetStream(ctx context.Context, t track.Track, opts Options) (io.ReadCloser, error) {
	if t.Source == track.LiveSegment {
		return p.fetchRaw(ctx, t.URL)
	}

	key := cache.Key(t.URL)
	if path, err := p.cache.Get(key); err == nil {
		p.log.Debug().Str("url", t.URL).Msg("cache hit")
		return p.runTranscode(ctx, transcodeJob{input: path, opts: opts})
	}

	info, err := p.resolve(ctx, t.URL)
	if err != nil {
		return nil, err
	}

	format, err := selectFormat(info)
	if err != nil {
		return nil, err
	}

	var entry *cache.Entry
	if p.cacheable(info, opts) {
		entry, err = p.cache.Put(key)
		if err != nil {
			// Caching is best-effort; play the track regardless.
			p.log.Warn().Err(err).Str("url", t.URL).Msg("cache entry open failed")
		}
	}

	return p.runTranscode(ctx, transcodeJob{
		input:     format.URL,
		opts:      opts,
		remote:    true,
		copyCodec: isTargetFormat(format),
		tee:       entry,
	})
}

// cacheable: non-live, short enough, and an untrimmed fetch. Partial
// fetches never populate the cache.
func (p *Pipeline) cacheable(info sources.TrackInfo, opts Options) bool {
	if info.IsLive {
		return false
	}
	if time.Duration(info.DurationSeconds)*time.Second >= cacheDurationCeiling {
		return false
	}
	return !opts.trimmed()
}

func isTargetFormat(f sources.Format) bool {
	return f.Codec == targetCodec && f.Container == targetContainer && f.SampleRate == targetSampleRate
}

func (p *Pipeline) resolve(ctx context.Context, url string) (sources.TrackInfo, error) {
	var info sources.TrackInfo
	var gone error
	err := retrylimit.WithRetry(ctx, p.limiter, func() error {
		var rerr error
		info, rerr = p.resolver.Resolve(ctx, url)
		if errors.Is(rerr, sources.ErrResourceGone) {
			// Permanent; retrying cannot help.
			gone = rerr
			return nil
		}
		return rerr
	})
	if err == nil {
		err = gone
	}
	if err != nil {
		return sources.TrackInfo{}, fmt.Errorf("fetch failure: resolve %s: %w", url, err)
	}
	return info, nil
}

// fetchRaw streams a live-segment URL as-is, no local transform.
func (p *Pipeline) fetchRaw(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch failure: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failure: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("fetch failure: %w", sources.ErrResourceGone)
		}
		return nil, fmt.Errorf("fetch failure: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}
