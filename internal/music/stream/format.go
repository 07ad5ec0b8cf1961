package stream

import (
	"errors"
	"sort"

	"github.com/keshon/groovebox/internal/music/sources"
)

// ErrNoSuitableFormat is returned when no candidate stream survives
// format selection.
var ErrNoSuitableFormat = errors.New("no suitable format among candidates")

// Playback target. Matching candidates skip transcoding entirely.
const (
	targetCodec      = "opus"
	targetContainer  = "webm"
	targetSampleRate = 48000
)

// liveBitrateTiers is the ordered bitrate preference for live sources.
// It is a preference list, not a "highest wins" sort.
var liveBitrateTiers = []int{128, 127, 120, 96, 95, 94}

// selectFormat picks the candidate stream to play.
//
// Priority:
//  1. a candidate already in the target codec/container/sample-rate
//     triple, which needs no transcoding;
//  2. for live sources, the highest-bitrate candidate whose bitrate
//     sits in the preferred tier list, in tier order;
//  3. otherwise, among candidates with a known average bitrate sorted
//     descending, the first one lacking an explicit peak-bitrate tag
//     (the most uniformly encoded stream), else simply the highest.
func selectFormat(info sources.TrackInfo) (sources.Format, error) {
	if f, ok := exactMatch(info.Formats); ok {
		return f, nil
	}

	if info.IsLive {
		return selectLive(info.Formats)
	}
	return selectByBitrate(info.Formats)
}

func exactMatch(formats []sources.Format) (sources.Format, bool) {
	for _, f := range formats {
		if f.Codec == targetCodec && f.Container == targetContainer && f.SampleRate == targetSampleRate {
			return f, true
		}
	}
	return sources.Format{}, false
}

func selectLive(formats []sources.Format) (sources.Format, error) {
	sorted := sortedByBitrate(formats)
	for _, tier := range liveBitrateTiers {
		for _, f := range sorted {
			if f.Bitrate == tier {
				return f, nil
			}
		}
	}
	return sources.Format{}, ErrNoSuitableFormat
}

func selectByBitrate(formats []sources.Format) (sources.Format, error) {
	sorted := sortedByBitrate(formats)
	if len(sorted) == 0 {
		return sources.Format{}, ErrNoSuitableFormat
	}
	for _, f := range sorted {
		if !f.HasBitrateTag {
			return f, nil
		}
	}
	return sorted[0], nil
}

// sortedByBitrate returns the candidates with a known average bitrate,
// highest first. The sort is stable so equal bitrates keep the
// resolver's candidate order.
func sortedByBitrate(formats []sources.Format) []sources.Format {
	known := make([]sources.Format, 0, len(formats))
	for _, f := range formats {
		if f.Bitrate > 0 {
			known = append(known, f)
		}
	}
	sort.SliceStable(known, func(i, j int) bool {
		return known[i].Bitrate > known[j].Bitrate
	})
	return known
}
