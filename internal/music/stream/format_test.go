package stream

import (
	"errors"
	"testing"

	"github.com/keshon/groovebox/internal/music/sources"
)

func TestSelectFormatExactMatchWins(t *testing.T) {
	info := sources.TrackInfo{
		Formats: []sources.Format{
			{URL: "high", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 256},
			{URL: "exact", Codec: "opus", Container: "webm", SampleRate: 48000, Bitrate: 96},
		},
	}

	f, err := selectFormat(info)
	if err != nil {
		t.Fatalf("selectFormat: %v", err)
	}
	if f.URL != "exact" {
		t.Errorf("selected %q, want the exact-match candidate", f.URL)
	}
}

func TestSelectFormatLiveUsesTierOrder(t *testing.T) {
	info := sources.TrackInfo{
		IsLive: true,
		Formats: []sources.Format{
			// 256 is above every preferred tier and must lose to 127.
			{URL: "too-high", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 256},
			{URL: "tier-127", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 127},
			{URL: "tier-96", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 96},
		},
	}

	f, err := selectFormat(info)
	if err != nil {
		t.Fatalf("selectFormat: %v", err)
	}
	if f.URL != "tier-127" {
		t.Errorf("selected %q, want tier-127 (highest preferred tier present)", f.URL)
	}
}

func TestSelectFormatLiveNoTierMatch(t *testing.T) {
	info := sources.TrackInfo{
		IsLive: true,
		Formats: []sources.Format{
			{URL: "odd", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 64},
		},
	}

	if _, err := selectFormat(info); !errors.Is(err, ErrNoSuitableFormat) {
		t.Fatalf("err = %v, want ErrNoSuitableFormat", err)
	}
}

func TestSelectFormatPrefersUntaggedBitrate(t *testing.T) {
	info := sources.TrackInfo{
		Formats: []sources.Format{
			{URL: "tagged-high", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 160, HasBitrateTag: true},
			{URL: "untagged-low", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 128},
			{URL: "untagged-lower", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 96},
		},
	}

	f, err := selectFormat(info)
	if err != nil {
		t.Fatalf("selectFormat: %v", err)
	}
	if f.URL != "untagged-low" {
		t.Errorf("selected %q, want the highest candidate without a peak-bitrate tag", f.URL)
	}
}

func TestSelectFormatFallsBackToHighest(t *testing.T) {
	info := sources.TrackInfo{
		Formats: []sources.Format{
			{URL: "mid", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 128, HasBitrateTag: true},
			{URL: "high", Codec: "mp4a", Container: "mp4", SampleRate: 44100, Bitrate: 160, HasBitrateTag: true},
		},
	}

	f, err := selectFormat(info)
	if err != nil {
		t.Fatalf("selectFormat: %v", err)
	}
	if f.URL != "high" {
		t.Errorf("selected %q, want the single highest-bitrate candidate", f.URL)
	}
}

func TestSelectFormatNoCandidates(t *testing.T) {
	if _, err := selectFormat(sources.TrackInfo{}); !errors.Is(err, ErrNoSuitableFormat) {
		t.Fatalf("err = %v, want ErrNoSuitableFormat", err)
	}
	// Candidates with no known bitrate cannot be ranked.
	info := sources.TrackInfo{Formats: []sources.Format{{URL: "mystery"}}}
	if _, err := selectFormat(info); !errors.Is(err, ErrNoSuitableFormat) {
		t.Fatalf("err = %v, want ErrNoSuitableFormat", err)
	}
}

func TestCacheable(t *testing.T) {
	p := &Pipeline{}

	short := sources.TrackInfo{DurationSeconds: 240}
	long := sources.TrackInfo{DurationSeconds: 3600}
	live := sources.TrackInfo{DurationSeconds: 0, IsLive: true}

	tests := []struct {
		name string
		info sources.TrackInfo
		opts Options
		want bool
	}{
		{"short untrimmed", short, Options{}, true},
		{"live", live, Options{}, false},
		{"too long", long, Options{}, false},
		{"seek requested", short, Options{SeekSeconds: 10}, false},
		{"stop requested", short, Options{StopSeconds: 90}, false},
	}

	for _, tt := range tests {
		if got := p.cacheable(tt.info, tt.opts); got != tt.want {
			t.Errorf("%s: cacheable = %v, want %v", tt.name, got, tt.want)
		}
	}
}
