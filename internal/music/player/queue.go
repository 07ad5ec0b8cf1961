package player

import (
	"math/rand"
	"slices"

	"github.com/keshon/groovebox/internal/music/track"
)

// Enqueue adds tracks to the queue. With immediate set and a non-empty
// queue, single standalone tracks are inserted right after the cursor;
// playlist entries (even a playlist of one) and additions to an empty
// queue always append.
func (p *Player) Enqueue(tracks []track.Track, immediate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range tracks {
		if tracks[i].ID == "" {
			tracks[i].ID = track.NewID()
		}
	}

	if len(tracks) == 1 && tracks[0].Playlist == nil && immediate && len(p.queue) > 0 {
		at := p.pos + 1
		if at > len(p.queue) {
			at = len(p.queue)
		}
		p.queue = slices.Insert(p.queue, at, tracks[0])
		return
	}
	p.queue = append(p.queue, tracks...)
}

// QueueSize returns the total number of queued tracks, played and
// upcoming included.
func (p *Player) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// GetQueue returns a copy of the full queue.
func (p *Player) GetQueue() []track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.queue)
}

// GetUpcoming returns a copy of the tracks after the cursor.
func (p *Player) GetUpcoming() []track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos+1 >= len(p.queue) {
		return nil
	}
	return slices.Clone(p.queue[p.pos+1:])
}

// Shuffle randomizes the order of the upcoming tracks. The played
// prefix and the current track stay put.
func (p *Player) Shuffle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	upcoming := p.queue[min(p.pos+1, len(p.queue)):]
	rand.Shuffle(len(upcoming), func(i, j int) {
		upcoming[i], upcoming[j] = upcoming[j], upcoming[i]
	})
}

// Clear drops everything except the current track and rewinds the
// cursor to it.
func (p *Player) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur := p.currentLocked(); cur != nil {
		p.queue = []track.Track{*cur}
	} else {
		p.queue = nil
	}
	p.pos = 0
}

// RemoveAt deletes count tracks from the upcoming view starting at the
// 1-based offset.
func (p *Player) RemoveAt(offset, count int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	upLen := len(p.queue) - p.pos - 1
	if offset < 1 || offset > upLen || count < 1 {
		return ErrIndexOutOfRange
	}
	start := p.pos + offset
	end := min(start+count, len(p.queue))
	p.queue = slices.Delete(p.queue, start, end)
	return nil
}

// RemoveCurrent deletes the track under the cursor. The cursor does not
// move, so it lands on what was the next track.
func (p *Player) RemoveCurrent() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentLocked() == nil {
		return ErrQueueEmpty
	}
	p.queue = slices.Delete(p.queue, p.pos, p.pos+1)
	return nil
}

// Move relocates an upcoming track from one 1-based position to
// another within the upcoming view.
func (p *Player) Move(from, to int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	upLen := len(p.queue) - p.pos - 1
	if from < 1 || from > upLen || to < 1 || to > upLen {
		return ErrIndexOutOfRange
	}
	t := p.queue[p.pos+from]
	p.queue = slices.Delete(p.queue, p.pos+from, p.pos+from+1)
	p.queue = slices.Insert(p.queue, p.pos+to, t)
	return nil
}
