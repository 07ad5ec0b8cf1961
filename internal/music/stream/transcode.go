package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/groovebox/internal/music/cache"
)

// transcodeJob describes one ffmpeg invocation.
type transcodeJob struct {
	input string
	opts  Options
	// remote engages reconnect-on-drop options for http(s) inputs.
	remote bool
	// copyCodec passes audio through instead of re-encoding.
	copyCodec bool
	// tee receives a copy of the output for caching, committed on
	// clean EOF and discarded otherwise.
	tee *cache.Entry
}

func (j transcodeJob) args() []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	if j.remote {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	// Both bounds are input options: -ss discards up to the position
	// and -to stops demuxing at an absolute source timestamp. Output-side
	// -to would count from the seek point instead.
	if j.opts.SeekSeconds > 0 {
		args = append(args, "-ss", strconv.Itoa(j.opts.SeekSeconds))
	}
	if j.opts.StopSeconds > 0 {
		args = append(args, "-to", strconv.Itoa(j.opts.StopSeconds))
	}
	args = append(args, "-i", j.input, "-vn")
	if j.copyCodec {
		args = append(args, "-codec:a", "copy")
	} else {
		args = append(args,
			"-codec:a", "libopus",
			"-ar", strconv.Itoa(targetSampleRate),
			"-ac", "2",
		)
	}
	return append(args, "-f", targetContainer, "pipe:1")
}

// runTranscode spawns the transcoder and returns its output as an
// incremental stream. Closing the stream kills the process immediately.
func (p *Pipeline) runTranscode(ctx context.Context, job transcodeJob) (io.ReadCloser, error) {
	cctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(cctx, p.ffmpegPath, job.args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transcoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		if job.tee != nil {
			job.tee.Discard()
		}
		return nil, fmt.Errorf("transcoder start: %w", err)
	}

	ps := &processStream{
		out:    stdout,
		cancel: cancel,
		tee:    job.tee,
		done:   make(chan struct{}),
		log:    p.log,
	}

	go func() {
		defer close(ps.done)
		err := cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		ps.setProcErr(err)
	}()

	return ps, nil
}

// processStream exposes a transcoder's stdout as an io.ReadCloser.
// Process failures surface through Read while the consumer is still
// reading; once the consumer has closed the stream, late process errors
// are expected (the kill) and dropped.
type processStream struct {
	out    io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}
	log    zerolog.Logger

	mu      sync.Mutex
	tee     *cache.Entry
	closed  bool
	procErr error
}

func (ps *processStream) setProcErr(err error) {
	ps.mu.Lock()
	ps.procErr = err
	ps.mu.Unlock()
}

func (ps *processStream) Read(p []byte) (int, error) {
	n, err := ps.out.Read(p)
	if n > 0 {
		ps.teeWrite(p[:n])
	}
	if err == io.EOF {
		<-ps.done

		ps.mu.Lock()
		procErr := ps.procErr
		closed := ps.closed
		ps.mu.Unlock()

		if procErr != nil && !closed {
			ps.discardTee()
			return n, fmt.Errorf("transcode failure: %w", procErr)
		}
		ps.commitTee()
	}
	return n, err
}

// Close abandons the stream and hard-kills the transcoder.
func (ps *processStream) Close() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	ps.closed = true
	ps.mu.Unlock()

	ps.cancel()
	ps.out.Close()
	<-ps.done

	// A partial fetch never becomes a cache entry.
	ps.discardTee()
	return nil
}

func (ps *processStream) teeWrite(p []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tee == nil {
		return
	}
	if _, err := ps.tee.Write(p); err != nil {
		ps.log.Warn().Err(err).Msg("cache tee write failed, dropping entry")
		ps.tee.Discard()
		ps.tee = nil
	}
}

func (ps *processStream) commitTee() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tee == nil {
		return
	}
	if err := ps.tee.Commit(); err != nil {
		ps.log.Warn().Err(err).Msg("cache commit failed")
	}
	ps.tee = nil
}

func (ps *processStream) discardTee() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.tee != nil {
		ps.tee.Discard()
		ps.tee = nil
	}
}
