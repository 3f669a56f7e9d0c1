// Package logging implements a small ring-buffer logger shared by the
// mounted filesystem and its diagnostics dashboard.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// RingBuffer is a fixed-capacity, instance-scoped log buffer. Every
// long-lived component that logs owns one rather than reaching for a
// package-level singleton, so independent tests (and independent mounts)
// never share state.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []string
	index int
	full  bool
	size  int

	out    io.Writer
	logger *log.Logger
}

// NewRingBuffer returns a [RingBuffer] holding at most size lines, also
// mirroring every line to out.
func NewRingBuffer(size int, out io.Writer) *RingBuffer {
	if size <= 0 {
		size = 1
	}

	return &RingBuffer{
		buf:    make([]string, size),
		size:   size,
		out:    out,
		logger: log.New(out, "", 0),
	}
}

// Size returns the buffer's capacity in lines.
func (r *RingBuffer) Size() int {
	return r.size
}

// Lines returns the buffered lines, oldest first.
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.index)
		copy(out, r.buf[:r.index])

		return out
	}

	out := make([]string, r.size)
	copy(out, r.buf[r.index:])
	copy(out[r.size-r.index:], r.buf[:r.index])

	return out
}

// Reset discards all buffered lines.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = make([]string, r.size)
	r.index = 0
	r.full = false
}

func (r *RingBuffer) add(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.index] = strings.TrimSuffix(msg, "\n")
	r.index = (r.index + 1) % r.size
	if r.index == 0 {
		r.full = true
	}
}

// Printf formats a message, appends it to the buffer and writes it to out.
func (r *RingBuffer) Printf(format string, args ...any) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)

	r.add(fmt.Sprintf("%s %s", ts, msg))
	r.logger.Printf(format, args...)
}

// Println appends a message to the buffer and writes it to out.
func (r *RingBuffer) Println(args ...any) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	msg := strings.TrimRight(fmt.Sprintln(args...), "\n")

	r.add(fmt.Sprintf("%s %s", ts, msg))
	r.logger.Println(args...)
}

// Debugf behaves like Printf but is expected to be called only when a
// caller's debug toggle is enabled; it exists purely to make debug
// call-sites self-documenting.
func (r *RingBuffer) Debugf(format string, args ...any) {
	r.Printf("[debug] "+format, args...)
}
