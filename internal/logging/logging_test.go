package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: lines should be returned in insertion order before the
// buffer wraps.
func Test_RingBuffer_Lines_NotFull_Success(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	rb := NewRingBuffer(4, &out)

	rb.Println("one")
	rb.Println("two")

	lines := rb.Lines()
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "one"))
	require.True(t, strings.HasSuffix(lines[1], "two"))
}

// Expectation: once the buffer wraps, Lines should still report entries
// oldest-first, dropping whatever fell off the head.
func Test_RingBuffer_Lines_Wrapped_Success(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	rb := NewRingBuffer(2, &out)

	rb.Println("one")
	rb.Println("two")
	rb.Println("three")

	lines := rb.Lines()
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "two"))
	require.True(t, strings.HasSuffix(lines[1], "three"))
}

// Expectation: Reset should discard all buffered lines.
func Test_RingBuffer_Reset_Success(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	rb := NewRingBuffer(4, &out)
	rb.Println("one")

	rb.Reset()

	require.Empty(t, rb.Lines())
}

// Expectation: every logged line should also reach the underlying writer.
func Test_RingBuffer_Printf_WritesThrough_Success(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	rb := NewRingBuffer(4, &out)

	rb.Printf("value=%d", 42)

	require.Contains(t, out.String(), "value=42")
}
