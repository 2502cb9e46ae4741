package sse

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

const sampleStream = "event: status\n" +
	"data: \"Pipeline Started\"\n\n" +
	"event: jury_thinking\n" +
	"data: {\"msg\":\"Scanning data stores...\",\"is_log\":true}\n\n" +
	": keep-alive\n" +
	"event: critic_thinking\r\n" +
	"data: {\"msg\":\"Checking ARIA labels…\",\"is_log\":true}\r\n\r\n" +
	"data: plain message\n\n" +
	"event: done\n" +
	"data: {\"feature_id\":\"f1\",\"run_id\":\"r1\"}\n\n"

func decodeAll(t *testing.T, chunks [][]byte) []domain.Frame {
	t.Helper()
	dec := NewDecoder()
	var frames []domain.Frame
	for _, c := range chunks {
		frames = append(frames, dec.Feed(c)...)
	}
	return append(frames, dec.Flush()...)
}

func TestDecoderWholeStream(t *testing.T) {
	frames := decodeAll(t, [][]byte{[]byte(sampleStream)})

	require.Len(t, frames, 5)
	assert.Equal(t, domain.Frame{EventType: domain.EventTypeStatus, Data: `"Pipeline Started"`}, frames[0])
	assert.Equal(t, domain.EventTypeJuryThinking, frames[1].EventType)
	assert.Equal(t, `{"msg":"Checking ARIA labels…","is_log":true}`, frames[2].Data)
	assert.Equal(t, domain.Frame{EventType: domain.EventTypeMessage, Data: "plain message"}, frames[3])
	assert.Equal(t, domain.EventTypeDone, frames[4].EventType)
}

func TestDecoderChunkBoundaryInvariance(t *testing.T) {
	want := decodeAll(t, [][]byte{[]byte(sampleStream)})
	data := []byte(sampleStream)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		var chunks [][]byte
		rest := data
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			if n > 17 {
				n = 1 + rng.Intn(17)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		assert.Equal(t, want, decodeAll(t, chunks), "split %d", i)
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	want := decodeAll(t, [][]byte{[]byte(sampleStream)})

	var chunks [][]byte
	for i := range sampleStream {
		chunks = append(chunks, []byte{sampleStream[i]})
	}
	assert.Equal(t, want, decodeAll(t, chunks))
}

func TestDecoderEventTypeResetsAfterData(t *testing.T) {
	frames := decodeAll(t, [][]byte{[]byte("event: status\ndata: A\ndata: B\n")})

	require.Len(t, frames, 2)
	assert.Equal(t, domain.EventTypeStatus, frames[0].EventType)
	assert.Equal(t, domain.EventTypeMessage, frames[1].EventType)
}

func TestDecoderSkipsMalformedLines(t *testing.T) {
	var skipped []string
	dec := NewDecoder(WithSkipHook(func(line string) {
		skipped = append(skipped, line)
	}))

	frames := dec.Feed([]byte("garbage line\nevent: status\nid: 7\ndata: ok\n"))
	frames = append(frames, dec.Flush()...)

	require.Len(t, frames, 1)
	assert.Equal(t, "ok", frames[0].Data)
	assert.Equal(t, []string{"garbage line"}, skipped)
	assert.Equal(t, 1, dec.Skipped())
}

func TestDecoderFlushesUnterminatedLine(t *testing.T) {
	dec := NewDecoder()
	assert.Empty(t, dec.Feed([]byte("event: status\ndata: tail")))

	frames := dec.Flush()
	require.Len(t, frames, 1)
	assert.Equal(t, domain.Frame{EventType: domain.EventTypeStatus, Data: "tail"}, frames[0])
	assert.Empty(t, dec.Flush())
}

func TestReaderNext(t *testing.T) {
	r := NewReader(iotest.OneByteReader(strings.NewReader(sampleStream)))

	var frames []domain.Frame
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, frame)
	}
	assert.Equal(t, decodeAll(t, [][]byte{[]byte(sampleStream)}), frames)
}

func TestReaderNilSource(t *testing.T) {
	_, err := NewReader(nil).Next()
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}

func TestReaderWrapsReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(io.MultiReader(strings.NewReader("data: one\n"), iotest.ErrReader(boom)))

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", frame.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestDecodeStopsOnHandlerError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Decode(context.Background(), strings.NewReader(sampleStream), func(frame domain.Frame) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDecodeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Decode(ctx, strings.NewReader(sampleStream), func(frame domain.Frame) error {
		calls++
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDecodeNilSource(t *testing.T) {
	err := Decode(context.Background(), nil, func(domain.Frame) error { return nil })
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}
