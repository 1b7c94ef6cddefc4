package stream_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linedex/linedex/pkg/lineindex"
	"github.com/linedex/linedex/pkg/stream"
)

func writeSource(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.jsonl")

	var data []byte
	for _, line := range lines {
		data = append(data, line...)
		data = append(data, '\n')
	}

	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func openIndex(t *testing.T, path string) *lineindex.Index {
	t.Helper()

	ix, err := lineindex.Open(path, lineindex.WithAutoSave(false))
	require.NoError(t, err)

	return ix
}

func collect(t *testing.T, s *stream.Stream, ctx context.Context) ([]stream.Record, error) {
	t.Helper()

	var records []stream.Record

	for rec, err := range s.Records(ctx) {
		if err != nil {
			return records, err
		}

		records = append(records, rec)
	}

	return records, nil
}

func TestStream_YieldsAllRecordsInOrder(t *testing.T) {
	t.Parallel()

	path := writeSource(t, `{"id":0}`, `{"id":1}`, `{"id":2}`)
	ix := openIndex(t, path)
	defer ix.Close()

	s, err := stream.New(ix)
	require.NoError(t, err)

	records, err := collect(t, s, context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.Equal(t, uint64(i), rec.Line)

		raw, ok := rec.Value.(json.RawMessage)
		require.True(t, ok)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%d}`, i), string(raw))
	}

	assert.Equal(t, uint64(3), s.Yielded())
	assert.Equal(t, uint64(3), s.Position())
}

func TestStream_StartSkipLimit(t *testing.T) {
	t.Parallel()

	path := writeSource(t, `{"id":0}`, `{"id":1}`, `{"id":2}`, `{"id":3}`, `{"id":4}`)
	ix := openIndex(t, path)
	defer ix.Close()

	s, err := stream.New(ix,
		stream.WithStart(1),
		stream.WithSkip(1),
		stream.WithLimit(2),
	)
	require.NoError(t, err)

	records, err := collect(t, s, context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, uint64(2), records[0].Line)
	assert.Equal(t, uint64(3), records[1].Line)
	assert.Equal(t, uint64(2), s.Yielded())
}

func TestStream_NegativeStartClampsToZero(t *testing.T) {
	t.Parallel()

	path := writeSource(t, `{"id":0}`, `{"id":1}`)
	ix := openIndex(t, path)
	defer ix.Close()

	s, err := stream.New(ix, stream.WithStart(-10))
	require.NoError(t, err)

	records, err := collect(t, s, context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(0), records[0].Line)
}

func TestStream_CancellationBetweenHops(t *testing.T) {
	t.Parallel()

	lines := make([]string, 10)
	for i := range lines {
		lines[i] = `{"id":` + string(rune('0'+i)) + `}`
	}

	path := writeSource(t, lines...)
	ix := openIndex(t, path)
	defer ix.Close()

	s, err := stream.New(ix, stream.WithBatchSize(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := collect(t, s, ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, records, 2)
}

func TestStream_DecodeErrorPolicies(t *testing.T) {
	t.Parallel()

	t.Run("raise_stops_at_bad_line", func(t *testing.T) {
		t.Parallel()

		path := writeSource(t, `{"id":0}`, `not json`, `{"id":2}`)
		ix := openIndex(t, path)
		defer ix.Close()

		s, err := stream.New(ix, stream.WithDecodeErrorPolicy(stream.Raise))
		require.NoError(t, err)

		records, err := collect(t, s, context.Background())
		require.Error(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("skip_drops_bad_line", func(t *testing.T) {
		t.Parallel()

		path := writeSource(t, `{"id":0}`, `not json`, `{"id":2}`)
		ix := openIndex(t, path)
		defer ix.Close()

		s, err := stream.New(ix, stream.WithDecodeErrorPolicy(stream.Skip))
		require.NoError(t, err)

		records, err := collect(t, s, context.Background())
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, uint64(0), records[0].Line)
		assert.Equal(t, uint64(2), records[1].Line)
	})

	t.Run("raw_yields_line_text", func(t *testing.T) {
		t.Parallel()

		path := writeSource(t, `{"id":0}`, `not json`)
		ix := openIndex(t, path)
		defer ix.Close()

		s, err := stream.New(ix, stream.WithDecodeErrorPolicy(stream.Raw))
		require.NoError(t, err)

		records, err := collect(t, s, context.Background())
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "not json", records[1].Value)
	})
}

func TestStream_SourceGone(t *testing.T) {
	t.Parallel()

	path := writeSource(t, `{"id":0}`)
	ix := openIndex(t, path)
	defer ix.Close()

	require.NoError(t, os.Remove(path))

	_, err := stream.New(ix)
	require.ErrorIs(t, err, stream.ErrSourceGone)
}

func TestStream_SourceTruncated(t *testing.T) {
	t.Parallel()

	path := writeSource(t, `{"id":0}`, `{"id":1}`)
	ix := openIndex(t, path)
	defer ix.Close()

	require.NoError(t, os.WriteFile(path, []byte("{\"id\":0}\n"), 0o600))

	_, err := stream.New(ix)
	require.ErrorIs(t, err, stream.ErrTruncated)
}

func TestStream_EmptySource(t *testing.T) {
	t.Parallel()

	path := writeSource(t)
	ix := openIndex(t, path)
	defer ix.Close()

	s, err := stream.New(ix)
	require.NoError(t, err)

	records, err := collect(t, s, context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, uint64(0), s.Yielded())
}
