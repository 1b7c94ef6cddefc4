package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/linedex/linedex/pkg/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "linedex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, uint32(config.DefaultCheckpointInterval), cfg.Index.CheckpointInterval)
	assert.Equal(t, config.DefaultReadBufferSize, cfg.Index.ReadBufferSize)
	assert.False(t, cfg.Index.Compression)
	assert.True(t, cfg.Index.AutoSave)
	assert.Equal(t, config.DefaultBatchSize, cfg.Stream.BatchSize)
	assert.Equal(t, "raise", cfg.Stream.DecodeErrorPolicy)
	assert.Equal(t, "linedex", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Parallel()

	body, err := yaml.Marshal(map[string]any{
		"index": map[string]any{
			"checkpoint_interval": 500,
			"read_buffer_size":    "1MiB",
			"compression":         true,
		},
		"stream": map[string]any{
			"batch_size":          32,
			"decode_error_policy": "skip",
		},
		"observability": map[string]any{
			"log_level": "debug",
		},
	})
	require.NoError(t, err)

	path := writeConfig(t, string(body))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(500), cfg.Index.CheckpointInterval)
	assert.Equal(t, 1<<20, cfg.Index.ReadBufferBytes())
	assert.True(t, cfg.Index.Compression)
	assert.Equal(t, 32, cfg.Stream.BatchSize)
	assert.Equal(t, "skip", cfg.Stream.DecodeErrorPolicy)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("LINEDEX_STREAM_BATCH_SIZE", "7")

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Stream.BatchSize)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint32(config.DefaultCheckpointInterval), cfg.Index.CheckpointInterval)
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want error
	}{
		{
			name: "zero_checkpoint_interval",
			body: "index:\n  checkpoint_interval: 0\n",
			want: config.ErrInvalidCheckpointInterval,
		},
		{
			name: "bad_read_buffer_size",
			body: "index:\n  read_buffer_size: lots\n",
			want: config.ErrInvalidReadBufferSize,
		},
		{
			name: "zero_batch_size",
			body: "stream:\n  batch_size: 0\n",
			want: config.ErrInvalidBatchSize,
		},
		{
			name: "unknown_decode_policy",
			body: "stream:\n  decode_error_policy: explode\n",
			want: config.ErrInvalidDecodePolicy,
		},
		{
			name: "unknown_log_level",
			body: "observability:\n  log_level: loud\n",
			want: config.ErrInvalidLogLevel,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tc.body))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestIndexConfig_ReadBufferBytes(t *testing.T) {
	t.Parallel()

	cfg := config.IndexConfig{ReadBufferSize: "64KiB"}
	assert.Equal(t, 64<<10, cfg.ReadBufferBytes())

	assert.Len(t, cfg.IndexOptions(), 5)
}

func TestStreamConfig_StreamOptions(t *testing.T) {
	t.Parallel()

	cfg := config.StreamConfig{BatchSize: 10, DecodeErrorPolicy: "raw"}
	assert.Len(t, cfg.StreamOptions(), 2)
}
