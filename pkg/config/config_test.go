package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quiverio/quiver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MinimalDocument(t *testing.T) {
	path := writeTemp(t, `
input_path: /data/raw.quiver
output_path: /data/processed.quiver
tag_map:
  raw: processed
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/raw.quiver", cfg.InputPath)
	assert.Equal(t, types.TagMap{"raw": "processed"}, cfg.TagMap)
	assert.Equal(t, types.CompressionNone, cfg.Compression.Codec)
	assert.EqualValues(t, 256<<20, cfg.Buffer.MaxBytes)
}

func TestLoad_FullDocument(t *testing.T) {
	path := writeTemp(t, `
input_path: /data/raw.quiver
output_path: /data/processed.quiver
tag_map:
  raw: processed
compression:
  codec: lz4
  level: 4
  checksums: true
buffer:
  max_bytes: 1048576
scheduler:
  writer_threshold: 2
  tick_interval: 5ms
bus:
  listen: 10.0.0.2:7946
  peers:
    - 10.0.0.1:7946
    - 10.0.0.2:7946
local_workers: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.CompressionLZ4, cfg.Compression.Codec)
	assert.Equal(t, 4, cfg.Compression.Level)
	assert.True(t, cfg.Compression.Checksums)
	assert.EqualValues(t, 1048576, cfg.Buffer.MaxBytes)
	assert.Equal(t, 2, cfg.Scheduler.WriterThreshold)
	assert.Equal(t, []string{"10.0.0.1:7946", "10.0.0.2:7946"}, cfg.Bus.Peers)
	assert.Equal(t, 1, cfg.Rank())
	assert.Equal(t, 4, cfg.LocalWorkers)
}

func TestLoad_MissingRequiredFieldIsError(t *testing.T) {
	path := writeTemp(t, `
output_path: /data/processed.quiver
tag_map:
  raw: processed
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyTagMapIsError(t *testing.T) {
	path := writeTemp(t, `
input_path: /data/raw.quiver
output_path: /data/processed.quiver
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnknownCodecIsError(t *testing.T) {
	path := writeTemp(t, `
input_path: /data/raw.quiver
output_path: /data/processed.quiver
tag_map:
  raw: processed
compression:
  codec: zstd
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ListenNotInPeersIsError(t *testing.T) {
	path := writeTemp(t, `
input_path: /data/raw.quiver
output_path: /data/processed.quiver
tag_map:
  raw: processed
bus:
  listen: 10.0.0.9:7946
  peers:
    - 10.0.0.1:7946
    - 10.0.0.2:7946
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRank_NoBusConfigured(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, -1, cfg.Rank())
}
