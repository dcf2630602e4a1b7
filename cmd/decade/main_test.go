package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "1", "date": "2022-07-10", "location": "Jeju", "caption": "Family at the beach", "media_type": "photo",
		 "faces": [{"person": "Mina", "emotion": "happy"}]},
		{"caption": "Office meeting", "media_type": "video"}
	]`), 0o600))

	records, err := readImportFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "Mina", records[0].Faces[0].Person)
	assert.NotEmpty(t, records[1].ID)
	assert.Equal(t, "video", records[1].MediaType)

	again, err := readImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, records[1].ID, again[1].ID)
}

func TestReadImportFileDistinctContentGetsDistinctIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"date": "2022-07-10", "caption": "Office meeting", "media_type": "photo"},
		{"date": "2022-07-11", "caption": "Office meeting", "media_type": "photo"}
	]`), 0o600))

	records, err := readImportFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestReadImportFileRequiresMediaType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "1"}]`), 0o600))

	_, err := readImportFile(path)
	assert.ErrorContains(t, err, "media_type")
}

func TestLoadProfile(t *testing.T) {
	t.Setenv("DECADE_REMOTE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Cleanup(viper.Reset)

	viper.Set("mode", "dev")
	viper.Set("data", t.TempDir())
	viper.Set("driver", "sqlite")
	viper.Set("backends.local.provider", "hash")
	viper.Set("backends.remote.provider", "openai")
	viper.Set("backends.remote.api_key", "sk-test")
	viper.Set("retrieval.min_score", 0.3)
	viper.Set("retrieval.backend_timeout", "2s")
	viper.Set("retrieval.query_timeout", "1s")
	viper.Set("indexer.batch_size", 500)

	p, err := loadProfile()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", p.RemoteAPIKey)
	assert.True(t, p.HasRemoteBackend())
	assert.Equal(t, 0.3, p.MinScore)
	assert.Equal(t, 384, p.LocalDimensions)
	assert.Equal(t, 50, p.IndexBatchSize)
	assert.Equal(t, 2*time.Second, p.BackendTimeout)
	assert.Equal(t, 2*time.Second, p.QueryTimeout)
	assert.NotEmpty(t, p.Version)
}
