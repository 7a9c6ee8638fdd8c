package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/clinrag/internal/config"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patients.json"), []byte(`[]`), 0o644))

	store, err := New(config.DatasetStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), "patients.json")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))

	_, err = store.Open(context.Background(), "../etc/passwd")
	require.Error(t, err)
	_, err = store.Open(context.Background(), "")
	require.Error(t, err)
}

func TestLocalStoreWithoutDirUsesPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{}]`), 0o644))
	store, err := New(config.DatasetStoreConfig{Type: "local"})
	require.NoError(t, err)
	rc, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestReadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.json"), []byte(`[{"patient_id":7}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`[{`), 0o644))
	src, err := New(config.DatasetStoreConfig{Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "decodes", key: "ok.json"},
		{name: "broken json", key: "bad.json", wantErr: true},
		{name: "missing", key: "none.json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows []map[string]int
			err := ReadJSON(context.Background(), src, tt.key, &rows)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []map[string]int{{"patient_id": 7}}, rows)
		})
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(config.DatasetStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.DatasetStoreConfig{Type: "s3", Data: map[string]interface{}{"bucket": "b"}})
	require.Error(t, err)
}

func TestS3ObjectKey(t *testing.T) {
	s := &s3Source{prefix: "datasets"}
	require.Equal(t, "datasets/mimic.json", s.objectKey("/mimic.json"))
	require.Equal(t, "mimic.json", (&s3Source{}).objectKey("mimic.json"))
	require.Equal(t, "https://minio:9000", buildEndpoint("minio:9000", true))
	require.Equal(t, "http://minio:9000", buildEndpoint("http://minio:9000", true))
}
