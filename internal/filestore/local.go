package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type localConfig struct {
	Dir string `json:"dir"`
}

// localSource resolves keys under dir. With no dir, keys are plain paths.
type localSource struct {
	dir string
}

func newLocalSource(opts localConfig) *localSource {
	return &localSource{dir: opts.Dir}
}

func (s *localSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("dataset key is required")
	}
	if s.dir == "" {
		return os.Open(key)
	}
	if strings.Contains(key, "..") {
		return nil, fmt.Errorf("invalid dataset key")
	}
	return os.Open(filepath.Join(s.dir, filepath.Clean("/"+key)))
}
