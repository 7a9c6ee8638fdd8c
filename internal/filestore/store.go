package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xxxsen/clinrag/internal/config"
)

const (
	SourceLocal = "local"
	SourceS3    = "s3"
)

// Source reads patient datasets by key. The loader is its only caller.
type Source interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// New builds the dataset source selected by cfg.Type. cfg.Data carries the
// source options as decoded from the config file.
func New(cfg config.DatasetStoreConfig) (Source, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Type)); kind {
	case "", SourceLocal:
		var opts localConfig
		if err := bindOptions(cfg.Data, &opts); err != nil {
			return nil, err
		}
		return newLocalSource(opts), nil
	case SourceS3:
		var opts s3Config
		if err := bindOptions(cfg.Data, &opts); err != nil {
			return nil, err
		}
		return newS3Source(opts)
	default:
		return nil, fmt.Errorf("unsupported dataset store type: %s", cfg.Type)
	}
}

// ReadJSON opens key on src and decodes the whole object into dst.
func ReadJSON(ctx context.Context, src Source, key string, dst interface{}) error {
	rc, err := src.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", key, err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(dst); err != nil {
		return fmt.Errorf("decode dataset %s: %w", key, err)
	}
	return nil
}

// bindOptions maps the loosely typed config section onto opts. A missing
// section leaves opts at its zero value.
func bindOptions(raw interface{}, opts interface{}) error {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode dataset store options: %w", err)
	}
	if err := json.Unmarshal(data, opts); err != nil {
		return fmt.Errorf("decode dataset store options: %w", err)
	}
	return nil
}
