package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

// FileStore writes each result as a timestamped JSON file under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) Save(ctx context.Context, r *domain.Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	path := filepath.Join(s.Dir, FileName(r))
	// tulis ke file sementara lalu rename supaya pembaca tidak lihat file setengah jadi
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write result: %w", err)
	}
	return path, nil
}

func (s *FileStore) Check(ctx context.Context) error {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.Dir)
	}
	return nil
}
