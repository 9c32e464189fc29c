package drafts

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/models"
)

// FileRepository is the fallback draft store: one JSON file per draft under
// a directory. Used when the primary SQLite store fails, so a storage
// problem degrades a save instead of losing it.
type FileRepository struct {
	dir string
}

func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileRepository{dir: dir}, nil
}

type fileDraft struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt int64           `json:"updatedAt"`
}

func (r *FileRepository) Save(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	b, err := json.Marshal(fileDraft{Key: key, Value: value, UpdatedAt: models.TimeToMillis(updatedAt)})
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path(key), b, 0o660); err != nil {
		return fmt.Errorf("write draft file[%s]: %w", key, err)
	}
	return nil
}

func (r *FileRepository) Get(ctx context.Context, key string) (*models.Draft, error) {
	b, err := os.ReadFile(r.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read draft file[%s]: %w", key, err)
	}
	var fd fileDraft
	if err := json.Unmarshal(b, &fd); err != nil {
		return nil, fmt.Errorf("decode draft file[%s]: %w", key, err)
	}
	return &models.Draft{Key: fd.Key, Value: fd.Value, UpdatedAt: models.MillisToTime(fd.UpdatedAt)}, nil
}

func (r *FileRepository) Delete(ctx context.Context, key string) error {
	err := os.Remove(r.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove draft file[%s]: %w", key, err)
	}
	return nil
}

func (r *FileRepository) List(ctx context.Context) ([]models.Draft, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read draft dir: %w", err)
	}

	var result []models.Draft
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue // a torn file must not break listing
		}
		var fd fileDraft
		if err := json.Unmarshal(b, &fd); err != nil {
			continue
		}
		result = append(result, models.Draft{
			Key:       fd.Key,
			Value:     fd.Value,
			UpdatedAt: models.MillisToTime(fd.UpdatedAt),
		})
	}
	return result, nil
}

// path hex-encodes the key so arbitrary draft keys stay filesystem-safe.
func (r *FileRepository) path(key string) string {
	return filepath.Join(r.dir, hex.EncodeToString([]byte(key))+".json")
}
