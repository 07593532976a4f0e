package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPollInterval is how often FileStorage.Watch re-reads the token file.
const DefaultPollInterval = time.Second

// tokenFile is the on-disk layout: values grouped by API origin so one file can
// serve several backends.
type tokenFile struct {
	Origins map[string]map[string]string `json:"origins"`
}

// FileStorage persists values in a JSON file shared by every process of the
// same user. Writes go through a lock file and an atomic rename.
type FileStorage struct {
	path         string
	origin       string
	pollInterval time.Duration
}

// NewFileStorage returns a FileStorage for origin backed by path.
// pollInterval <= 0 selects DefaultPollInterval.
func NewFileStorage(path, origin string, pollInterval time.Duration) *FileStorage {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &FileStorage{path: path, origin: origin, pollInterval: pollInterval}
}

// Path returns the token file location.
func (s *FileStorage) Path() string { return s.path }

func (s *FileStorage) Get(_ context.Context, key string) (string, error) {
	f, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := f.Origins[s.origin][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStorage) Set(ctx context.Context, key, value string) error {
	return s.update(ctx, func(values map[string]string) {
		values[key] = value
	})
}

func (s *FileStorage) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(values map[string]string) {
		delete(values, key)
	})
}

// Watch polls the file and calls fn whenever the value under key differs from
// the previous poll.
func (s *FileStorage) Watch(key string, fn func(string)) func() {
	last, _ := s.Get(context.Background(), key)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				v, err := s.Get(context.Background(), key)
				if err != nil && !errors.Is(err, ErrNotFound) {
					continue
				}
				if v != last {
					last = v
					fn(v)
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// read loads the whole file. A missing file reads as empty.
func (s *FileStorage) read() (*tokenFile, error) {
	var f tokenFile
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &f, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &f, nil
}

// update applies mutate to this origin's values under the file lock, leaving
// other origins untouched.
func (s *FileStorage) update(ctx context.Context, mutate func(map[string]string)) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token directory: %w", err)
		}
	}

	lock, err := acquireFileLock(ctx, s.path)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer lock.release()

	f, err := s.read()
	if err != nil {
		// A corrupt file is replaced rather than blocking every future write.
		f = &tokenFile{}
	}
	if f.Origins == nil {
		f.Origins = make(map[string]map[string]string)
	}
	values := f.Origins[s.origin]
	if values == nil {
		values = make(map[string]string)
	}
	mutate(values)
	if len(values) == 0 {
		delete(f.Origins, s.origin)
	} else {
		f.Origins[s.origin] = values
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			return fmt.Errorf(
				"rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
