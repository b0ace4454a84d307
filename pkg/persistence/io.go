package persistence

import (
	"context"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore keeps all records in a single YAML file. It is meant for local
// runs without a database.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads all records. A missing file holds no records.
func (s *FileStore) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() ([]Record, error) {
	_, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err = yaml.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileStore) save(records []Record) error {
	data, err := yaml.Marshal(records)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0640)
}

func (s *FileStore) AddEvent(_ context.Context, rec *Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return 0, err
	}
	var maxID int64
	for _, r := range records {
		maxID = max(maxID, r.ID)
	}
	rec.ID = maxID + 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.save(append(records, *rec)); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (s *FileStore) GetEvent(_ context.Context, id int64) (*Record, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (s *FileStore) ListEvents(_ context.Context, filter Filter) ([]Record, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}

	matched := []Record{}
	for _, r := range records {
		if matches(&r, filter.Version, filter.Filename) {
			matched = append(matched, r)
		}
	}
	if filter.Offset >= len(matched) {
		return []Record{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *FileStore) CountEvents(_ context.Context, version, filename string) (int, error) {
	records, err := s.Load()
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range records {
		if matches(&records[i], version, filename) {
			count++
		}
	}
	return count, nil
}

func matches(r *Record, version, filename string) bool {
	return (version == "" || r.Version == version) && (filename == "" || r.Filename == filename)
}
