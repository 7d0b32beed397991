package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
)

// FileSignaler touches one marker file per category. Legacy watchers poll the
// modification time of these files.
type FileSignaler struct {
	dir string
}

func NewFileSignaler(dir string) (*FileSignaler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create notify dir: %w", err)
	}
	return &FileSignaler{dir: dir}, nil
}

func (s *FileSignaler) Path(category Category) string {
	return filepath.Join(s.dir, fmt.Sprintf(".CONTACTS_SVC_%s_CHANGED", category))
}

func (s *FileSignaler) Signal(category Category) error {
	path := s.Path(category)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("signal %s: %w", category, err)
	}
	return file.Close()
}

// SignalerFunc adapts a function to Signaler.
type SignalerFunc func(Category) error

func (f SignalerFunc) Signal(category Category) error { return f(category) }

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(topic ipc.Topic, payload []byte) error

func (f PublisherFunc) Publish(topic ipc.Topic, payload []byte) error { return f(topic, payload) }
