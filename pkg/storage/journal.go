package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

// Journal appends every event it handles to a JSON-lines file. It is an
// audit trail only; nothing reads it back at start-up.
type Journal struct {
	mu  sync.Mutex
	f   *os.File
	log *zap.SugaredLogger
}

func NewJournal(path string, log *zap.SugaredLogger) (*Journal, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f, log: log}, nil
}

func (j *Journal) Handle(ev cqrs.Event) {
	if err := j.Append(ev); err != nil {
		j.log.Warnw("journal_append_failed", "instrument", ev.Instrument(), "type", ev.Type(), "err", err)
	}
}

func (j *Journal) Append(ev cqrs.Event) error {
	line, err := cqrs.Marshal(ev)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = fmt.Fprintln(j.f, string(line))
	return err
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
