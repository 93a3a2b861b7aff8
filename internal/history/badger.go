package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
)

const keyPrefix = "history/"

// BadgerStore keeps each window as one JSON value so sessions survive restarts.
type BadgerStore struct {
	mu sync.Mutex
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens a store at path, or an in-memory one when path is empty.
func OpenBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func sessionKey(id string) []byte {
	return []byte(keyPrefix + id)
}

func readWindow(txn *badger.Txn, id string) ([]protocol.Message, error) {
	item, err := txn.Get(sessionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var w []protocol.Message
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &w)
	})
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return w, nil
}

func writeWindow(txn *badger.Txn, id string, w []protocol.Message) error {
	if w == nil {
		w = []protocol.Message{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	return txn.Set(sessionKey(id), data)
}

func (s *BadgerStore) Create(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := readWindow(txn, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			return writeWindow(txn, sessionID, nil)
		}
		return err
	})
}

func (s *BadgerStore) Exists(sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(sessionKey(sessionID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) Append(sessionID string, limit int, msgs ...protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		w, err := readWindow(txn, sessionID)
		if err != nil {
			return err
		}
		return writeWindow(txn, sessionID, bound(append(w, msgs...), limit))
	})
}

func (s *BadgerStore) Snapshot(sessionID string) ([]protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var w []protocol.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		w, err = readWindow(txn, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = []protocol.Message{}
	}
	return w, nil
}

func (s *BadgerStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sessionID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		return txn.Delete(sessionKey(sessionID))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
