package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

var (
	stateBucket = []byte("state")
	configKey   = []byte("config")
	latestKey   = []byte("latest")
)

// StateStore persists the device configuration and the latest sample across
// server restarts.
type StateStore struct {
	db *bbolt.DB
}

// OpenStateStore opens or creates the state database at path.
func OpenStateStore(path string) (*StateStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	if err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	}); err != nil {
		return nil, errors.Join(fmt.Errorf("creating state bucket: %w", err), db.Close())
	}

	return &StateStore{db: db}, nil
}

func (s *StateStore) SaveConfig(c ad5933.Config) error {
	return s.put(configKey, c)
}

// Config returns the saved configuration, false when none was saved.
func (s *StateStore) Config() (ad5933.Config, bool, error) {
	var c ad5933.Config
	ok, err := s.get(configKey, &c)
	return c, ok, err
}

func (s *StateStore) SaveLatest(sample ad5933.Sample) error {
	return s.put(latestKey, sample)
}

// Latest returns the saved sample, false when none was saved.
func (s *StateStore) Latest() (ad5933.Sample, bool, error) {
	var sample ad5933.Sample
	ok, err := s.get(latestKey, &sample)
	return sample, ok, err
}

func (s *StateStore) Close() error {
	return s.db.Close()
}

func (s *StateStore) put(key []byte, v any) error {
	p, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucket).Put(key, p)
	})
}

func (s *StateStore) get(key []byte, v any) (ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		p := tx.Bucket(stateBucket).Get(key)
		if p == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(p, v)
	})
	if err != nil {
		err = fmt.Errorf("reading %s: %w", key, err)
	}
	return
}
