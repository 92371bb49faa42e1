package alpaca

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket        = "alpaca"
	hardwareIDKey = "hardware_id"
)

// Store keeps server settings that must survive restarts.
type Store struct {
	db *bolt.DB
}

// NewStore creates the bucket used by the store if it does not exist yet.
func NewStore(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return &Store{db: db}, nil
}

// SetHardwareID saves the hardware identifier unique ids are derived from.
func (s *Store) SetHardwareID(id string) error {
	if _, err := ParseHardwareID(id); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Put([]byte(hardwareIDKey), []byte(id))
	})
}

// HardwareID returns the saved hardware identifier, or ErrNotFound.
func (s *Store) HardwareID() (string, error) {
	var id string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(hardwareIDKey))
		if value == nil {
			return fmt.Errorf("key %s: %w", hardwareIDKey, ErrNotFound)
		}
		id = string(value)
		return nil
	})

	return id, err
}

// ResolveHardwareID picks the identifier used for unique ids. An explicit
// override wins; otherwise the saved value is reused; otherwise detect is
// called. The chosen value is saved so ids stay stable across restarts.
func ResolveHardwareID(st *Store, override string, detect func() (string, error), logger log.FieldLogger) (uint64, error) {
	id := override

	if id == "" {
		saved, err := st.HardwareID()
		switch {
		case err == nil:
			id = saved
		case errors.Is(err, ErrNotFound):
			if id, err = detect(); err != nil {
				return 0, err
			}
			logger.Infof("Detected hardware identifier %s", id)
		default:
			return 0, err
		}
	}

	hw, err := ParseHardwareID(id)
	if err != nil {
		return 0, err
	}
	if hw == 0 {
		return 0, ErrZeroHardwareID
	}

	if err := st.SetHardwareID(id); err != nil {
		return 0, fmt.Errorf("saving hardware identifier: %w", err)
	}
	return hw, nil
}
