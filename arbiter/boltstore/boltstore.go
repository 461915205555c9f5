// Package boltstore keeps arbiter records in a local bbolt file. It suits
// development and single-box deployments where every replica shares one
// filesystem.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/unkn0wn-root/tiercache/arbiter"
)

// Store keeps one bucket per deployment. Keys are big-endian sequence
// numbers, so the last key is the newest record.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

var _ arbiter.Store = (*Store)(nil)

type row struct {
	ServerHost  string    `json:"server_host"`
	InsertedAt  time.Time `json:"inserted_at"`
	InsertedBy  string    `json:"inserted_by"`
	Description string    `json:"description"`
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Latest(ctx context.Context, deployment string) (arbiter.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return arbiter.Record{}, false, err
	}
	var (
		rec   arbiter.Record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(deployment))
		if b == nil {
			return nil
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return nil
		}
		var r row
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		rec = arbiter.Record{
			ServerHostPort: arbiter.Clean(r.ServerHost),
			InsertedAt:     r.InsertedAt,
			InsertedBy:     r.InsertedBy,
			Description:    r.Description,
			Deployment:     deployment,
		}
		found = true
		return nil
	})
	if err != nil {
		return arbiter.Record{}, false, fmt.Errorf("boltstore: latest %s: %w", deployment, err)
	}
	return rec, found, nil
}

func (s *Store) Insert(ctx context.Context, rec arbiter.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Deployment == "" {
		return fmt.Errorf("boltstore: insert: empty deployment")
	}
	at := rec.InsertedAt
	if at.IsZero() {
		at = s.now()
	}
	v, err := json.Marshal(row{
		ServerHost:  arbiter.Clean(rec.ServerHostPort),
		InsertedAt:  at.UTC(),
		InsertedBy:  rec.InsertedBy,
		Description: rec.Description,
	})
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(rec.Deployment))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], seq)
		return b.Put(k[:], v)
	})
	if err != nil {
		return fmt.Errorf("boltstore: insert %s: %w", rec.Deployment, err)
	}
	return nil
}

// Count returns how many records deployment has.
func (s *Store) Count(deployment string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(deployment)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
