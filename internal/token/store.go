// Package token maps course codes to stable opaque feed tokens. The map is
// append-only: a course keeps its token forever so published feed URLs
// never break.
package token

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const tokenBucket = "tokens"

// Store is a bbolt-backed token map.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the token database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("token: opening db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tokenBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("token: creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ensure returns the token for course, minting one if the course has none.
// Existing tokens are never regenerated.
func (s *Store) Ensure(course string) (string, error) {
	var tok string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tokenBucket))
		if v := b.Get([]byte(course)); len(v) > 0 {
			tok = string(v)
			return nil
		}
		tok = newToken()
		return b.Put([]byte(course), []byte(tok))
	})
	if err != nil {
		return "", fmt.Errorf("token: ensuring token for %s: %w", course, err)
	}
	return tok, nil
}

// newToken mints a 16-hex-char (64-bit) opaque token.
func newToken() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:16]
}
