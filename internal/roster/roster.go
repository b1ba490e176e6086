package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

var (
	bucketIdentities = []byte("identities")
	bucketEmbeddings = []byte("embeddings")
	bucketMeta       = []byte("meta")

	keyRefreshedAt = []byte("refreshed_at")
)

// ErrIdentityNotFound is returned by Get for unknown codes.
var ErrIdentityNotFound = errors.New("identity not found in roster")

// Store caches enrolled identities and their embeddings on disk.
// Identity metadata is JSON; embeddings are stored as little-endian float32 blobs.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens or creates the roster cache at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketIdentities, bucketEmbeddings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or updates one identity. The embedding is validated here so
// a degenerate vector never reaches the matcher.
func (s *Store) Put(identity domain.Identity) error {
	if identity.Code == "" {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("identity code is required"))
	}
	if err := identity.Embedding.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, identity)
	})
}

// Replace swaps the whole roster in one transaction. Invalid entries are
// skipped and counted; they never abort the swap.
func (s *Store) Replace(identities []domain.Identity) (stored, skipped int, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketIdentities, bucketEmbeddings} {
			if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("clear bucket %s: %w", bucket, err)
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}

		for _, identity := range identities {
			if identity.Code == "" {
				skipped++
				continue
			}
			if err := identity.Embedding.Validate(); err != nil {
				s.logger.Warn("skipping roster entry with invalid embedding",
					"identity_code", identity.Code,
					"error", err,
				)
				skipped++
				continue
			}
			if err := put(tx, identity); err != nil {
				return err
			}
			stored++
		}

		at, err := time.Now().UTC().MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyRefreshedAt, at)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("replace roster: %w", err)
	}

	return stored, skipped, nil
}

func put(tx *bolt.Tx, identity domain.Identity) error {
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode identity %s: %w", identity.Code, err)
	}
	blob, err := identity.Embedding.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode embedding %s: %w", identity.Code, err)
	}

	key := []byte(identity.Code)
	if err := tx.Bucket(bucketIdentities).Put(key, meta); err != nil {
		return err
	}
	return tx.Bucket(bucketEmbeddings).Put(key, blob)
}

// Get returns one identity with its embedding.
func (s *Store) Get(code string) (*domain.Identity, error) {
	var identity domain.Identity
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketIdentities).Get([]byte(code))
		if meta == nil {
			return ErrIdentityNotFound
		}
		if err := json.Unmarshal(meta, &identity); err != nil {
			return fmt.Errorf("decode identity %s: %w", code, err)
		}
		embedding, err := domain.UnmarshalEmbedding(tx.Bucket(bucketEmbeddings).Get([]byte(code)))
		if err != nil {
			return fmt.Errorf("decode embedding %s: %w", code, err)
		}
		identity.Embedding = embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// Delete removes one identity.
func (s *Store) Delete(code string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(code)
		if err := tx.Bucket(bucketIdentities).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketEmbeddings).Delete(key)
	})
}

// List returns every cached identity. Rows that fail to decode are logged
// and left out rather than failing the whole roster.
func (s *Store) List() ([]domain.Identity, error) {
	var identities []domain.Identity
	err := s.db.View(func(tx *bolt.Tx) error {
		embeddings := tx.Bucket(bucketEmbeddings)
		return tx.Bucket(bucketIdentities).ForEach(func(k, v []byte) error {
			var identity domain.Identity
			if err := json.Unmarshal(v, &identity); err != nil {
				s.logger.Warn("skipping undecodable roster entry", "identity_code", string(k), "error", err)
				return nil
			}
			embedding, err := domain.UnmarshalEmbedding(embeddings.Get(k))
			if err != nil {
				s.logger.Warn("skipping roster entry with corrupt embedding", "identity_code", string(k), "error", err)
				return nil
			}
			identity.Embedding = embedding
			identities = append(identities, identity)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return identities, nil
}

// Entries returns the active roster in matcher form.
func (s *Store) Entries() ([]domain.IdentityEmbedding, error) {
	identities, err := s.List()
	if err != nil {
		return nil, err
	}

	active := identities[:0]
	for _, identity := range identities {
		if identity.Active {
			active = append(active, identity)
		}
	}
	return domain.Roster(active), nil
}

// Count returns the number of cached identities.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketIdentities).Stats().KeyN
		return nil
	})
	return n, err
}

// RefreshedAt returns when the roster was last replaced, or the zero time.
func (s *Store) RefreshedAt() (time.Time, error) {
	var at time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyRefreshedAt)
		if data == nil {
			return nil
		}
		return at.UnmarshalBinary(data)
	})
	return at, err
}
