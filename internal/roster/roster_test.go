package roster

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

func openTestRoster(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "roster.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func identity(code string, active bool, emb ...float32) domain.Identity {
	return domain.Identity{
		Code:        code,
		DisplayName: "Worker " + code,
		Active:      active,
		Embedding:   emb,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := openTestRoster(t)

	require.NoError(t, s.Put(identity("E001", true, 1, 0, 0)))

	got, err := s.Get("E001")
	require.NoError(t, err)
	assert.Equal(t, "Worker E001", got.DisplayName)
	assert.True(t, got.Active)
	assert.Equal(t, domain.Embedding{1, 0, 0}, got.Embedding)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = s.Get("E404")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestStore_PutValidates(t *testing.T) {
	s := openTestRoster(t)

	tests := []struct {
		name     string
		identity domain.Identity
		wantErr  error
	}{
		{name: "missing code", identity: identity("", true, 1, 0), wantErr: domain.ErrValidationFailed},
		{name: "empty embedding", identity: identity("E001", true), wantErr: domain.ErrInvalidEmbedding},
		{name: "all zero", identity: identity("E001", true, 0, 0, 0), wantErr: domain.ErrInvalidEmbedding},
		{name: "all identical", identity: identity("E001", true, 0.5, 0.5, 0.5), wantErr: domain.ErrInvalidEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put(tt.identity)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ReplaceSwapsRoster(t *testing.T) {
	s := openTestRoster(t)

	require.NoError(t, s.Put(identity("OLD", true, 1, 0, 0)))

	stored, skipped, err := s.Replace([]domain.Identity{
		identity("E001", true, 1, 0, 0),
		identity("E002", false, 0, 1, 0),
		identity("BAD", true, 0, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 1, skipped)

	_, err = s.Get("OLD")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	at, err := s.RefreshedAt()
	require.NoError(t, err)
	assert.False(t, at.IsZero())
}

func TestStore_EntriesOnlyActive(t *testing.T) {
	s := openTestRoster(t)

	require.NoError(t, s.Put(identity("E001", true, 1, 0, 0)))
	require.NoError(t, s.Put(identity("E002", false, 0, 1, 0)))

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "E001", entries[0].Identity.Code)
	assert.Equal(t, domain.Embedding{1, 0, 0}, entries[0].Embedding)
}

func TestStore_ListSkipsCorruptEmbedding(t *testing.T) {
	s := openTestRoster(t)

	require.NoError(t, s.Put(identity("E001", true, 1, 0, 0)))
	require.NoError(t, s.Put(identity("E002", true, 0, 1, 0)))

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put([]byte("E002"), []byte{1, 2, 3})
	})
	require.NoError(t, err)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "E001", list[0].Code)
}

func TestStore_Delete(t *testing.T) {
	s := openTestRoster(t)

	require.NoError(t, s.Put(identity("E001", true, 1, 0, 0)))
	require.NoError(t, s.Delete("E001"))

	_, err := s.Get("E001")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}
