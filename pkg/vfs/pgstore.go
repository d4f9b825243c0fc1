package vfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool used by PGStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on PostgreSQL.
//
// Expected tables:
//
//	vfs_nodes(path text primary key, owner_id text, blob_key text,
//	          content_type text, size bigint, modified_at timestamptz, is_dir bool)
//	vfs_grants(path text, user_id text, perm smallint, primary key (path, user_id))
type PGStore struct {
	db Querier
}

// NewPGStore creates a store querying db.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

const (
	statQuery = `SELECT path, owner_id, blob_key, content_type, size, modified_at, is_dir
		FROM vfs_nodes WHERE path = $1`
	ownerQuery = `SELECT owner_id FROM vfs_nodes WHERE path = $1`
	grantQuery = `SELECT perm FROM vfs_grants WHERE path = $1 AND user_id = $2`
)

func (s *PGStore) Stat(ctx context.Context, path string) (Node, error) {
	var n Node
	err := s.db.QueryRow(ctx, statQuery, path).Scan(
		&n.Path, &n.Owner, &n.BlobKey, &n.ContentType, &n.Size, &n.ModTime, &n.IsDir,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return Node{}, fmt.Errorf("vfs: stat %s: %w", path, err)
	}
	return n, nil
}

func (s *PGStore) Owner(ctx context.Context, path string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, ownerQuery, path).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("vfs: owner of %s: %w", path, err)
	}
	return id, nil
}

func (s *PGStore) Grant(ctx context.Context, path, user string) (Perm, error) {
	var perm int16
	err := s.db.QueryRow(ctx, grantQuery, path, user).Scan(&perm)
	if errors.Is(err, pgx.ErrNoRows) {
		return PermNone, nil
	}
	if err != nil {
		return PermNone, fmt.Errorf("vfs: grant on %s: %w", path, err)
	}
	return Perm(perm) & PermAll, nil
}

var _ Store = (*PGStore)(nil)
