package persistence

import (
	"context"
	"fmt"
)

// CopyProgressTable records tables already copied by an in-flight tenant database rename.
const CopyProgressTable = "tenant_database_copies"

// CopyProgressStore tracks per-table completion of a rename so an interrupted copy can resume.
type CopyProgressStore struct {
	db Querier
}

// NewCopyProgressStore wraps db, which may be a pool or an open transaction.
func NewCopyProgressStore(db Querier) *CopyProgressStore {
	if db == nil {
		panic("copy progress store requires querier")
	}
	return &CopyProgressStore{db: db}
}

// Completed returns table -> rows copied for the source/target pair.
func (s *CopyProgressStore) Completed(ctx context.Context, source, target string) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
        SELECT table_name, rows_copied FROM %s
        WHERE source_database = $1 AND target_database = $2
    `, CopyProgressTable), source, target)
	if err != nil {
		return nil, fmt.Errorf("load copy progress: %w", err)
	}
	defer rows.Close()

	done := make(map[string]int64)
	for rows.Next() {
		var (
			table  string
			copied int64
		)
		if err := rows.Scan(&table, &copied); err != nil {
			return nil, fmt.Errorf("scan copy progress: %w", err)
		}
		done[table] = copied
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return done, nil
}

// MarkCopied records table as fully copied with rows rows.
func (s *CopyProgressStore) MarkCopied(ctx context.Context, source, target, table string, rows int64) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (source_database, target_database, table_name, rows_copied)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (source_database, target_database, table_name)
        DO UPDATE SET rows_copied = EXCLUDED.rows_copied, copied_at = now()
    `, CopyProgressTable), source, target, table, rows)
	if err != nil {
		return fmt.Errorf("record copy progress: %w", err)
	}
	return nil
}

// Forget clears every progress row mentioning database as source or target.
func (s *CopyProgressStore) Forget(ctx context.Context, database string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE source_database = $1 OR target_database = $1
    `, CopyProgressTable), database)
	if err != nil {
		return fmt.Errorf("clear copy progress: %w", err)
	}
	return nil
}
