package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Execer runs statements and COPY within one transaction. pgx.Tx satisfies
// it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Copier
}

// ScopedRows describes the rows of a table owned by a single parent, such
// as the region results of one run.
type ScopedRows struct {
	Table   string
	Columns []string
	// Keys is the table's unique key. It must include Scope.
	Keys []string
	// Scope is the column holding the owner id.
	Scope string
}

// SyncStats reports what SyncRows changed.
type SyncStats struct {
	Upserted int64
	Deleted  int64
}

func (s ScopedRows) validate() error {
	switch {
	case s.Table == "":
		return eris.New("db: sync: no table specified")
	case len(s.Columns) == 0:
		return eris.Errorf("db: sync %s: no columns specified", s.Table)
	case len(s.Keys) == 0:
		return eris.Errorf("db: sync %s: no key columns specified", s.Table)
	case s.Scope == "" || !slices.Contains(s.Keys, s.Scope):
		return eris.Errorf("db: sync %s: scope column must be one of the keys", s.Table)
	}
	for _, k := range s.Keys {
		if !slices.Contains(s.Columns, k) {
			return eris.Errorf("db: sync %s: key %s is not a column", s.Table, k)
		}
	}
	return nil
}

// SyncRows makes the rows of s.Table whose scope column equals owner exactly
// rows. Rows are staged in a temp table with COPY, upserted with INSERT ...
// ON CONFLICT, and rows of the owner missing from the stage are deleted.
// The staging table is dropped at commit, so call SyncRows at most once per
// table in a transaction.
func SyncRows(ctx context.Context, tx Execer, s ScopedRows, owner any, rows [][]any) (SyncStats, error) {
	var stats SyncStats
	if err := s.validate(); err != nil {
		return stats, err
	}

	target := tableIdent(s.Table).Sanitize()
	stage := fmt.Sprintf("_sync_%s", strings.ReplaceAll(s.Table, ".", "_"))
	stageIdent := pgx.Identifier{stage}.Sanitize()

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", stageIdent, target,
	)); err != nil {
		return stats, eris.Wrapf(err, "db: sync %s: create stage", s.Table)
	}

	if len(rows) > 0 {
		if _, err := CopyFrom(ctx, tx, stage, s.Columns, rows); err != nil {
			return stats, eris.Wrapf(err, "db: sync %s: stage rows", s.Table)
		}

		tag, err := tx.Exec(ctx, upsertSQL(s, target, stageIdent))
		if err != nil {
			return stats, eris.Wrapf(err, "db: sync %s: upsert", s.Table)
		}
		stats.Upserted = tag.RowsAffected()
	}

	tag, err := tx.Exec(ctx, pruneSQL(s, target, stageIdent), owner)
	if err != nil {
		return stats, eris.Wrapf(err, "db: sync %s: prune", s.Table)
	}
	stats.Deleted = tag.RowsAffected()
	return stats, nil
}

func upsertSQL(s ScopedRows, target, stage string) string {
	cols := quoteAndJoin(s.Columns)
	var set []string
	for _, c := range s.Columns {
		if slices.Contains(s.Keys, c) {
			continue
		}
		id := pgx.Identifier{c}.Sanitize()
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	action := "DO NOTHING"
	if len(set) > 0 {
		action = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, stage, quoteAndJoin(s.Keys), action)
}

func pruneSQL(s ScopedRows, target, stage string) string {
	match := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		id := pgx.Identifier{k}.Sanitize()
		match[i] = fmt.Sprintf("st.%s = t.%s", id, id)
	}
	return fmt.Sprintf("DELETE FROM %s t WHERE t.%s = $1 AND NOT EXISTS (SELECT 1 FROM %s st WHERE %s)",
		target, pgx.Identifier{s.Scope}.Sanitize(), stage, strings.Join(match, " AND "))
}
