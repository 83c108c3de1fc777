package sharekit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

// Ledger is the provenance ledger: one append-only table per pair kind,
// recording every grant, revoke and undo ever applied. It is the source of
// truth for undo; the privilege store is a cache of each pair's latest entry.
type Ledger struct {
	db dbkit.IDB
}

// NewLedger creates a ledger over the given database handle.
func NewLedger(db dbkit.IDB) *Ledger {
	return &Ledger{db: db}
}

// With returns a view of the ledger bound to another handle, typically a
// transaction. The receiver is unchanged.
func (l *Ledger) With(db dbkit.IDB) *Ledger {
	return &Ledger{db: db}
}

// Append writes one ledger entry. Entries are never updated or deleted.
func (l *Ledger) Append(ctx context.Context, p Pair, privilege PrivilegeCode, grantorID string, at time.Time, undone bool) error {
	sc := p.Kind.schema()
	q := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, privilege, grantor_id, start_at, undone) VALUES (?, ?, ?, ?, ?, ?)",
		sc.provenanceTable, sc.subjectColumn, sc.objectColumn)
	var grantor any
	if grantorID != "" {
		grantor = grantorID
	}
	_, err := l.db.NewRaw(q, p.SubjectID, p.ObjectID, privilege, grantor, at, undone).Exec(ctx)
	return dbkit.WithErr1(err, "AppendProvenance").Err()
}

// Current returns the pair's latest ledger entry, or nil when the pair has
// no history. The latest entry always mirrors the privilege store row.
func (l *Ledger) Current(ctx context.Context, p Pair) (*ProvenanceRow, error) {
	rows, err := l.latest(ctx, p, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Previous returns the pair's second-to-last ledger entry, or nil when the
// current entry is the first ever. Undo re-applies this entry's state.
func (l *Ledger) Previous(ctx context.Context, p Pair) (*ProvenanceRow, error) {
	rows, err := l.latest(ctx, p, 2)
	if err != nil || len(rows) < 2 {
		return nil, err
	}
	return &rows[1], nil
}

func (l *Ledger) latest(ctx context.Context, p Pair, n int) ([]ProvenanceRow, error) {
	sc := p.Kind.schema()
	var rows []ProvenanceRow
	q := fmt.Sprintf(
		`SELECT %s AS subject_id, %s AS object_id, privilege, coalesce(grantor_id, '') AS grantor_id, start_at, undone
		 FROM %s WHERE %s = ? AND %s = ? ORDER BY start_at DESC LIMIT ?`,
		sc.subjectColumn, sc.objectColumn, sc.provenanceTable, sc.subjectColumn, sc.objectColumn)
	err := dbkit.WithErr1(l.db.NewRaw(q, p.SubjectID, p.ObjectID, n).Scan(ctx, &rows), "GetProvenance").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

// NextTimestamp produces a start timestamp strictly greater than the pair's
// latest entry, so per-pair ledger order never depends on wall-clock ties.
func (l *Ledger) NextTimestamp(ctx context.Context, p Pair, now time.Time) (time.Time, error) {
	current, err := l.Current(ctx, p)
	if err != nil {
		return time.Time{}, err
	}
	if current != nil && !now.After(current.StartAt) {
		return current.StartAt.Add(time.Microsecond), nil
	}
	return now, nil
}

// History returns the pair's ledger entries matching the filter, newest
// first. The ledger being append-only, this is the complete audit trail for
// the pair.
func (l *Ledger) History(ctx context.Context, kind PairKind, filter ProvenanceFilter) ([]ProvenanceRow, error) {
	sc := kind.schema()
	q := fmt.Sprintf(
		`SELECT %s AS subject_id, %s AS object_id, privilege, coalesce(grantor_id, '') AS grantor_id, start_at, undone FROM %s`,
		sc.subjectColumn, sc.objectColumn, sc.provenanceTable)

	var clauses []string
	var args []any
	if filter.SubjectID != "" {
		clauses = append(clauses, sc.subjectColumn+" = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.ObjectID != "" {
		clauses = append(clauses, sc.objectColumn+" = ?")
		args = append(args, filter.ObjectID)
	}
	if filter.GrantorID != "" {
		clauses = append(clauses, "grantor_id = ?")
		args = append(args, filter.GrantorID)
	}
	if filter.Undone != nil {
		clauses = append(clauses, "undone = ?")
		args = append(args, *filter.Undone)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "start_at >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "start_at <= ?")
		args = append(args, filter.Until)
	}
	for i, c := range clauses {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 100 // Default limit
	}
	q += " ORDER BY start_at DESC LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	var rows []ProvenanceRow
	err := dbkit.WithErr1(l.db.NewRaw(q, args...).Scan(ctx, &rows), "GetProvenanceHistory").Err()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return rows, nil
}
