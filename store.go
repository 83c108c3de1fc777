package sharekit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// Store is the privilege store: one current-privilege table per pair kind.
// Rows are written exclusively by the mutators in lockstep with the ledger;
// everything else reads. Table and column names come from the closed pair
// schema, never from callers.
type Store struct {
	db dbkit.IDB
}

// NewStore creates a privilege store over the given database handle.
func NewStore(db dbkit.IDB) *Store {
	return &Store{db: db}
}

// With returns a view of the store bound to another handle, typically a
// transaction. The receiver is unchanged.
func (s *Store) With(db dbkit.IDB) *Store {
	return &Store{db: db}
}

// Get returns the current privilege row for the pair, or nil when absent.
// Absence means PrivilegeNone.
func (s *Store) Get(ctx context.Context, p Pair) (*PrivilegeRow, error) {
	sc := p.Kind.schema()
	var row PrivilegeRow
	q := fmt.Sprintf(
		"SELECT %s AS subject_id, %s AS object_id, privilege, grantor_id, start_at FROM %s WHERE %s = ? AND %s = ?",
		sc.subjectColumn, sc.objectColumn, sc.privilegeTable, sc.subjectColumn, sc.objectColumn)
	err := dbkit.WithErr1(s.db.NewRaw(q, p.SubjectID, p.ObjectID).Scan(ctx, &row), "GetPrivilege").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetPrivilege returns the current privilege code for the pair, resolving a
// missing row to PrivilegeNone.
func (s *Store) GetPrivilege(ctx context.Context, p Pair) (PrivilegeCode, error) {
	row, err := s.Get(ctx, p)
	if err != nil {
		return PrivilegeNone, err
	}
	if row == nil {
		return PrivilegeNone, nil
	}
	return row.Privilege, nil
}

// Upsert writes the current privilege for the pair. Concurrent creation
// races resolve to one winner through the on-conflict update: the last
// writer's privilege and grantor stand.
func (s *Store) Upsert(ctx context.Context, p Pair, privilege PrivilegeCode, grantorID string, at time.Time) error {
	sc := p.Kind.schema()
	q := fmt.Sprintf(
		`INSERT INTO %s (%s, %s, privilege, grantor_id, start_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (%s, %s) DO UPDATE SET privilege = EXCLUDED.privilege, grantor_id = EXCLUDED.grantor_id, start_at = EXCLUDED.start_at`,
		sc.privilegeTable, sc.subjectColumn, sc.objectColumn, sc.subjectColumn, sc.objectColumn)
	_, err := s.db.NewRaw(q, p.SubjectID, p.ObjectID, privilege, grantorID, at).Exec(ctx)
	return dbkit.WithErr1(err, "UpsertPrivilege").Err()
}

// Clear removes the current privilege row for the pair, leaving the pair at
// PrivilegeNone. The ledger keeps the full history.
func (s *Store) Clear(ctx context.Context, p Pair) error {
	sc := p.Kind.schema()
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
		sc.privilegeTable, sc.subjectColumn, sc.objectColumn)
	_, err := s.db.NewRaw(q, p.SubjectID, p.ObjectID).Exec(ctx)
	return dbkit.WithErr1(err, "ClearPrivilege").Err()
}

// ListByObject returns all current privilege rows over one object.
func (s *Store) ListByObject(ctx context.Context, kind PairKind, objectID string) ([]PrivilegeRow, error) {
	sc := kind.schema()
	var rows []PrivilegeRow
	q := fmt.Sprintf(
		"SELECT %s AS subject_id, %s AS object_id, privilege, grantor_id, start_at FROM %s WHERE %s = ? ORDER BY privilege, subject_id",
		sc.subjectColumn, sc.objectColumn, sc.privilegeTable, sc.objectColumn)
	err := dbkit.WithErr1(s.db.NewRaw(q, objectID).Scan(ctx, &rows), "ListPrivilegeByObject").Err()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return rows, nil
}

// ListBySubject returns all current privilege rows held by one subject.
func (s *Store) ListBySubject(ctx context.Context, kind PairKind, subjectID string) ([]PrivilegeRow, error) {
	sc := kind.schema()
	var rows []PrivilegeRow
	q := fmt.Sprintf(
		"SELECT %s AS subject_id, %s AS object_id, privilege, grantor_id, start_at FROM %s WHERE %s = ? ORDER BY privilege, object_id",
		sc.subjectColumn, sc.objectColumn, sc.privilegeTable, sc.subjectColumn)
	err := dbkit.WithErr1(s.db.NewRaw(q, subjectID).Scan(ctx, &rows), "ListPrivilegeBySubject").Err()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return rows, nil
}

// Owners returns the subject IDs currently holding OWNER over the object.
func (s *Store) Owners(ctx context.Context, kind PairKind, objectID string) ([]string, error) {
	sc := kind.schema()
	var owners []string
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND privilege = ? ORDER BY %s",
		sc.subjectColumn, sc.privilegeTable, sc.objectColumn, sc.subjectColumn)
	err := dbkit.WithErr1(s.db.NewRaw(q, objectID, PrivilegeOwner).Scan(ctx, &owners), "ListOwners").Err()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return owners, nil
}

// CountOwners returns the number of OWNER-privilege subjects on the object.
// Guards call this inside the mutator's transaction so the sole-owner floor
// is checked and enforced atomically.
func (s *Store) CountOwners(ctx context.Context, kind PairKind, objectID string) (int, error) {
	sc := kind.schema()
	var count int
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s = ? AND privilege = ?",
		sc.privilegeTable, sc.objectColumn)
	err := dbkit.WithErr1(s.db.NewRaw(q, objectID, PrivilegeOwner).Scan(ctx, &count), "CountOwners").Err()
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SetAllowView toggles the allow_view flag on a group's community membership
// row. The flag gates peer-group visibility only; it is not a privilege
// level, is not ledgered and cannot be restored by undo.
func (s *Store) SetAllowView(ctx context.Context, groupID, communityID string, allow bool) error {
	res, err := s.db.NewRaw(
		"UPDATE group_community_privilege SET allow_view = ? WHERE group_id = ? AND community_id = ?",
		allow, groupID, communityID).Exec(ctx)
	if err := dbkit.WithErr(res, err, "SetAllowView").Err(); err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return NewError(ErrNotShared, "group has no membership in community").
			WithPair(GroupCommunity(groupID, communityID))
	}
	return nil
}

// communityMembership is one group's membership in one community, as loaded
// for the resolver's community path.
type communityMembership struct {
	GroupID     string        `bun:"group_id"`
	CommunityID string        `bun:"community_id"`
	Privilege   PrivilegeCode `bun:"privilege"`
	AllowView   bool          `bun:"allow_view"`
}

// listCommunityMemberships returns the active-community memberships of the
// given groups, allow_view flag included.
func (s *Store) listCommunityMemberships(ctx context.Context, groupIDs []string) ([]communityMembership, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var rows []communityMembership
	err := dbkit.WithErr1(s.db.NewRaw(
		`SELECT gcp.group_id, gcp.community_id, gcp.privilege, gcp.allow_view
		 FROM group_community_privilege gcp
		 JOIN communities c ON c.id = gcp.community_id
		 WHERE c.active AND gcp.group_id IN (?)`,
		bun.In(groupIDs)).Scan(ctx, &rows), "ListCommunityMemberships").Err()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return rows, nil
}

// listCommunityGroups returns all membership rows of the given communities.
func (s *Store) listCommunityGroups(ctx context.Context, communityIDs []string) ([]communityMembership, error) {
	if len(communityIDs) == 0 {
		return nil, nil
	}
	var rows []communityMembership
	err := dbkit.WithErr1(s.db.NewRaw(
		`SELECT gcp.group_id, gcp.community_id, gcp.privilege, gcp.allow_view
		 FROM group_community_privilege gcp
		 JOIN groups g ON g.id = gcp.group_id
		 WHERE g.active AND gcp.community_id IN (?)`,
		bun.In(communityIDs)).Scan(ctx, &rows), "ListCommunityGroups").Err()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return rows, nil
}

// activeGroupPrivileges filters privilege rows down to those whose group is
// active. kind selects which column carries the group ID.
func (s *Store) activeGroupPrivileges(ctx context.Context, kind PairKind, id string) ([]PrivilegeRow, error) {
	sc := kind.schema()
	var rows []PrivilegeRow
	var q string
	switch kind {
	case PairUserGroup:
		// id is the user; the group is the object.
		q = fmt.Sprintf(
			`SELECT p.%s AS subject_id, p.%s AS object_id, p.privilege, p.grantor_id, p.start_at
			 FROM %s p JOIN groups g ON g.id = p.%s WHERE g.active AND p.%s = ?`,
			sc.subjectColumn, sc.objectColumn, sc.privilegeTable, sc.objectColumn, sc.subjectColumn)
	case PairGroupResource:
		// id is the resource; the group is the subject.
		q = fmt.Sprintf(
			`SELECT p.%s AS subject_id, p.%s AS object_id, p.privilege, p.grantor_id, p.start_at
			 FROM %s p JOIN groups g ON g.id = p.%s WHERE g.active AND p.%s = ?`,
			sc.subjectColumn, sc.objectColumn, sc.privilegeTable, sc.subjectColumn, sc.objectColumn)
	default:
		return nil, fmt.Errorf("sharekit: activeGroupPrivileges does not support pair kind %s", kind)
	}
	err := dbkit.WithErr1(s.db.NewRaw(q, id).Scan(ctx, &rows), "ListActiveGroupPrivileges").Err()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return rows, nil
}
