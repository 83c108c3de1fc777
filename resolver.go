package sharekit

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"

	"github.com/fernandezvara/dbkit"
)

// QuerySpec declares which access paths an effective-privilege query
// combines. The three flags correspond to the direct grant, group-membership
// and community peer-group paths. All eight combinations are legal and
// behave uniformly; there is no per-combination special casing beyond the
// documented OWNER squash in explicit-access listings.
type QuerySpec struct {
	ViaUser      bool
	ViaGroup     bool
	ViaCommunity bool
}

// AllPaths is the default query spec: combine every access path.
func AllPaths() QuerySpec {
	return QuerySpec{ViaUser: true, ViaGroup: true, ViaCommunity: true}
}

// ResourceAccess is an immutable snapshot of everything needed to resolve
// one user's privilege over one resource. The resolution functions over it
// are pure: no queries, no caching, no side effects.
type ResourceAccess struct {
	User     User
	Resource Resource

	// Direct is the user's own privilege row, PrivilegeNone when absent.
	Direct PrivilegeCode

	// UserGroups maps active groups the user belongs to onto the user's
	// privilege within each group. Any entry means membership.
	UserGroups map[string]PrivilegeCode

	// HoldingGroups maps active groups holding privilege over the resource
	// onto that privilege.
	HoldingGroups map[string]PrivilegeCode

	// Memberships are the active-community membership rows of every group
	// in UserGroups and HoldingGroups, allow_view included.
	Memberships []communityMembership
}

// ViaUser returns the direct-path privilege.
func (a *ResourceAccess) ViaUser() PrivilegeCode {
	return a.Direct
}

// ViaGroup returns the group-mediated privilege: the most permissive
// privilege held over the resource by any active group the user belongs to.
func (a *ResourceAccess) ViaGroup() PrivilegeCode {
	p := PrivilegeNone
	for g, held := range a.HoldingGroups {
		if _, member := a.UserGroups[g]; member {
			p = MinPrivilege(p, held)
		}
	}
	return p
}

// ViaCommunity returns the community-mediated privilege. For every group g
// holding privilege over the resource whose community membership has
// allow_view set, a member of any peer group g2 in the same community gains
// CHANGE when both g and g2 hold CHANGE community privilege, and VIEW
// otherwise. The most permissive qualifying combination wins.
func (a *ResourceAccess) ViaCommunity() PrivilegeCode {
	// Memberships of groups the user belongs to, indexed by community.
	peerByCommunity := make(map[string][]communityMembership)
	for _, m := range a.Memberships {
		if _, member := a.UserGroups[m.GroupID]; member {
			peerByCommunity[m.CommunityID] = append(peerByCommunity[m.CommunityID], m)
		}
	}

	p := PrivilegeNone
	for _, m := range a.Memberships {
		if _, holds := a.HoldingGroups[m.GroupID]; !holds || !m.AllowView {
			continue
		}
		for _, peer := range peerByCommunity[m.CommunityID] {
			if peer.GroupID == m.GroupID {
				continue
			}
			candidate := PrivilegeView
			if m.Privilege == PrivilegeChange && peer.Privilege == PrivilegeChange {
				candidate = PrivilegeChange
			}
			p = MinPrivilege(p, candidate)
		}
	}
	return p
}

// Effective resolves the user's privilege over the resource along the paths
// the query spec selects, then applies the object-state overrides: immutability
// caps non-owners at VIEW, and a public resource floors the result at VIEW.
func (a *ResourceAccess) Effective(spec QuerySpec) PrivilegeCode {
	if !a.User.Active || !a.Resource.Active {
		return PrivilegeNone
	}
	if a.User.Superuser {
		return PrivilegeOwner
	}
	if spec.ViaUser && a.Direct == PrivilegeOwner {
		return PrivilegeOwner
	}

	p := PrivilegeNone
	if spec.ViaUser {
		p = MinPrivilege(p, a.ViaUser())
	}
	if spec.ViaGroup {
		p = MinPrivilege(p, a.ViaGroup())
	}
	if spec.ViaCommunity {
		p = MinPrivilege(p, a.ViaCommunity())
	}

	if a.Resource.Immutable && p == PrivilegeChange {
		p = PrivilegeView
	}
	if a.Resource.Public {
		p = MinPrivilege(p, PrivilegeView)
	}
	return p
}

// Resolver computes effective privilege by loading relation snapshots from
// the store and evaluating the pure resolution core over them. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	db     dbkit.IDB
	store  *Store
	logger *slog.Logger
}

// NewResolver creates a resolver over the given database handle.
func NewResolver(db dbkit.IDB, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{db: db, store: NewStore(db), logger: logger}
}

// With returns a view of the resolver bound to another handle, typically a
// transaction.
func (r *Resolver) With(db dbkit.IDB) *Resolver {
	return &Resolver{db: db, store: r.store.With(db), logger: r.logger}
}

// LoadResourceAccess loads the snapshot needed to resolve one user's
// privilege over one resource.
func (r *Resolver) LoadResourceAccess(ctx context.Context, userID, resourceID string) (*ResourceAccess, error) {
	access := &ResourceAccess{
		User:          User{ID: userID},
		Resource:      Resource{ID: resourceID},
		Direct:        PrivilegeNone,
		UserGroups:    make(map[string]PrivilegeCode),
		HoldingGroups: make(map[string]PrivilegeCode),
	}

	user, err := r.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		access.User = *user
	}
	res, err := r.getResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res != nil {
		access.Resource = *res
	}

	direct, err := r.store.GetPrivilege(ctx, UserResource(userID, resourceID))
	if err != nil {
		return nil, err
	}
	access.Direct = direct

	userGroups, err := r.store.activeGroupPrivileges(ctx, PairUserGroup, userID)
	if err != nil {
		return nil, err
	}
	for _, row := range userGroups {
		access.UserGroups[row.ObjectID] = row.Privilege
	}

	holding, err := r.store.activeGroupPrivileges(ctx, PairGroupResource, resourceID)
	if err != nil {
		return nil, err
	}
	for _, row := range holding {
		access.HoldingGroups[row.SubjectID] = row.Privilege
	}

	groupIDs := make([]string, 0, len(access.UserGroups)+len(access.HoldingGroups))
	for g := range access.UserGroups {
		groupIDs = append(groupIDs, g)
	}
	for g := range access.HoldingGroups {
		if _, seen := access.UserGroups[g]; !seen {
			groupIDs = append(groupIDs, g)
		}
	}
	memberships, err := r.store.listCommunityMemberships(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	access.Memberships = memberships

	return access, nil
}

// ResourcePrivilege resolves the user's effective privilege over a resource
// along every access path.
func (r *Resolver) ResourcePrivilege(ctx context.Context, userID, resourceID string) (PrivilegeCode, error) {
	return r.ResourcePrivilegeSpec(ctx, userID, resourceID, AllPaths())
}

// ResourcePrivilegeSpec resolves the user's effective privilege over a
// resource along the paths the query spec selects.
func (r *Resolver) ResourcePrivilegeSpec(ctx context.Context, userID, resourceID string, spec QuerySpec) (PrivilegeCode, error) {
	access, err := r.LoadResourceAccess(ctx, userID, resourceID)
	if err != nil {
		return PrivilegeNone, err
	}
	p := access.Effective(spec)
	r.logger.DebugContext(ctx, "resolved resource privilege",
		"user", userID, "resource", resourceID, "privilege", p.String())
	return p, nil
}

// GroupPrivilege resolves a user's effective privilege over a group: the
// direct user-group relation only. Groups are never reached transitively.
// Superusers resolve to OWNER.
func (r *Resolver) GroupPrivilege(ctx context.Context, userID, groupID string) (PrivilegeCode, error) {
	user, err := r.getUser(ctx, userID)
	if err != nil {
		return PrivilegeNone, err
	}
	if user == nil || !user.Active {
		return PrivilegeNone, nil
	}
	if user.Superuser {
		return PrivilegeOwner, nil
	}
	return r.store.GetPrivilege(ctx, UserGroup(userID, groupID))
}

// CommunityPrivilege resolves a user's effective privilege over a community
// object: the direct user-community relation only. This is distinct from
// community membership, which is derived through member groups; see
// IsCommunityMember.
func (r *Resolver) CommunityPrivilege(ctx context.Context, userID, communityID string) (PrivilegeCode, error) {
	user, err := r.getUser(ctx, userID)
	if err != nil {
		return PrivilegeNone, err
	}
	if user == nil || !user.Active {
		return PrivilegeNone, nil
	}
	if user.Superuser {
		return PrivilegeOwner, nil
	}
	return r.store.GetPrivilege(ctx, UserCommunity(userID, communityID))
}

// EffectivePrivilege resolves the subject's effective privilege over the
// object for any of the six pair kinds. User-resource pairs combine all
// paths; every other kind is the direct relation.
func (r *Resolver) EffectivePrivilege(ctx context.Context, p Pair) (PrivilegeCode, error) {
	switch p.Kind {
	case PairUserResource:
		return r.ResourcePrivilege(ctx, p.SubjectID, p.ObjectID)
	case PairUserGroup:
		return r.GroupPrivilege(ctx, p.SubjectID, p.ObjectID)
	case PairUserCommunity:
		return r.CommunityPrivilege(ctx, p.SubjectID, p.ObjectID)
	default:
		return r.store.GetPrivilege(ctx, p)
	}
}

// IsCommunityMember reports whether the user belongs to any active group
// that is a member of the community. Holding privilege on the community
// object itself is a different notion and does not imply membership.
func (r *Resolver) IsCommunityMember(ctx context.Context, userID, communityID string) (bool, error) {
	userGroups, err := r.store.activeGroupPrivileges(ctx, PairUserGroup, userID)
	if err != nil {
		return false, err
	}
	if len(userGroups) == 0 {
		return false, nil
	}
	groupIDs := make([]string, 0, len(userGroups))
	for _, row := range userGroups {
		groupIDs = append(groupIDs, row.ObjectID)
	}
	memberships, err := r.store.listCommunityMemberships(ctx, groupIDs)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.CommunityID == communityID {
			return true, nil
		}
	}
	return false, nil
}

// IsGroupMember reports whether the user holds any privilege in the group.
func (r *Resolver) IsGroupMember(ctx context.Context, userID, groupID string) (bool, error) {
	p, err := r.store.GetPrivilege(ctx, UserGroup(userID, groupID))
	if err != nil {
		return false, err
	}
	return p != PrivilegeNone, nil
}

// Owns reports whether the user holds direct OWNER privilege on the object
// side of the pair kind.
func (r *Resolver) Owns(ctx context.Context, userID string, kind PairKind, objectID string) (bool, error) {
	var p Pair
	switch kind.Object() {
	case ObjectResource:
		p = UserResource(userID, objectID)
	case ObjectGroup:
		p = UserGroup(userID, objectID)
	case ObjectCommunity:
		p = UserCommunity(userID, objectID)
	}
	priv, err := r.store.GetPrivilege(ctx, p)
	if err != nil {
		return false, err
	}
	return priv == PrivilegeOwner, nil
}

// ListUsersWithResourcePrivilege returns the sorted set of user IDs whose
// effective privilege over the resource, along the selected paths, is at
// least the given level.
func (r *Resolver) ListUsersWithResourcePrivilege(ctx context.Context, resourceID string, level PrivilegeCode, spec QuerySpec) ([]string, error) {
	candidates := make(map[string]struct{})

	if spec.ViaUser {
		direct, err := r.store.ListByObject(ctx, PairUserResource, resourceID)
		if err != nil {
			return nil, err
		}
		for _, row := range direct {
			candidates[row.SubjectID] = struct{}{}
		}
	}
	if spec.ViaGroup || spec.ViaCommunity {
		holding, err := r.store.activeGroupPrivileges(ctx, PairGroupResource, resourceID)
		if err != nil {
			return nil, err
		}
		groupIDs := make([]string, 0, len(holding))
		for _, row := range holding {
			groupIDs = append(groupIDs, row.SubjectID)
		}
		if spec.ViaGroup {
			members, err := r.listGroupsMembers(ctx, groupIDs)
			if err != nil {
				return nil, err
			}
			for _, u := range members {
				candidates[u] = struct{}{}
			}
		}
		if spec.ViaCommunity {
			memberships, err := r.store.listCommunityMemberships(ctx, groupIDs)
			if err != nil {
				return nil, err
			}
			communityIDs := make([]string, 0, len(memberships))
			for _, m := range memberships {
				if m.AllowView {
					communityIDs = append(communityIDs, m.CommunityID)
				}
			}
			peers, err := r.store.listCommunityGroups(ctx, communityIDs)
			if err != nil {
				return nil, err
			}
			peerIDs := make([]string, 0, len(peers))
			for _, m := range peers {
				peerIDs = append(peerIDs, m.GroupID)
			}
			members, err := r.listGroupsMembers(ctx, peerIDs)
			if err != nil {
				return nil, err
			}
			for _, u := range members {
				candidates[u] = struct{}{}
			}
		}
	}

	// Candidates are a superset; the pure core decides membership at level.
	var out []string
	for userID := range candidates {
		access, err := r.LoadResourceAccess(ctx, userID, resourceID)
		if err != nil {
			return nil, err
		}
		if access.Effective(spec).Grants(level) {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListResourcesWithPrivilege returns the sorted set of resource IDs over
// which the subject user holds at least the given level, directly and, when
// viaGroup is set, through group membership.
//
// A direct OWNER grant squashes the group path for that resource: with only
// viaGroup set, resources the user directly owns are excluded even when a
// group independently grants matching access. This mirrors the documented
// explicit-access semantics and is OWNER-specific; CHANGE and VIEW combine
// normally.
func (r *Resolver) ListResourcesWithPrivilege(ctx context.Context, userID string, level PrivilegeCode, viaUser, viaGroup bool) ([]string, error) {
	direct, err := r.store.ListBySubject(ctx, PairUserResource, userID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]struct{})
	for _, row := range direct {
		if row.Privilege == PrivilegeOwner {
			owned[row.ObjectID] = struct{}{}
		}
	}

	out := make(map[string]struct{})
	if viaUser {
		for _, row := range direct {
			if row.Privilege.Grants(level) {
				out[row.ObjectID] = struct{}{}
			}
		}
	}
	if viaGroup {
		userGroups, err := r.store.activeGroupPrivileges(ctx, PairUserGroup, userID)
		if err != nil {
			return nil, err
		}
		for _, g := range userGroups {
			held, err := r.store.ListBySubject(ctx, PairGroupResource, g.ObjectID)
			if err != nil {
				return nil, err
			}
			for _, row := range held {
				if _, squashed := owned[row.ObjectID]; squashed {
					continue
				}
				if row.Privilege.Grants(level) {
					out[row.ObjectID] = struct{}{}
				}
			}
		}
	}

	ids := make([]string, 0, len(out))
	for id := range out {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListSubjectsWithPrivilege returns the sorted subject IDs holding at least
// the given level directly on the object of the pair kind.
func (r *Resolver) ListSubjectsWithPrivilege(ctx context.Context, kind PairKind, objectID string, level PrivilegeCode) ([]string, error) {
	rows, err := r.store.ListByObject(ctx, kind, objectID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		if row.Privilege.Grants(level) {
			out = append(out, row.SubjectID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// listGroupsMembers returns the user IDs holding any privilege in any of
// the given groups.
func (r *Resolver) listGroupsMembers(ctx context.Context, groupIDs []string) ([]string, error) {
	var users []string
	for _, g := range groupIDs {
		rows, err := r.store.ListByObject(ctx, PairUserGroup, g)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			users = append(users, row.SubjectID)
		}
	}
	return users, nil
}

func (r *Resolver) getUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := dbkit.WithErr1(r.db.NewSelect().Model(&user).Where("u.id = ?", id).Limit(1).Scan(ctx), "GetUser").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *Resolver) getGroup(ctx context.Context, id string) (*Group, error) {
	var group Group
	err := dbkit.WithErr1(r.db.NewSelect().Model(&group).Where("g.id = ?", id).Limit(1).Scan(ctx), "GetGroup").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *Resolver) getCommunity(ctx context.Context, id string) (*Community, error) {
	var community Community
	err := dbkit.WithErr1(r.db.NewSelect().Model(&community).Where("c.id = ?", id).Limit(1).Scan(ctx), "GetCommunity").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &community, nil
}

func (r *Resolver) getResource(ctx context.Context, id string) (*Resource, error) {
	var resource Resource
	err := dbkit.WithErr1(r.db.NewSelect().Model(&resource).Where("r.id = ?", id).Limit(1).Scan(ctx), "GetResource").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resource, nil
}
