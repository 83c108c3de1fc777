package sharekit

import (
	"context"
	"log/slog"

	"github.com/fernandezvara/dbkit"
)

// Guard gates every mutation. It loads the conditions relevant to a request
// inside the caller's transaction and evaluates a pure policy core over
// them, so the sole-owner floor is checked atomically with the write that
// follows. Guards never write.
type Guard struct {
	db       dbkit.IDB
	store    *Store
	ledger   *Ledger
	resolver *Resolver
	logger   *slog.Logger
}

// NewGuard creates a guard over the given database handle.
func NewGuard(db dbkit.IDB, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		db:       db,
		store:    NewStore(db),
		ledger:   NewLedger(db),
		resolver: NewResolver(db, logger),
		logger:   logger,
	}
}

// With returns a view of the guard bound to another handle, typically a
// transaction.
func (g *Guard) With(db dbkit.IDB) *Guard {
	return &Guard{
		db:       db,
		store:    g.store.With(db),
		ledger:   g.ledger.With(db),
		resolver: g.resolver.With(db),
		logger:   g.logger,
	}
}

// shareConditions is everything a share decision depends on, loaded once.
// evaluateShare over it is pure.
type shareConditions struct {
	pair      Pair
	requested PrivilegeCode
	actorID   string

	actorActive    bool
	actorSuperuser bool
	subjectActive  bool
	objectActive   bool

	objectShareable bool
	actorOwnsObject bool
	actorPrivilege  PrivilegeCode // actor's effective privilege on the object
	subjectCurrent  PrivilegeCode
	ownerCount      int

	actorInSubjectGroup bool // group-resource sharing only
	actorOwnsCommunity  bool // group-community sharing only
}

// evaluateShare applies the sharing policy template. The sole-owner floor is
// evaluated last so a denial always names the real blocking reason.
func evaluateShare(c shareConditions) error {
	if !c.requested.Shareable() {
		return NewError(ErrInvalidPrivilege, "privilege is not grantable").
			WithPair(c.pair).WithPrivilege(c.requested)
	}

	// Structural restrictions hold regardless of who asks.
	switch c.pair.Kind {
	case PairGroupResource:
		if c.requested == PrivilegeOwner {
			return NewError(ErrGroupsCannotOwnResources, "").WithPair(c.pair).WithActor(c.actorID)
		}
	case PairGroupCommunity:
		if c.requested == PrivilegeOwner {
			return NewError(ErrGroupsCannotOwnCommunities, "").WithPair(c.pair).WithActor(c.actorID)
		}
	case PairCommunityResource:
		if c.requested != PrivilegeView {
			return NewError(ErrCommunitiesViewOnly, "").WithPair(c.pair).WithActor(c.actorID).WithPrivilege(c.requested)
		}
	}

	if !c.actorActive {
		return NewError(ErrInactiveActor, "").WithActor(c.actorID)
	}
	if !c.subjectActive {
		return NewError(ErrInactiveSubject, "").WithPair(c.pair)
	}
	if !c.objectActive {
		return NewError(ErrInactiveObject, "").WithPair(c.pair)
	}

	if c.pair.Kind == PairGroupResource && !c.actorSuperuser && !c.actorInSubjectGroup {
		return NewError(ErrNotGroupMember, "").WithPair(c.pair).WithActor(c.actorID)
	}
	if c.pair.Kind == PairGroupCommunity && !c.actorSuperuser && !c.actorOwnsCommunity {
		return NewError(ErrMustOwnCommunity, "").WithPair(c.pair).WithActor(c.actorID)
	}

	switch {
	case c.actorSuperuser:
		// Authorized unconditionally.
	case c.actorOwnsObject:
		// Owners can grant or revoke any level, subject to the floor below.
	case c.objectShareable:
		if c.actorPrivilege > c.requested {
			return NewError(ErrInsufficientPrivilege, "cannot grant above own privilege").
				WithPair(c.pair).WithActor(c.actorID).WithPrivilege(c.requested)
		}
		if c.subjectCurrent == c.requested {
			return NewError(ErrNonOwnerReshareDenied, "").
				WithPair(c.pair).WithActor(c.actorID).WithPrivilege(c.requested)
		}
		if c.subjectCurrent != PrivilegeNone && c.requested > c.subjectCurrent &&
			!(c.pair.Kind.Subject() == SubjectUser && c.pair.SubjectID == c.actorID) {
			return NewError(ErrNonOwnerDowngradeDenied, "").
				WithPair(c.pair).WithActor(c.actorID).WithPrivilege(c.requested)
		}
	default:
		return NewError(ErrMustOwnOrHaveSharingPrivilege, "").
			WithPair(c.pair).WithActor(c.actorID)
	}

	if c.subjectCurrent == PrivilegeOwner && c.requested != PrivilegeOwner && c.ownerCount <= 1 {
		return NewError(ErrCannotRemoveSoleOwner, "").WithPair(c.pair).WithActor(c.actorID)
	}
	return nil
}

// unshareConditions is everything an unshare decision depends on.
type unshareConditions struct {
	pair    Pair
	actorID string

	actorActive    bool
	actorSuperuser bool

	actorOwnsObject bool
	subjectCurrent  PrivilegeCode
	ownerCount      int
	quotaHolderID   string // resource objects only
}

// evaluateUnshare applies the unshare policy: the subject must hold access,
// the actor must be a superuser, an owner of the object, or the subject
// itself, and neither the sole-owner floor nor the quota holder may be
// violated.
func evaluateUnshare(c unshareConditions) error {
	if !c.actorActive {
		return NewError(ErrInactiveActor, "").WithActor(c.actorID)
	}
	if c.subjectCurrent == PrivilegeNone {
		return NewError(ErrNotShared, "").WithPair(c.pair)
	}

	self := c.pair.Kind.Subject() == SubjectUser && c.pair.SubjectID == c.actorID
	if !c.actorSuperuser && !c.actorOwnsObject && !self {
		return NewError(ErrMustOwnOrHaveSharingPrivilege, "").
			WithPair(c.pair).WithActor(c.actorID)
	}

	if c.subjectCurrent == PrivilegeOwner && c.ownerCount <= 1 {
		return NewError(ErrCannotRemoveSoleOwner, "").WithPair(c.pair).WithActor(c.actorID)
	}
	if c.pair.Kind == PairUserResource && c.quotaHolderID != "" && c.pair.SubjectID == c.quotaHolderID {
		return NewError(ErrCannotRemoveQuotaHolder, "").WithPair(c.pair).WithActor(c.actorID)
	}
	return nil
}

// undoConditions is everything an undo decision depends on.
type undoConditions struct {
	pair    Pair
	actorID string

	actorActive bool

	current    *ProvenanceRow
	previous   *ProvenanceRow
	ownerCount int
}

// evaluateUndo applies the undo policy. Authority comes from the ledger,
// not from current privilege: only the grantor of the current non-undone
// entry may undo it, even after losing their own access.
func evaluateUndo(c undoConditions) error {
	if !c.actorActive {
		return NewError(ErrInactiveActor, "").WithActor(c.actorID)
	}
	if c.current == nil || c.current.Undone {
		return NewError(ErrNothingToUndo, "").WithPair(c.pair)
	}
	if c.current.GrantorID != c.actorID {
		return NewError(ErrNotLastGrantor, "").WithPair(c.pair).WithActor(c.actorID)
	}

	restored := PrivilegeNone
	if c.previous != nil {
		restored = c.previous.Privilege
	}
	if c.current.Privilege == PrivilegeOwner && restored != PrivilegeOwner && c.ownerCount <= 1 {
		return NewError(ErrCannotRemoveSoleOwner, "").WithPair(c.pair).WithActor(c.actorID)
	}
	return nil
}

// CanShare checks whether the actor may grant the requested privilege for
// the pair. A nil return authorizes the grant.
func (g *Guard) CanShare(ctx context.Context, actorID string, p Pair, requested PrivilegeCode) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c, err := g.loadShareConditions(ctx, actorID, p, requested)
	if err != nil {
		return err
	}
	return evaluateShare(*c)
}

// CanUnshare checks whether the actor may remove the subject's access.
func (g *Guard) CanUnshare(ctx context.Context, actorID string, p Pair) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c, err := g.loadUnshareConditions(ctx, actorID, p)
	if err != nil {
		return err
	}
	return evaluateUnshare(*c)
}

// CanUndoShare checks whether the actor may undo the current grant.
func (g *Guard) CanUndoShare(ctx context.Context, actorID string, p Pair) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c, err := g.loadUndoConditions(ctx, actorID, p)
	if err != nil {
		return err
	}
	return evaluateUndo(*c)
}

func (g *Guard) loadShareConditions(ctx context.Context, actorID string, p Pair, requested PrivilegeCode) (*shareConditions, error) {
	c := &shareConditions{pair: p, requested: requested, actorID: actorID}

	actor, err := g.resolver.getUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor != nil {
		c.actorActive = actor.Active
		c.actorSuperuser = actor.Superuser
	}

	if err := g.loadSubjectState(ctx, p, &c.subjectActive); err != nil {
		return nil, err
	}
	if err := g.loadObjectState(ctx, p, &c.objectActive, &c.objectShareable); err != nil {
		return nil, err
	}

	c.actorOwnsObject, err = g.resolver.Owns(ctx, actorID, p.Kind, p.ObjectID)
	if err != nil {
		return nil, err
	}
	c.actorPrivilege, err = g.actorObjectPrivilege(ctx, actorID, p)
	if err != nil {
		return nil, err
	}
	c.subjectCurrent, err = g.store.GetPrivilege(ctx, p)
	if err != nil {
		return nil, err
	}
	c.ownerCount, err = g.ownerCount(ctx, p)
	if err != nil {
		return nil, err
	}

	if p.Kind == PairGroupResource {
		c.actorInSubjectGroup, err = g.resolver.IsGroupMember(ctx, actorID, p.SubjectID)
		if err != nil {
			return nil, err
		}
	}
	if p.Kind == PairGroupCommunity {
		c.actorOwnsCommunity, err = g.resolver.Owns(ctx, actorID, PairUserCommunity, p.ObjectID)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (g *Guard) loadUnshareConditions(ctx context.Context, actorID string, p Pair) (*unshareConditions, error) {
	c := &unshareConditions{pair: p, actorID: actorID}

	actor, err := g.resolver.getUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor != nil {
		c.actorActive = actor.Active
		c.actorSuperuser = actor.Superuser
	}

	c.actorOwnsObject, err = g.resolver.Owns(ctx, actorID, p.Kind, p.ObjectID)
	if err != nil {
		return nil, err
	}
	c.subjectCurrent, err = g.store.GetPrivilege(ctx, p)
	if err != nil {
		return nil, err
	}
	c.ownerCount, err = g.ownerCount(ctx, p)
	if err != nil {
		return nil, err
	}

	if p.Kind.Object() == ObjectResource {
		res, err := g.resolver.getResource(ctx, p.ObjectID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			c.quotaHolderID = res.QuotaHolderID
		}
	}
	return c, nil
}

func (g *Guard) loadUndoConditions(ctx context.Context, actorID string, p Pair) (*undoConditions, error) {
	c := &undoConditions{pair: p, actorID: actorID}

	actor, err := g.resolver.getUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor != nil {
		c.actorActive = actor.Active
	}

	c.current, err = g.ledger.Current(ctx, p)
	if err != nil {
		return nil, err
	}
	c.previous, err = g.ledger.Previous(ctx, p)
	if err != nil {
		return nil, err
	}
	c.ownerCount, err = g.ownerCount(ctx, p)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ownerCount counts OWNER subjects on the pair's object through the
// user-object relation, which is where ownership lives for every kind.
func (g *Guard) ownerCount(ctx context.Context, p Pair) (int, error) {
	var kind PairKind
	switch p.Kind.Object() {
	case ObjectResource:
		kind = PairUserResource
	case ObjectGroup:
		kind = PairUserGroup
	case ObjectCommunity:
		kind = PairUserCommunity
	}
	return g.store.CountOwners(ctx, kind, p.ObjectID)
}

func (g *Guard) actorObjectPrivilege(ctx context.Context, actorID string, p Pair) (PrivilegeCode, error) {
	switch p.Kind.Object() {
	case ObjectResource:
		return g.resolver.ResourcePrivilege(ctx, actorID, p.ObjectID)
	case ObjectGroup:
		return g.resolver.GroupPrivilege(ctx, actorID, p.ObjectID)
	default:
		return g.resolver.CommunityPrivilege(ctx, actorID, p.ObjectID)
	}
}

func (g *Guard) loadSubjectState(ctx context.Context, p Pair, active *bool) error {
	switch p.Kind.Subject() {
	case SubjectUser:
		u, err := g.resolver.getUser(ctx, p.SubjectID)
		if err != nil {
			return err
		}
		*active = u != nil && u.Active
	case SubjectGroup:
		grp, err := g.resolver.getGroup(ctx, p.SubjectID)
		if err != nil {
			return err
		}
		*active = grp != nil && grp.Active
	case SubjectCommunity:
		com, err := g.resolver.getCommunity(ctx, p.SubjectID)
		if err != nil {
			return err
		}
		*active = com != nil && com.Active
	}
	return nil
}

func (g *Guard) loadObjectState(ctx context.Context, p Pair, active, shareable *bool) error {
	switch p.Kind.Object() {
	case ObjectResource:
		res, err := g.resolver.getResource(ctx, p.ObjectID)
		if err != nil {
			return err
		}
		*active = res != nil && res.Active
		*shareable = res != nil && res.Shareable
	case ObjectGroup:
		grp, err := g.resolver.getGroup(ctx, p.ObjectID)
		if err != nil {
			return err
		}
		*active = grp != nil && grp.Active
		*shareable = grp != nil && grp.Shareable
	case ObjectCommunity:
		com, err := g.resolver.getCommunity(ctx, p.ObjectID)
		if err != nil {
			return err
		}
		*active = com != nil && com.Active
		// Communities have no shareable flag; only owners and superusers
		// may grant access to them.
		*shareable = false
	}
	return nil
}
