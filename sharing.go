package sharekit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
)

// Share grants the requested privilege on the pair's object to its subject,
// overwriting whatever the subject held before. The guard check, the
// privilege upsert and the ledger append run in one serializable
// transaction; either all of them land or none do.
//
// On success the returned event describes the zone of influence of the
// mutation and has already been handed to the notifier.
//
// Example:
//
//	event, err := service.Share(ctx, "alice", sharekit.UserResource("bob", "doc1"), sharekit.PrivilegeChange)
//	if sharekit.IsDenied(err) {
//	    // policy denial, state unchanged
//	}
func (s *Service) Share(ctx context.Context, actorID string, p Pair, privilege PrivilegeCode) (*ZoneOfInfluence, error) {
	var event *ZoneOfInfluence

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		if err := guard.CanShare(ctx, actorID, p, privilege); err != nil {
			return nil, err
		}

		at, err := ledger.NextTimestamp(ctx, p, time.Now().UTC())
		if err != nil {
			return nil, storageError("Share", err)
		}
		if err := store.Upsert(ctx, p, privilege, actorID, at); err != nil {
			return nil, storageError("Share", err)
		}
		if err := ledger.Append(ctx, p, privilege, actorID, at, false); err != nil {
			return nil, storageError("Share", err)
		}

		zoi, err := newZoneOfInfluence(ctx, store, MutationShare, actorID, p, privilege, at)
		if err != nil {
			return nil, storageError("Share", err)
		}
		event = &zoi
		return &mutated{event: event}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "privilege shared",
		"actor_id", actorID,
		"pair", p.String(),
		"privilege", privilege.String(),
	)
	return event, nil
}

// Unshare removes the subject's access to the object entirely. The privilege
// row is deleted and a NONE entry is appended to the ledger, so the removal
// itself is part of the provenance history.
func (s *Service) Unshare(ctx context.Context, actorID string, p Pair) (*ZoneOfInfluence, error) {
	var event *ZoneOfInfluence

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		if err := guard.CanUnshare(ctx, actorID, p); err != nil {
			return nil, err
		}

		at, err := ledger.NextTimestamp(ctx, p, time.Now().UTC())
		if err != nil {
			return nil, storageError("Unshare", err)
		}
		if err := store.Clear(ctx, p); err != nil {
			return nil, storageError("Unshare", err)
		}
		if err := ledger.Append(ctx, p, PrivilegeNone, actorID, at, false); err != nil {
			return nil, storageError("Unshare", err)
		}

		zoi, err := newZoneOfInfluence(ctx, store, MutationUnshare, actorID, p, PrivilegeNone, at)
		if err != nil {
			return nil, storageError("Unshare", err)
		}
		event = &zoi
		return &mutated{event: event}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "privilege unshared",
		"actor_id", actorID,
		"pair", p.String(),
	)
	return event, nil
}

// UndoShare reverts the most recent grant on the pair, restoring whatever
// the previous ledger entry recorded (NONE when there is no previous entry,
// which deletes the privilege row). Only the grantor of the current entry
// may undo it, and an entry can be undone at most once: the restored entry
// is appended with its undone flag set, which blocks a second undo.
func (s *Service) UndoShare(ctx context.Context, actorID string, p Pair) (*ZoneOfInfluence, error) {
	var event *ZoneOfInfluence

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		if err := guard.CanUndoShare(ctx, actorID, p); err != nil {
			return nil, err
		}

		previous, err := ledger.Previous(ctx, p)
		if err != nil {
			return nil, storageError("UndoShare", err)
		}

		restored := PrivilegeNone
		grantor := ""
		if previous != nil {
			restored = previous.Privilege
			grantor = previous.GrantorID
		}

		at, err := ledger.NextTimestamp(ctx, p, time.Now().UTC())
		if err != nil {
			return nil, storageError("UndoShare", err)
		}
		if restored == PrivilegeNone {
			err = store.Clear(ctx, p)
		} else {
			err = store.Upsert(ctx, p, restored, grantor, at)
		}
		if err != nil {
			return nil, storageError("UndoShare", err)
		}
		if err := ledger.Append(ctx, p, restored, grantor, at, true); err != nil {
			return nil, storageError("UndoShare", err)
		}

		zoi, err := newZoneOfInfluence(ctx, store, MutationUndoShare, actorID, p, restored, at)
		if err != nil {
			return nil, storageError("UndoShare", err)
		}
		event = &zoi
		return &mutated{event: event}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "share undone",
		"actor_id", actorID,
		"pair", p.String(),
	)
	return event, nil
}

// BootstrapOwnership seeds the first OWNER grant for a freshly created
// object. It bypasses the guard because at creation time nobody holds any
// privilege yet, so no actor could pass an ownership check. The pair's
// subject must be a user and the object must have no owners; the grant is
// recorded as self-granted.
func (s *Service) BootstrapOwnership(ctx context.Context, p Pair) (*ZoneOfInfluence, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Kind.Subject() != SubjectUser {
		return nil, NewError(ErrInvalidPair, "ownership belongs to users").WithPair(p)
	}

	var event *ZoneOfInfluence

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		owners, err := store.CountOwners(ctx, p.Kind, p.ObjectID)
		if err != nil {
			return nil, storageError("BootstrapOwnership", err)
		}
		if owners > 0 {
			return nil, NewError(ErrInvalidPair, "object already has an owner").WithPair(p)
		}

		at, err := ledger.NextTimestamp(ctx, p, time.Now().UTC())
		if err != nil {
			return nil, storageError("BootstrapOwnership", err)
		}
		if err := store.Upsert(ctx, p, PrivilegeOwner, p.SubjectID, at); err != nil {
			return nil, storageError("BootstrapOwnership", err)
		}
		if err := ledger.Append(ctx, p, PrivilegeOwner, p.SubjectID, at, false); err != nil {
			return nil, storageError("BootstrapOwnership", err)
		}

		zoi, err := newZoneOfInfluence(ctx, store, MutationBootstrap, p.SubjectID, p, PrivilegeOwner, at)
		if err != nil {
			return nil, storageError("BootstrapOwnership", err)
		}
		event = &zoi
		return &mutated{event: event}, nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
