package sharekit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

// The request workflow manages the bilateral agreement that lets a group
// join a community. Either side's owner opens a request; once both sides
// have signed off (explicitly or via auto-approve) the request is redeemed
// and the community is shared with the group at VIEW privilege.
//
// Unlike the mutators, workflow operations return a human-readable message
// plus a success flag so batch and administrative callers can report partial
// outcomes. Internally they go through the same error taxonomy and the same
// transactional write path.

// requestParticipants is everything a workflow decision needs about who is
// asking and what they own, loaded inside the operation's transaction.
type requestParticipants struct {
	actor     *User
	group     *Group
	community *Community

	ownsGroup     bool
	ownsCommunity bool
}

// CreateOrUpdateRequest opens (or completes) a request for the group to join
// the community. The actor must own at least one of the two sides. If the
// actor owns both sides, or a pending request from the opposite side already
// exists, or the community auto-approves group joins, the request redeems
// immediately and the community is shared with the group at VIEW.
func (s *Service) CreateOrUpdateRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool) {
	var message string

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		rp, err := s.loadRequestParticipants(ctx, tx, actorID, groupID, communityID)
		if err != nil {
			return nil, err
		}
		if !rp.ownsGroup && !rp.ownsCommunity {
			return nil, NewError(ErrMustOwnCommunity, "actor owns neither side of the request").WithActor(actorID)
		}

		existing, err := s.getRequest(ctx, tx, groupID, communityID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()

		if existing != nil {
			if existing.Redeemed {
				if existing.Approved {
					message = "group already joined the community"
					return nil, nil
				}
				return nil, NewError(ErrAlreadyRedeemed, "request was declined; resubmit to reopen it")
			}

			// Pending. If the actor can sign the missing side, this update
			// completes the agreement.
			completes := (existing.InitiatedByGroup() && rp.ownsCommunity) ||
				(existing.InitiatedByCommunity() && rp.ownsGroup)
			if !completes {
				existing.WhenRequested = now
				if err := s.updateRequest(ctx, tx, existing); err != nil {
					return nil, err
				}
				message = "request is already pending the other side's approval"
				return nil, nil
			}

			if existing.InitiatedByGroup() {
				existing.CommunityOwnerID = actorID
			} else {
				existing.GroupOwnerID = actorID
			}
			return s.redeemRequest(ctx, tx, store, ledger, existing, actorID, true, &message)
		}

		req := &GroupCommunityRequest{
			GroupID:       groupID,
			CommunityID:   communityID,
			Privilege:     PrivilegeView,
			WhenRequested: now,
		}
		if rp.ownsGroup {
			req.GroupOwnerID = actorID
		}
		if rp.ownsCommunity {
			req.CommunityOwnerID = actorID
		}

		auto := (rp.ownsGroup && rp.ownsCommunity) ||
			(rp.ownsGroup && rp.community.AutoApproveGroup)
		if auto {
			if err := s.upsertRequest(ctx, tx, req); err != nil {
				return nil, err
			}
			return s.redeemRequest(ctx, tx, store, ledger, req, actorID, true, &message)
		}

		if err := s.upsertRequest(ctx, tx, req); err != nil {
			return nil, err
		}
		message = "request created; awaiting the other side's approval"
		return nil, nil
	})

	return requestOutcome(message, err)
}

// ApproveRequest signs the pending request from the non-initiating side,
// redeeming it and sharing the community with the group at VIEW.
func (s *Service) ApproveRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool) {
	var message string

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		rp, req, err := s.loadPendingRequest(ctx, tx, actorID, groupID, communityID)
		if err != nil {
			return nil, err
		}

		if req.InitiatedByGroup() {
			if !rp.ownsCommunity {
				return nil, NewError(ErrMustOwnCommunity, "only the community owner may approve").WithActor(actorID)
			}
			req.CommunityOwnerID = actorID
		} else {
			if !rp.ownsGroup {
				return nil, NewError(ErrMustOwnCommunity, "only the group owner may approve").WithActor(actorID)
			}
			req.GroupOwnerID = actorID
		}

		return s.redeemRequest(ctx, tx, store, ledger, req, actorID, true, &message)
	})

	return requestOutcome(message, err)
}

// DeclineRequest refuses the pending request from the non-initiating side.
// The record stays in place, redeemed and unapproved, so a repeat ask has to
// go through Resubmit rather than creating a new row.
func (s *Service) DeclineRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool) {
	var message string

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		rp, req, err := s.loadPendingRequest(ctx, tx, actorID, groupID, communityID)
		if err != nil {
			return nil, err
		}

		allowed := (req.InitiatedByGroup() && rp.ownsCommunity) ||
			(req.InitiatedByCommunity() && rp.ownsGroup)
		if !allowed {
			return nil, NewError(ErrMustOwnCommunity, "only the other side's owner may decline").WithActor(actorID)
		}

		return s.redeemRequest(ctx, tx, store, ledger, req, actorID, false, &message)
	})

	return requestOutcome(message, err)
}

// CancelRequest deletes a pending request. Either side's owner may cancel;
// redeemed requests cannot be cancelled.
func (s *Service) CancelRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool) {
	var message string

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		rp, err := s.loadRequestParticipants(ctx, tx, actorID, groupID, communityID)
		if err != nil {
			return nil, err
		}
		if !rp.ownsGroup && !rp.ownsCommunity {
			return nil, NewError(ErrMustOwnCommunity, "actor owns neither side of the request").WithActor(actorID)
		}

		req, err := s.getRequest(ctx, tx, groupID, communityID)
		if err != nil {
			return nil, err
		}
		if req == nil {
			return nil, NewError(ErrNothingToUndo, "no request exists for this group and community")
		}
		if req.Redeemed {
			return nil, NewError(ErrAlreadyRedeemed, "request has already been redeemed")
		}

		result, err := tx.NewDelete().Model((*GroupCommunityRequest)(nil)).
			Where("gcr.id = ?", req.ID).
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "CancelRequest").Err(); err != nil {
			return nil, storageError("CancelRequest", err)
		}

		message = "request cancelled"
		return nil, nil
	})

	return requestOutcome(message, err)
}

// ResubmitRequest reopens a declined request. Only the owner of the side that
// originally initiated it may resubmit; the redeemed/approved flags reset and
// the timestamps refresh. Auto-approve rules apply again on resubmission.
func (s *Service) ResubmitRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool) {
	var message string

	err := s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		rp, err := s.loadRequestParticipants(ctx, tx, actorID, groupID, communityID)
		if err != nil {
			return nil, err
		}

		req, err := s.getRequest(ctx, tx, groupID, communityID)
		if err != nil {
			return nil, err
		}
		if req == nil {
			return nil, NewError(ErrNothingToUndo, "no request exists for this group and community")
		}
		if !req.Redeemed || req.Approved {
			return nil, NewError(ErrAlreadyRedeemed, "only a declined request can be resubmitted")
		}

		initiatedByGroup := req.GroupOwnerID != ""
		if initiatedByGroup && !rp.ownsGroup {
			return nil, NewError(ErrMustOwnCommunity, "only the original requester may resubmit").WithActor(actorID)
		}
		if !initiatedByGroup && !rp.ownsCommunity {
			return nil, NewError(ErrMustOwnCommunity, "only the original requester may resubmit").WithActor(actorID)
		}

		req.Redeemed = false
		req.Approved = false
		req.WhenRequested = time.Now().UTC()
		req.WhenResponded = time.Time{}
		if initiatedByGroup {
			req.GroupOwnerID = actorID
			req.CommunityOwnerID = ""
		} else {
			req.CommunityOwnerID = actorID
			req.GroupOwnerID = ""
		}

		auto := (rp.ownsGroup && rp.ownsCommunity) ||
			(initiatedByGroup && rp.community.AutoApproveGroup)
		if auto {
			return s.redeemRequest(ctx, tx, store, ledger, req, actorID, true, &message)
		}

		if err := s.updateRequest(ctx, tx, req); err != nil {
			return nil, err
		}
		message = "request resubmitted; awaiting the other side's approval"
		return nil, nil
	})

	return requestOutcome(message, err)
}

// GetRequest retrieves the request record for a group/community pair, or nil
// when none exists.
func (s *Service) GetRequest(ctx context.Context, groupID, communityID string) (*GroupCommunityRequest, error) {
	return s.getRequest(ctx, s.db, groupID, communityID)
}

// ListPendingRequests returns the non-redeemed requests involving either the
// group or the community, newest first.
func (s *Service) ListPendingRequests(ctx context.Context, groupID, communityID string) ([]GroupCommunityRequest, error) {
	var requests []GroupCommunityRequest
	q := s.db.NewSelect().Model(&requests).Where("gcr.redeemed = FALSE")
	if groupID != "" {
		q = q.Where("gcr.group_id = ?", groupID)
	}
	if communityID != "" {
		q = q.Where("gcr.community_id = ?", communityID)
	}
	err := dbkit.WithErr1(q.Order("when_requested DESC").Scan(ctx), "ListPendingRequests").Err()
	if err != nil {
		return nil, storageError("ListPendingRequests", err)
	}
	return requests, nil
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func (s *Service) loadRequestParticipants(ctx context.Context, tx dbkit.IDB, actorID, groupID, communityID string) (*requestParticipants, error) {
	resolver := s.resolver.With(tx)

	rp := &requestParticipants{}
	var err error

	rp.actor, err = resolver.getUser(ctx, actorID)
	if err != nil {
		return nil, storageError("LoadRequestParticipants", err)
	}
	if rp.actor == nil || !rp.actor.Active {
		return nil, NewError(ErrInactiveActor, "").WithActor(actorID)
	}

	rp.group, err = resolver.getGroup(ctx, groupID)
	if err != nil {
		return nil, storageError("LoadRequestParticipants", err)
	}
	if rp.group == nil || !rp.group.Active {
		return nil, NewError(ErrInactiveSubject, "group not found or inactive")
	}

	rp.community, err = resolver.getCommunity(ctx, communityID)
	if err != nil {
		return nil, storageError("LoadRequestParticipants", err)
	}
	if rp.community == nil || !rp.community.Active {
		return nil, NewError(ErrInactiveObject, "community not found or inactive")
	}

	rp.ownsGroup, err = resolver.Owns(ctx, actorID, PairUserGroup, groupID)
	if err != nil {
		return nil, storageError("LoadRequestParticipants", err)
	}
	rp.ownsCommunity, err = resolver.Owns(ctx, actorID, PairUserCommunity, communityID)
	if err != nil {
		return nil, storageError("LoadRequestParticipants", err)
	}
	if rp.actor.Superuser {
		rp.ownsGroup = true
		rp.ownsCommunity = true
	}
	return rp, nil
}

// loadPendingRequest loads participants plus the request row, rejecting
// missing or already-redeemed requests.
func (s *Service) loadPendingRequest(ctx context.Context, tx dbkit.IDB, actorID, groupID, communityID string) (*requestParticipants, *GroupCommunityRequest, error) {
	rp, err := s.loadRequestParticipants(ctx, tx, actorID, groupID, communityID)
	if err != nil {
		return nil, nil, err
	}
	req, err := s.getRequest(ctx, tx, groupID, communityID)
	if err != nil {
		return nil, nil, err
	}
	if req == nil {
		return nil, nil, NewError(ErrNothingToUndo, "no request exists for this group and community")
	}
	if req.Redeemed {
		return nil, nil, NewError(ErrAlreadyRedeemed, "request has already been redeemed")
	}
	return rp, req, nil
}

func (s *Service) getRequest(ctx context.Context, tx dbkit.IDB, groupID, communityID string) (*GroupCommunityRequest, error) {
	var req GroupCommunityRequest
	err := dbkit.WithErr1(tx.NewSelect().Model(&req).
		Where("gcr.group_id = ? AND gcr.community_id = ?", groupID, communityID).
		Limit(1).
		Scan(ctx), "GetRequest").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, storageError("GetRequest", err)
	}
	return &req, nil
}

// upsertRequest inserts the request, folding a concurrent creation race into
// an update of the surviving row.
func (s *Service) upsertRequest(ctx context.Context, tx dbkit.IDB, req *GroupCommunityRequest) error {
	result, err := tx.NewInsert().Model(req).
		On("CONFLICT (group_id, community_id) DO UPDATE").
		Set("group_owner_id = EXCLUDED.group_owner_id").
		Set("community_owner_id = EXCLUDED.community_owner_id").
		Set("privilege = EXCLUDED.privilege").
		Set("redeemed = EXCLUDED.redeemed").
		Set("approved = EXCLUDED.approved").
		Set("when_requested = EXCLUDED.when_requested").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "UpsertRequest").Err(); err != nil {
		return storageError("UpsertRequest", err)
	}
	return nil
}

func (s *Service) updateRequest(ctx context.Context, tx dbkit.IDB, req *GroupCommunityRequest) error {
	result, err := tx.NewUpdate().Model(req).
		Column("group_owner_id", "community_owner_id", "redeemed", "approved", "when_requested", "when_responded").
		Where("gcr.id = ?", req.ID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "UpdateRequest").Err(); err != nil {
		return storageError("UpdateRequest", err)
	}
	return nil
}

// redeemRequest closes out the request. When approved it also runs the
// guard-free share of the community with the group at the requested
// privilege, inside the same transaction, and builds the resulting
// zone-of-influence event.
func (s *Service) redeemRequest(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, req *GroupCommunityRequest, actorID string, approved bool, message *string) (*mutated, error) {
	req.Redeemed = true
	req.Approved = approved
	req.WhenResponded = time.Now().UTC()
	if err := s.updateRequest(ctx, tx, req); err != nil {
		return nil, err
	}

	if !approved {
		*message = "request declined"
		return nil, nil
	}

	p := GroupCommunity(req.GroupID, req.CommunityID)
	at, err := ledger.NextTimestamp(ctx, p, time.Now().UTC())
	if err != nil {
		return nil, storageError("RedeemRequest", err)
	}
	if err := store.Upsert(ctx, p, req.Privilege, actorID, at); err != nil {
		return nil, storageError("RedeemRequest", err)
	}
	if err := ledger.Append(ctx, p, req.Privilege, actorID, at, false); err != nil {
		return nil, storageError("RedeemRequest", err)
	}

	zoi, err := newZoneOfInfluence(ctx, store, MutationShare, actorID, p, req.Privilege, at)
	if err != nil {
		return nil, storageError("RedeemRequest", err)
	}

	*message = "request approved; community shared with group"
	return &mutated{event: &zoi}, nil
}

// requestOutcome translates the workflow's internal error taxonomy into the
// message-plus-flag shape batch callers expect.
func requestOutcome(message string, err error) (string, bool) {
	if err == nil {
		return message, true
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message, false
	}
	if IsStorageFailure(err) {
		return fmt.Sprintf("storage failure: %v", err), false
	}
	return err.Error(), false
}
