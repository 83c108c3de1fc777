package sharekit

import (
	"context"
	"log/slog"

	"github.com/fernandezvara/dbkit"
)

// Service is the privilege and provenance engine. It wires the privilege
// store, the provenance ledger, the resolver and the guard over one database
// handle, and is the only entry point for mutations.
//
// The dependency graph is explicit: Store and Ledger are leaves, the
// Resolver reads the Store, the Guard reads both, and the mutators write
// both under the Guard's approval. Reads are freely parallelizable; every
// mutation runs in its own serializable transaction.
//
// Error Handling:
// Guard denials are expected outcomes and come back as typed sentinel
// errors (use errors.Is or the IsX helpers). Persistence failures abort the
// whole transaction and come back wrapped as ErrStorageFailure; both tables
// stay unchanged.
type Service struct {
	db        dbkit.IDB
	store     *Store
	ledger    *Ledger
	resolver  *Resolver
	guard     *Guard
	notifier  Notifier
	logger    *slog.Logger
	txMonitor *transactionMonitor
}

// Option configures the Service.
type Option func(*Service)

// WithNotifier sets the zone-of-influence event consumer.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the structured logger for decision logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates the engine over a database handle.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := sharekit.NewService(db, sharekit.WithNotifier(myNotifier))
func NewService(db dbkit.IDB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		notifier:  noopNotifier{},
		logger:    slog.Default(),
		txMonitor: newTransactionMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(db)
	s.ledger = NewLedger(db)
	s.resolver = NewResolver(db, s.logger)
	s.guard = NewGuard(db, s.logger)
	return s
}

// Resolver returns the effective-privilege resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Guard returns the authorization guard.
func (s *Service) Guard() *Guard {
	return s.guard
}

// Store returns the privilege store. Callers must treat it as read-only;
// writes go through the mutators.
func (s *Service) Store() *Store {
	return s.store
}

// Ledger returns the provenance ledger. Append-only; callers read.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// EffectivePrivilege resolves the subject's effective privilege over the
// object for any pair kind.
func (s *Service) EffectivePrivilege(ctx context.Context, p Pair) (PrivilegeCode, error) {
	return s.resolver.EffectivePrivilege(ctx, p)
}

// CanShare reports whether the actor may grant the requested privilege.
// Read-only; the same check runs again inside Share's transaction.
func (s *Service) CanShare(ctx context.Context, actorID string, p Pair, privilege PrivilegeCode) error {
	return s.guard.CanShare(ctx, actorID, p, privilege)
}

// CanUnshare reports whether the actor may remove the subject's access.
func (s *Service) CanUnshare(ctx context.Context, actorID string, p Pair) error {
	return s.guard.CanUnshare(ctx, actorID, p)
}

// CanUndoShare reports whether the actor may undo the current grant.
func (s *Service) CanUndoShare(ctx context.Context, actorID string, p Pair) error {
	return s.guard.CanUndoShare(ctx, actorID, p)
}

// SetGroupCommunityAllowView toggles whether peer groups in the community may
// view the group's resources. Only the group's owner (or a superuser) may
// flip it, and the group must already hold privilege in the community. The
// flag is not a privilege change, so no ledger entry is written.
func (s *Service) SetGroupCommunityAllowView(ctx context.Context, actorID, groupID, communityID string, allow bool) error {
	return s.mutate(ctx, func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error) {
		resolver := s.resolver.With(tx)

		actor, err := resolver.getUser(ctx, actorID)
		if err != nil {
			return nil, storageError("SetGroupCommunityAllowView", err)
		}
		if actor == nil || !actor.Active {
			return nil, NewError(ErrInactiveActor, "").WithActor(actorID)
		}
		if !actor.Superuser {
			owns, err := resolver.Owns(ctx, actorID, PairUserGroup, groupID)
			if err != nil {
				return nil, storageError("SetGroupCommunityAllowView", err)
			}
			if !owns {
				return nil, NewError(ErrMustOwnOrHaveSharingPrivilege, "only the group owner may change visibility").
					WithActor(actorID)
			}
		}

		if err := store.SetAllowView(ctx, groupID, communityID, allow); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// ============================================================================
// PROVENANCE LOG
// ============================================================================

// GetProvenanceLog retrieves ledger entries for a pair kind with optional
// filters, newest first.
func (s *Service) GetProvenanceLog(ctx context.Context, kind PairKind, filter ProvenanceFilter) ([]ProvenanceRow, error) {
	return s.ledger.History(ctx, kind, filter)
}
