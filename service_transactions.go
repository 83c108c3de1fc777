package sharekit

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

// Transaction executes a function within a database transaction with automatic
// commit/rollback. If the function returns an error, the transaction is rolled
// back. Otherwise, it's committed.
//
// Example:
//
//	err := service.Transaction(ctx, func(ctx context.Context) error {
//	    if _, err := service.Share(ctx, "alice", sharekit.UserResource("bob", "doc1"), sharekit.PrivilegeView); err != nil {
//	        return err // This will cause a rollback
//	    }
//	    if _, err := service.Share(ctx, "alice", sharekit.UserResource("carol", "doc1"), sharekit.PrivilegeView); err != nil {
//	        return err // This will cause a rollback
//	    }
//	    return nil // This will cause a commit
//	})
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error

	// Check if we're already in a transaction by casting to dbkit.Tx
	if tx, ok := s.db.(*dbkit.Tx); ok {
		// We're already in a transaction, use savepoint
		err = tx.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(ctx)
		})
	} else {
		if db, ok := s.db.(*dbkit.DBKit); ok {
			err = db.Transaction(ctx, func(tx *dbkit.Tx) error {
				return fn(ctx)
			})
		} else {
			err = fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
		}
	}

	duration := time.Since(start)
	s.txMonitor.recordTransaction(duration, err == nil)

	return err
}

// TransactionWithOptions executes a function within a database transaction
// with custom options. Supports read-only transactions, isolation levels, and
// other transaction parameters.
func (s *Service) TransactionWithOptions(ctx context.Context, opts dbkit.TxOptions, fn func(ctx context.Context) error) error {
	// Nested transactions use savepoints; options apply only at the top level.
	if tx, ok := s.db.(*dbkit.Tx); ok {
		return tx.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(ctx)
		})
	}

	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.TransactionWithOptions(ctx, opts, func(tx *dbkit.Tx) error {
			return fn(ctx)
		})
	}

	return fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
}

// ReadOnlyTransaction executes a function within a read-only database
// transaction. Useful for multi-query reads that need a consistent snapshot.
//
// Example:
//
//	err := service.ReadOnlyTransaction(ctx, func(ctx context.Context) error {
//	    p, err := service.EffectivePrivilege(ctx, sharekit.UserResource("bob", "doc1"))
//	    if err != nil {
//	        return err
//	    }
//	    _, err = service.GetProvenanceLog(ctx, sharekit.PairUserResource, sharekit.NewProvenanceFilter().WithObjectID("doc1"))
//	    return err
//	})
func (s *Service) ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.TransactionWithOptions(ctx, dbkit.ReadOnlyTxOptions(), fn)
}

// mutated is what a mutator produces inside its transaction: the ledger row
// it appended plus the zone-of-influence event to emit once the transaction
// commits.
type mutated struct {
	event *ZoneOfInfluence
}

// mutate runs fn inside a serializable transaction, giving it transaction-bound
// views of the store, ledger, guard and resolver. The zone-of-influence event
// fn returns is delivered to the notifier only after a successful commit, so
// consumers never observe rolled-back state.
func (s *Service) mutate(ctx context.Context, fn func(ctx context.Context, tx dbkit.IDB, store *Store, ledger *Ledger, guard *Guard) (*mutated, error)) error {
	start := time.Now()
	var out *mutated

	run := func(tx *dbkit.Tx) error {
		var err error
		out, err = fn(ctx, tx, s.store.With(tx), s.ledger.With(tx), s.guard.With(tx))
		return err
	}

	var err error
	switch db := s.db.(type) {
	case *dbkit.Tx:
		// Caller already holds a transaction; join it via savepoint. The
		// outer isolation level governs.
		err = db.Transaction(ctx, run)
	case *dbkit.DBKit:
		err = db.TransactionWithOptions(ctx, dbkit.SerializableTxOptions(), run)
	default:
		err = fmt.Errorf("mutation requires a dbkit.DBKit or dbkit.Tx instance")
	}

	duration := time.Since(start)
	s.txMonitor.recordTransaction(duration, err == nil)

	if err != nil {
		return err
	}
	if out != nil && out.event != nil {
		s.notifier.Notify(ctx, *out.event)
	}
	return nil
}
