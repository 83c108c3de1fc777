// Package sharekit provides a multi-principal privilege and provenance
// engine over PostgreSQL.
//
// ShareKit manages who may see and change what across four entity kinds —
// users, groups, communities and resources — connected by six concrete
// (subject, object) relations. Every relation pairs a current-state
// privilege table with an append-only provenance ledger, so any grant can be
// audited and the most recent one undone.
//
// # Core Concepts
//
// PrivilegeCode: an ordered lattice OWNER < CHANGE < VIEW < NONE (lower
// numeric value is more permissive). Combining privileges from several paths
// takes the most permissive one.
//
// Pair: one (subject, object) relationship of a concrete kind, e.g.
// UserResource("alice", "doc1"). The six kinds are the closed set of
// relations the engine supports.
//
// Effective privilege: the resolved privilege of a user over a resource
// after combining the direct path, the via-group path and the via-community
// path, then applying object-state caps (immutable resources never yield
// CHANGE, public resources grant at least VIEW).
//
// Provenance: each successful mutation appends one ledger entry recording
// privilege, grantor and timestamp. The newest entry always mirrors the
// privilege table; UndoShare re-applies the entry before it.
//
// # Key Features
//
//   - Six strongly-typed relations instead of stringly-typed scopes
//   - Guard layer with a full typed denial taxonomy (sole-owner floor,
//     non-owner restrictions, object-kind rules)
//   - Serializable mutators keeping privilege table and ledger in lockstep
//   - Undo backed by the ledger, not by caller-supplied state
//   - Group/community join workflow with bilateral approval
//   - Zone-of-influence events for external cache and policy sync
//   - DBKit integration: uses your existing database connection
//
// # Basic Usage
//
//	// 1. Create the service
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := sharekit.NewService(db)
//
//	// 2. Run migrations
//	db.Migrate(ctx, sharekit.NewMigrationService(service).Migrations())
//
//	// 3. Seed ownership for a new resource
//	service.BootstrapOwnership(ctx, sharekit.UserResource("alice", "doc1"))
//
//	// 4. Share and query
//	service.Share(ctx, "alice", sharekit.UserResource("bob", "doc1"), sharekit.PrivilegeChange)
//
//	p, _ := service.EffectivePrivilege(ctx, sharekit.UserResource("bob", "doc1"))
//	if p.Grants(sharekit.PrivilegeView) {
//	    // bob can read doc1
//	}
//
//	// 5. Undo the last grant
//	service.UndoShare(ctx, "alice", sharekit.UserResource("bob", "doc1"))
//
// # Middleware Usage
//
//	mw := sharekit.NewMiddleware(service)
//
//	router.Handle("GET /resources/{resourceID}",
//	    mw.RequirePrivilege(sharekit.PrivilegeView,
//	        sharekit.ObjectFromParam(sharekit.ObjectResource, "resourceID"))(viewHandler))
//
// # Error Handling
//
// Guard denials are typed sentinels; match them with errors.Is or the
// helpers:
//
//	_, err := service.Share(ctx, "bob", sharekit.UserResource("eve", "doc1"), sharekit.PrivilegeOwner)
//	if sharekit.IsDenied(err) {
//	    // expected policy denial, nothing was written
//	}
//	if sharekit.IsStorageFailure(err) {
//	    // infrastructure failure, transaction rolled back
//	}
package sharekit
