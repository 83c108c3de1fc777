package sharekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Database defines the database operations interface for dependency injection
type Database interface {
	dbkit.IDB
}

// PrivilegeResolver defines the read side of the engine: effective privilege
// across all paths plus membership predicates.
type PrivilegeResolver interface {
	EffectivePrivilege(ctx context.Context, p Pair) (PrivilegeCode, error)
	ResourcePrivilege(ctx context.Context, userID, resourceID string) (PrivilegeCode, error)
	GroupPrivilege(ctx context.Context, userID, groupID string) (PrivilegeCode, error)
	CommunityPrivilege(ctx context.Context, userID, communityID string) (PrivilegeCode, error)
	IsGroupMember(ctx context.Context, userID, groupID string) (bool, error)
	IsCommunityMember(ctx context.Context, userID, communityID string) (bool, error)
	Owns(ctx context.Context, userID string, kind PairKind, objectID string) (bool, error)
}

// Sharer defines the mutation side of the engine.
type Sharer interface {
	Share(ctx context.Context, actorID string, p Pair, privilege PrivilegeCode) (*ZoneOfInfluence, error)
	Unshare(ctx context.Context, actorID string, p Pair) (*ZoneOfInfluence, error)
	UndoShare(ctx context.Context, actorID string, p Pair) (*ZoneOfInfluence, error)
	CanShare(ctx context.Context, actorID string, p Pair, privilege PrivilegeCode) error
	CanUnshare(ctx context.Context, actorID string, p Pair) error
	CanUndoShare(ctx context.Context, actorID string, p Pair) error
}

// RequestWorkflow defines the group/community join workflow.
type RequestWorkflow interface {
	CreateOrUpdateRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool)
	ApproveRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool)
	DeclineRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool)
	CancelRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool)
	ResubmitRequest(ctx context.Context, actorID, groupID, communityID string) (string, bool)
}

// TransactionManager defines the transaction management interface
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	TransactionWithOptions(ctx context.Context, opts dbkit.TxOptions, fn func(ctx context.Context) error) error
	ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MigrationManager defines the migration management interface
type MigrationManager interface {
	Migrations() []dbkit.Migration
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	Health(ctx context.Context) dbkit.HealthStatus
	IsHealthy(ctx context.Context) bool
	Ping(ctx context.Context) error
	GetPoolStats() dbkit.PoolStats
	VerifyLedgerConsistency(ctx context.Context) (*LedgerConsistencyReport, error)
}

// PoolManager defines the connection pool management interface
type PoolManager interface {
	ConfigureConnectionPool(config PoolConfig) error
	GetConnectionPoolConfig() (*PoolConfig, error)
}

// TransactionMonitor defines the transaction monitoring interface
type TransactionMonitor interface {
	GetTransactionMetrics() TransactionMetrics
	ResetTransactionMetrics()
	IsTransactionHealthy() bool
}
