package sharekit

import (
	"context"
	"fmt"

	"github.com/fernandezvara/dbkit"
)

// HealthService provides health monitoring functionality as an extension to Service
type HealthService struct {
	*Service
}

// NewHealthService creates a new health service extension
func NewHealthService(service *Service) *HealthService {
	return &HealthService{Service: service}
}

// Health performs a comprehensive health check of the database connection.
// Returns detailed status including latency, connection pool statistics, and error information.
func (hs *HealthService) Health(ctx context.Context) dbkit.HealthStatus {
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}

	// In a transaction or a different IDB, fall back to a basic ping
	return dbkit.HealthStatus{
		Healthy: hs.IsHealthy(ctx),
		Error:   "Limited health check - not a DBKit instance",
	}
}

// IsHealthy performs a simple health check of the database connection.
func (hs *HealthService) IsHealthy(ctx context.Context) bool {
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return db.IsHealthy(ctx)
	}

	var count int
	err := hs.db.NewSelect().Model((*struct{})(nil)).ColumnExpr("1").Limit(1).Scan(ctx, &count)
	return err == nil
}

// GetPoolStats returns connection pool statistics for monitoring.
// Returns zero values if the database instance doesn't support pool statistics.
func (hs *HealthService) GetPoolStats() dbkit.PoolStats {
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return dbkit.PoolStatsFromSQL(db.Stats())
	}
	return dbkit.PoolStats{}
}

// Ping performs a basic connectivity test to the database.
func (hs *HealthService) Ping(ctx context.Context) error {
	var result int
	return hs.db.NewSelect().Model((*struct{})(nil)).ColumnExpr("1").Limit(1).Scan(ctx, &result)
}

// LedgerConsistencyReport summarizes the lockstep check between the
// privilege tables and their provenance ledgers.
type LedgerConsistencyReport struct {
	// Mismatches counts, per relation kind, the privilege rows whose
	// privilege/grantor/timestamp do not match the newest ledger entry for
	// their pair. Any non-zero count indicates corruption.
	Mismatches map[string]int `json:"mismatches"`
	Consistent bool           `json:"consistent"`
}

// VerifyLedgerConsistency cross-checks every privilege row against its
// pair's newest ledger entry. The two are written in lockstep inside one
// transaction, so a mismatch means external interference or a bug, never a
// normal state.
func (hs *HealthService) VerifyLedgerConsistency(ctx context.Context) (*LedgerConsistencyReport, error) {
	report := &LedgerConsistencyReport{
		Mismatches: make(map[string]int),
		Consistent: true,
	}

	for _, kind := range AllPairKinds() {
		sc := kind.schema()
		q := fmt.Sprintf(`
			SELECT count(*) FROM %s p
			WHERE NOT EXISTS (
				SELECT 1 FROM %s v
				WHERE v.%s = p.%s AND v.%s = p.%s
				  AND v.privilege = p.privilege
				  AND v.start_at = p.start_at
				  AND v.start_at = (
					SELECT max(v2.start_at) FROM %s v2
					WHERE v2.%s = p.%s AND v2.%s = p.%s
				  )
			)`,
			sc.privilegeTable, sc.provenanceTable,
			sc.subjectColumn, sc.subjectColumn, sc.objectColumn, sc.objectColumn,
			sc.provenanceTable,
			sc.subjectColumn, sc.subjectColumn, sc.objectColumn, sc.objectColumn)

		var count int
		err := dbkit.WithErr1(hs.db.NewRaw(q).Scan(ctx, &count), "VerifyLedgerConsistency").Err()
		if err != nil {
			return nil, storageError("VerifyLedgerConsistency", err)
		}
		report.Mismatches[kind.String()] = count
		if count > 0 {
			report.Consistent = false
		}
	}
	return report, nil
}
