package sharekit

import (
	"fmt"

	"github.com/fernandezvara/dbkit"
)

// MigrationService provides migration management functionality as an extension to Service
type MigrationService struct {
	*Service
}

// NewMigrationService creates a new migration service extension
func NewMigrationService(service *Service) *MigrationService {
	return &MigrationService{Service: service}
}

// Migrations returns all database migrations required for ShareKit.
// Use db.Migrate(ctx, service.Migrations()) to run migrations.
// Use db.MigrationStatus(ctx, service.Migrations()) to check status.
func (ms *MigrationService) Migrations() []dbkit.Migration {
	migrations := []dbkit.Migration{
		{
			ID:          "sharekit-001",
			Description: "Create users table",
			SQL: `
                CREATE TABLE IF NOT EXISTS users (
                    id TEXT PRIMARY KEY,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    is_superuser BOOLEAN NOT NULL DEFAULT FALSE
                )`,
		},
		{
			ID:          "sharekit-002",
			Description: "Create groups table",
			SQL: `
                CREATE TABLE IF NOT EXISTS groups (
                    id TEXT PRIMARY KEY,
                    active BOOLEAN NOT NULL DEFAULT TRUE,
                    shareable BOOLEAN NOT NULL DEFAULT TRUE,
                    discoverable BOOLEAN NOT NULL DEFAULT TRUE,
                    public BOOLEAN NOT NULL DEFAULT FALSE,
                    auto_approve BOOLEAN NOT NULL DEFAULT FALSE
                )`,
		},
		{
			ID:          "sharekit-003",
			Description: "Create communities table",
			SQL: `
                CREATE TABLE IF NOT EXISTS communities (
                    id TEXT PRIMARY KEY,
                    active BOOLEAN NOT NULL DEFAULT TRUE,
                    auto_approve_resource BOOLEAN NOT NULL DEFAULT FALSE,
                    auto_approve_group BOOLEAN NOT NULL DEFAULT FALSE,
                    closed BOOLEAN NOT NULL DEFAULT FALSE
                )`,
		},
		{
			ID:          "sharekit-004",
			Description: "Create resources table",
			SQL: `
                CREATE TABLE IF NOT EXISTS resources (
                    id TEXT PRIMARY KEY,
                    active BOOLEAN NOT NULL DEFAULT TRUE,
                    immutable BOOLEAN NOT NULL DEFAULT FALSE,
                    published BOOLEAN NOT NULL DEFAULT FALSE,
                    public BOOLEAN NOT NULL DEFAULT FALSE,
                    discoverable BOOLEAN NOT NULL DEFAULT TRUE,
                    shareable BOOLEAN NOT NULL DEFAULT TRUE,
                    quota_holder_id TEXT
                )`,
		},
	}

	// One privilege table and one provenance ledger per relation kind, all
	// sharing the same shape. The group-community privilege additionally
	// carries the allow_view visibility flag.
	n := 5
	for _, kind := range AllPairKinds() {
		sc := kind.schema()

		extra := ""
		if kind == PairGroupCommunity {
			extra = "allow_view BOOLEAN NOT NULL DEFAULT TRUE,\n                    "
		}

		migrations = append(migrations, dbkit.Migration{
			ID:          fmt.Sprintf("sharekit-%03d", n),
			Description: fmt.Sprintf("Create %s table", sc.privilegeTable),
			SQL: fmt.Sprintf(`
                CREATE TABLE IF NOT EXISTS %s (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    %s TEXT NOT NULL,
                    %s TEXT NOT NULL,
                    privilege SMALLINT NOT NULL,
                    grantor_id TEXT,
                    %sstart_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (%s, %s)
                )`, sc.privilegeTable, sc.subjectColumn, sc.objectColumn, extra, sc.subjectColumn, sc.objectColumn),
		})
		n++

		migrations = append(migrations, dbkit.Migration{
			ID:          fmt.Sprintf("sharekit-%03d", n),
			Description: fmt.Sprintf("Create %s table", sc.provenanceTable),
			SQL: fmt.Sprintf(`
                CREATE TABLE IF NOT EXISTS %s (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    %s TEXT NOT NULL,
                    %s TEXT NOT NULL,
                    privilege SMALLINT NOT NULL,
                    grantor_id TEXT,
                    start_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    undone BOOLEAN NOT NULL DEFAULT FALSE
                );
                CREATE INDEX IF NOT EXISTS idx_%s_pair
                    ON %s (%s, %s, start_at DESC)`,
				sc.provenanceTable, sc.subjectColumn, sc.objectColumn,
				sc.provenanceTable, sc.provenanceTable, sc.subjectColumn, sc.objectColumn),
		})
		n++
	}

	migrations = append(migrations, dbkit.Migration{
		ID:          fmt.Sprintf("sharekit-%03d", n),
		Description: "Create group_community_request table",
		SQL: `
                CREATE TABLE IF NOT EXISTS group_community_request (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    group_id TEXT NOT NULL,
                    community_id TEXT NOT NULL,
                    group_owner_id TEXT,
                    community_owner_id TEXT,
                    privilege SMALLINT NOT NULL,
                    redeemed BOOLEAN NOT NULL DEFAULT FALSE,
                    approved BOOLEAN NOT NULL DEFAULT FALSE,
                    when_requested TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    when_responded TIMESTAMPTZ,
                    UNIQUE (group_id, community_id)
                )`,
	})

	return migrations
}
