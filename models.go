package sharekit

import (
	"time"

	"github.com/uptrace/bun"
)

// User carries the access-control view of a user account. Profile data lives
// elsewhere; the engine only consumes identity and state flags.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string `bun:"id,pk"`
	Active    bool   `bun:"is_active,notnull,default:true"`
	Superuser bool   `bun:"is_superuser,notnull,default:false"`
}

// Group carries the access-control view of a group.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	ID           string `bun:"id,pk"`
	Active       bool   `bun:"active,notnull,default:true"`
	Shareable    bool   `bun:"shareable,notnull,default:true"`
	Discoverable bool   `bun:"discoverable,notnull,default:true"`
	Public       bool   `bun:"public,notnull,default:true"`
	AutoApprove  bool   `bun:"auto_approve,notnull,default:false"`
}

// Community carries the access-control view of a community.
type Community struct {
	bun.BaseModel `bun:"table:communities,alias:c"`

	ID                  string `bun:"id,pk"`
	Active              bool   `bun:"active,notnull,default:true"`
	AutoApproveResource bool   `bun:"auto_approve_resource,notnull,default:false"`
	AutoApproveGroup    bool   `bun:"auto_approve_group,notnull,default:false"`
	Closed              bool   `bun:"closed,notnull,default:false"`
}

// Resource carries the access-control view of a resource. QuotaHolderID is
// the user whose storage quota the resource is charged against; that user
// cannot be unshared from the resource.
type Resource struct {
	bun.BaseModel `bun:"table:resources,alias:r"`

	ID            string `bun:"id,pk"`
	Active        bool   `bun:"active,notnull,default:true"`
	Immutable     bool   `bun:"immutable,notnull,default:false"`
	Published     bool   `bun:"published,notnull,default:false"`
	Public        bool   `bun:"public,notnull,default:false"`
	Discoverable  bool   `bun:"discoverable,notnull,default:false"`
	Shareable     bool   `bun:"shareable,notnull,default:true"`
	QuotaHolderID string `bun:"quota_holder_id,nullzero"`
}

// PrivilegeRow is the current effective privilege for one (subject, object)
// pair. Each of the six relation tables shares this shape; AllowView is only
// meaningful on the group-community relation.
type PrivilegeRow struct {
	SubjectID string        `bun:"subject_id"`
	ObjectID  string        `bun:"object_id"`
	Privilege PrivilegeCode `bun:"privilege"`
	GrantorID string        `bun:"grantor_id"`
	StartAt   time.Time     `bun:"start_at"`
	AllowView bool          `bun:"allow_view"`
}

// ProvenanceRow is one append-only ledger entry for a (subject, object)
// pair. The entry with the greatest StartAt is the pair's current state and
// always matches the relation table. Undone marks entries written by
// UndoShare; such an entry cannot itself be undone.
type ProvenanceRow struct {
	SubjectID string        `bun:"subject_id"`
	ObjectID  string        `bun:"object_id"`
	Privilege PrivilegeCode `bun:"privilege"`
	GrantorID string        `bun:"grantor_id"`
	StartAt   time.Time     `bun:"start_at"`
	Undone    bool          `bun:"undone"`
}

// GroupCommunityRequest is a pending bilateral agreement for a group to join
// a community. Exactly one live (non-redeemed) request exists per
// (group, community) pair, enforced by upsert-on-conflict.
type GroupCommunityRequest struct {
	bun.BaseModel `bun:"table:group_community_request,alias:gcr"`

	ID          string `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	GroupID     string `bun:"group_id,notnull"`
	CommunityID string `bun:"community_id,notnull"`

	// Owner signatures. The initiator's side is set at creation; the other
	// side is set when that owner responds.
	GroupOwnerID     string `bun:"group_owner_id,nullzero"`
	CommunityOwnerID string `bun:"community_owner_id,nullzero"`

	Privilege PrivilegeCode `bun:"privilege,notnull"`
	Redeemed  bool          `bun:"redeemed,notnull,default:false"`
	Approved  bool          `bun:"approved,notnull,default:false"`

	WhenRequested time.Time `bun:"when_requested,notnull,default:current_timestamp"`
	WhenResponded time.Time `bun:"when_responded,nullzero"`
}

// Pending reports whether the request is still awaiting the other side.
func (r *GroupCommunityRequest) Pending() bool {
	return !r.Redeemed
}

// InitiatedByGroup reports whether the group side created the request.
func (r *GroupCommunityRequest) InitiatedByGroup() bool {
	return r.GroupOwnerID != "" && r.CommunityOwnerID == ""
}

// InitiatedByCommunity reports whether the community side created the request.
func (r *GroupCommunityRequest) InitiatedByCommunity() bool {
	return r.CommunityOwnerID != "" && r.GroupOwnerID == ""
}
