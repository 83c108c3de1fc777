package sharekit

import "fmt"

// SubjectKind identifies the kind of principal holding a privilege.
type SubjectKind string

// ObjectKind identifies the kind of securable object a privilege applies to.
type ObjectKind string

const (
	SubjectUser      SubjectKind = "user"
	SubjectGroup     SubjectKind = "group"
	SubjectCommunity SubjectKind = "community"

	ObjectResource  ObjectKind = "resource"
	ObjectGroup     ObjectKind = "group"
	ObjectCommunity ObjectKind = "community"
)

// PairKind is the closed set of (subject-kind, object-kind) relations the
// engine supports. Every privilege row, ledger row and mutation is keyed by
// one of these six kinds; there is no dynamic dispatch on anything else.
type PairKind int

const (
	PairUserResource PairKind = iota
	PairGroupResource
	PairUserGroup
	PairUserCommunity
	PairGroupCommunity
	PairCommunityResource
)

// pairSchema describes the persisted layout behind one PairKind: the current
// privilege table, its append-only provenance ledger, and the natural-key
// column names. All values are compile-time constants, never caller input.
type pairSchema struct {
	subject         SubjectKind
	object          ObjectKind
	privilegeTable  string
	provenanceTable string
	subjectColumn   string
	objectColumn    string
}

var pairSchemas = map[PairKind]pairSchema{
	PairUserResource: {
		subject: SubjectUser, object: ObjectResource,
		privilegeTable: "user_resource_privilege", provenanceTable: "user_resource_provenance",
		subjectColumn: "user_id", objectColumn: "resource_id",
	},
	PairGroupResource: {
		subject: SubjectGroup, object: ObjectResource,
		privilegeTable: "group_resource_privilege", provenanceTable: "group_resource_provenance",
		subjectColumn: "group_id", objectColumn: "resource_id",
	},
	PairUserGroup: {
		subject: SubjectUser, object: ObjectGroup,
		privilegeTable: "user_group_privilege", provenanceTable: "user_group_provenance",
		subjectColumn: "user_id", objectColumn: "group_id",
	},
	PairUserCommunity: {
		subject: SubjectUser, object: ObjectCommunity,
		privilegeTable: "user_community_privilege", provenanceTable: "user_community_provenance",
		subjectColumn: "user_id", objectColumn: "community_id",
	},
	PairGroupCommunity: {
		subject: SubjectGroup, object: ObjectCommunity,
		privilegeTable: "group_community_privilege", provenanceTable: "group_community_provenance",
		subjectColumn: "group_id", objectColumn: "community_id",
	},
	PairCommunityResource: {
		subject: SubjectCommunity, object: ObjectResource,
		privilegeTable: "community_resource_privilege", provenanceTable: "community_resource_provenance",
		subjectColumn: "community_id", objectColumn: "resource_id",
	},
}

// AllPairKinds returns the six relation kinds in a stable order.
func AllPairKinds() []PairKind {
	return []PairKind{
		PairUserResource,
		PairGroupResource,
		PairUserGroup,
		PairUserCommunity,
		PairGroupCommunity,
		PairCommunityResource,
	}
}

// schema returns the persisted layout for the pair kind.
// Panics on an undefined kind: that is a programming error, not caller input.
func (k PairKind) schema() pairSchema {
	s, ok := pairSchemas[k]
	if !ok {
		panic(fmt.Sprintf("sharekit: undefined pair kind %d", int(k)))
	}
	return s
}

// Subject returns the subject kind of the relation.
func (k PairKind) Subject() SubjectKind { return k.schema().subject }

// Object returns the object kind of the relation.
func (k PairKind) Object() ObjectKind { return k.schema().object }

// String returns a "subject-object" label, e.g. "user-resource".
func (k PairKind) String() string {
	s := k.schema()
	return string(s.subject) + "-" + string(s.object)
}

// Pair identifies one (subject, object) relationship of a concrete kind.
type Pair struct {
	Kind      PairKind
	SubjectID string
	ObjectID  string
}

// UserResource builds a Pair for a user's privilege over a resource.
func UserResource(userID, resourceID string) Pair {
	return Pair{Kind: PairUserResource, SubjectID: userID, ObjectID: resourceID}
}

// GroupResource builds a Pair for a group's privilege over a resource.
func GroupResource(groupID, resourceID string) Pair {
	return Pair{Kind: PairGroupResource, SubjectID: groupID, ObjectID: resourceID}
}

// UserGroup builds a Pair for a user's privilege over (membership in) a group.
func UserGroup(userID, groupID string) Pair {
	return Pair{Kind: PairUserGroup, SubjectID: userID, ObjectID: groupID}
}

// UserCommunity builds a Pair for a user's privilege over a community object.
func UserCommunity(userID, communityID string) Pair {
	return Pair{Kind: PairUserCommunity, SubjectID: userID, ObjectID: communityID}
}

// GroupCommunity builds a Pair for a group's membership privilege in a community.
func GroupCommunity(groupID, communityID string) Pair {
	return Pair{Kind: PairGroupCommunity, SubjectID: groupID, ObjectID: communityID}
}

// CommunityResource builds a Pair for a community's privilege over a resource.
func CommunityResource(communityID, resourceID string) Pair {
	return Pair{Kind: PairCommunityResource, SubjectID: communityID, ObjectID: resourceID}
}

// Validate checks that both identifiers are present.
func (p Pair) Validate() error {
	if p.SubjectID == "" {
		return NewError(ErrInvalidPair, "subject ID cannot be empty")
	}
	if p.ObjectID == "" {
		return NewError(ErrInvalidPair, "object ID cannot be empty")
	}
	return nil
}

// String returns a compact label like "user-resource(alice,res1)".
func (p Pair) String() string {
	return fmt.Sprintf("%s(%s,%s)", p.Kind, p.SubjectID, p.ObjectID)
}
