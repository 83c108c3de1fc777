package sharekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairConstructors(t *testing.T) {
	tests := []struct {
		name    string
		pair    Pair
		kind    PairKind
		subject SubjectKind
		object  ObjectKind
	}{
		{"user-resource", UserResource("u1", "r1"), PairUserResource, SubjectUser, ObjectResource},
		{"group-resource", GroupResource("g1", "r1"), PairGroupResource, SubjectGroup, ObjectResource},
		{"user-group", UserGroup("u1", "g1"), PairUserGroup, SubjectUser, ObjectGroup},
		{"user-community", UserCommunity("u1", "c1"), PairUserCommunity, SubjectUser, ObjectCommunity},
		{"group-community", GroupCommunity("g1", "c1"), PairGroupCommunity, SubjectGroup, ObjectCommunity},
		{"community-resource", CommunityResource("c1", "r1"), PairCommunityResource, SubjectCommunity, ObjectResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.pair.Kind)
			assert.Equal(t, tt.subject, tt.pair.Kind.Subject())
			assert.Equal(t, tt.object, tt.pair.Kind.Object())
			assert.NoError(t, tt.pair.Validate())
		})
	}
}

func TestPairValidate(t *testing.T) {
	assert.ErrorIs(t, UserResource("", "r1").Validate(), ErrInvalidPair)
	assert.ErrorIs(t, UserResource("u1", "").Validate(), ErrInvalidPair)
	assert.NoError(t, UserResource("u1", "r1").Validate())
}

func TestPairKindString(t *testing.T) {
	assert.Equal(t, "user-resource", PairUserResource.String())
	assert.Equal(t, "group-community", PairGroupCommunity.String())
	assert.Equal(t, "user-resource(alice,doc1)", UserResource("alice", "doc1").String())
}

func TestPairSchemaCoverage(t *testing.T) {
	// Every declared kind must carry a complete schema, and table names must
	// not collide across kinds.
	seen := make(map[string]bool)
	for _, kind := range AllPairKinds() {
		sc := kind.schema()
		assert.NotEmpty(t, sc.privilegeTable)
		assert.NotEmpty(t, sc.provenanceTable)
		assert.NotEmpty(t, sc.subjectColumn)
		assert.NotEmpty(t, sc.objectColumn)
		assert.False(t, seen[sc.privilegeTable], "duplicate privilege table %s", sc.privilegeTable)
		assert.False(t, seen[sc.provenanceTable], "duplicate provenance table %s", sc.provenanceTable)
		seen[sc.privilegeTable] = true
		seen[sc.provenanceTable] = true
	}
	assert.Len(t, AllPairKinds(), 6)
}

func TestUndefinedPairKindPanics(t *testing.T) {
	assert.Panics(t, func() {
		_ = PairKind(99).schema()
	})
}
