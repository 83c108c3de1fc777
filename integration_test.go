package sharekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDirectSharingLifecycle tests share, unshare and undo against a real
// database, checking the privilege table and the provenance ledger stay in
// lockstep after every mutation.
func TestDirectSharingLifecycle(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	alice := helper.CreateUser("alice")
	bob := helper.CreateUser("bob")
	doc := helper.CreateResource("doc")

	helper.BootstrapOwner(UserResource(alice, doc))
	helper.AssertEffective(UserResource(alice, doc), PrivilegeOwner)
	helper.AssertEffective(UserResource(bob, doc), PrivilegeNone)

	t.Run("Share grants view", func(t *testing.T) {
		event, err := service.Share(ctx, alice, UserResource(bob, doc), PrivilegeView)
		assert.NoError(t, err)
		if assert.NotNil(t, event) {
			assert.Equal(t, MutationShare, event.Mutation)
			assert.Contains(t, event.UserIDs, bob)
			assert.Contains(t, event.ResourceIDs, doc)
		}

		helper.AssertEffective(UserResource(bob, doc), PrivilegeView)
		assertLockstep(t, helper, UserResource(bob, doc))
	})

	t.Run("Unshare removes access", func(t *testing.T) {
		event, err := service.Unshare(ctx, alice, UserResource(bob, doc))
		assert.NoError(t, err)
		if assert.NotNil(t, event) {
			assert.Equal(t, MutationUnshare, event.Mutation)
		}

		helper.AssertEffective(UserResource(bob, doc), PrivilegeNone)

		// The ledger keeps the full trail even though the privilege row is gone.
		current, err := service.Ledger().Current(ctx, UserResource(bob, doc))
		assert.NoError(t, err)
		if assert.NotNil(t, current) {
			assert.Equal(t, PrivilegeNone, current.Privilege)
			assert.Equal(t, alice, current.GrantorID)
		}
	})

	t.Run("Unshare of unshared subject fails", func(t *testing.T) {
		_, err := service.Unshare(ctx, alice, UserResource(bob, doc))
		assert.ErrorIs(t, err, ErrNotShared)
	})

	t.Run("Undo restores the previous grant", func(t *testing.T) {
		event, err := service.UndoShare(ctx, alice, UserResource(bob, doc))
		assert.NoError(t, err)
		if assert.NotNil(t, event) {
			assert.Equal(t, MutationUndoShare, event.Mutation)
		}

		helper.AssertEffective(UserResource(bob, doc), PrivilegeView)
		assertLockstep(t, helper, UserResource(bob, doc))
	})

	t.Run("Second undo fails", func(t *testing.T) {
		_, err := service.UndoShare(ctx, alice, UserResource(bob, doc))
		assert.ErrorIs(t, err, ErrNothingToUndo)
	})
}

// TestUndoShareRestoresPreviousLevel tests that undoing an upgrade returns
// the subject to the level it held before, attributed to the original grantor.
func TestUndoShareRestoresPreviousLevel(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	alice := helper.CreateUser("alice")
	bob := helper.CreateUser("bob")
	doc := helper.CreateResource("doc")

	helper.BootstrapOwner(UserResource(alice, doc))
	helper.MustShare(alice, UserResource(bob, doc), PrivilegeView)
	helper.MustShare(alice, UserResource(bob, doc), PrivilegeChange)
	helper.AssertEffective(UserResource(bob, doc), PrivilegeChange)

	_, err := service.UndoShare(ctx, alice, UserResource(bob, doc))
	assert.NoError(t, err)
	helper.AssertEffective(UserResource(bob, doc), PrivilegeView)

	row, err := service.Store().Get(ctx, UserResource(bob, doc))
	assert.NoError(t, err)
	if assert.NotNil(t, row) {
		assert.Equal(t, PrivilegeView, row.Privilege)
		assert.Equal(t, alice, row.GrantorID)
	}

	t.Run("Undo authority follows the ledger", func(t *testing.T) {
		// Bob never granted anything here, so he cannot undo.
		_, err := service.UndoShare(ctx, bob, UserResource(bob, doc))
		assert.ErrorIs(t, err, ErrNotLastGrantor)
	})
}

// TestSoleOwnerInvariant tests that no mutation sequence can leave an object
// without an owner.
func TestSoleOwnerInvariant(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	alice := helper.CreateUser("alice")
	bob := helper.CreateUser("bob")
	doc := helper.CreateResource("doc")

	helper.BootstrapOwner(UserResource(alice, doc))

	t.Run("Sole owner cannot remove themselves", func(t *testing.T) {
		_, err := service.Unshare(ctx, alice, UserResource(alice, doc))
		assert.ErrorIs(t, err, ErrCannotRemoveSoleOwner)
	})

	t.Run("Sole owner cannot demote themselves", func(t *testing.T) {
		_, err := service.Share(ctx, alice, UserResource(alice, doc), PrivilegeView)
		assert.ErrorIs(t, err, ErrCannotRemoveSoleOwner)
	})

	t.Run("Superusers are bound by the floor too", func(t *testing.T) {
		root := helper.CreateSuperuser("root")
		_, err := service.Unshare(ctx, root, UserResource(alice, doc))
		assert.ErrorIs(t, err, ErrCannotRemoveSoleOwner)
	})

	t.Run("A second owner unlocks the floor", func(t *testing.T) {
		helper.MustShare(alice, UserResource(bob, doc), PrivilegeOwner)

		_, err := service.Share(ctx, alice, UserResource(alice, doc), PrivilegeView)
		assert.NoError(t, err)
		helper.AssertEffective(UserResource(alice, doc), PrivilegeView)

		// Bob is now the sole owner and inherits the protection.
		_, err = service.Unshare(ctx, bob, UserResource(bob, doc))
		assert.ErrorIs(t, err, ErrCannotRemoveSoleOwner)
	})
}

// TestGroupMediatedAccess tests the via-group resolution path end to end.
func TestGroupMediatedAccess(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	alice := helper.CreateUser("alice")
	bob := helper.CreateUser("bob")
	team := helper.CreateGroup("team")
	doc := helper.CreateResource("doc")

	helper.BootstrapOwner(UserGroup(alice, team))
	helper.BootstrapOwner(UserResource(alice, doc))
	helper.MustShare(alice, UserGroup(bob, team), PrivilegeView)
	helper.MustShare(alice, GroupResource(team, doc), PrivilegeChange)

	t.Run("Member gains the group's privilege", func(t *testing.T) {
		helper.AssertEffective(UserResource(bob, doc), PrivilegeChange)
	})

	t.Run("Path selection isolates the group path", func(t *testing.T) {
		p, err := service.Resolver().ResourcePrivilegeSpec(ctx, bob, doc, QuerySpec{ViaUser: true})
		assert.NoError(t, err)
		assert.Equal(t, PrivilegeNone, p)

		p, err = service.Resolver().ResourcePrivilegeSpec(ctx, bob, doc, QuerySpec{ViaGroup: true})
		assert.NoError(t, err)
		assert.Equal(t, PrivilegeChange, p)
	})

	t.Run("Leaving the group removes the path", func(t *testing.T) {
		_, err := service.Unshare(ctx, bob, UserGroup(bob, team))
		assert.NoError(t, err)
		helper.AssertEffective(UserResource(bob, doc), PrivilegeNone)
	})

	t.Run("Non-members cannot grant the group outward", func(t *testing.T) {
		carol := helper.CreateUser("carol")
		other := helper.CreateResource("other")
		helper.BootstrapOwner(UserResource(carol, other))

		_, err := service.Share(ctx, carol, GroupResource(team, other), PrivilegeView)
		assert.ErrorIs(t, err, ErrNotGroupMember)
	})
}

// TestResourceStateOverrides tests the immutable cap and the public floor on
// stored privilege rows.
func TestResourceStateOverrides(t *testing.T) {
	helper := NewTestDataHelper(t)

	alice := helper.CreateUser("alice")
	bob := helper.CreateUser("bob")
	carol := helper.CreateUser("carol")
	doc := helper.CreateResource("doc")

	helper.BootstrapOwner(UserResource(alice, doc))
	helper.MustShare(alice, UserResource(bob, doc), PrivilegeChange)

	t.Run("Immutable caps change at view", func(t *testing.T) {
		helper.SetResourceFlags(doc, func(r *Resource) { r.Immutable = true })
		helper.AssertEffective(UserResource(bob, doc), PrivilegeView)
		helper.AssertEffective(UserResource(alice, doc), PrivilegeOwner)

		helper.SetResourceFlags(doc, func(r *Resource) { r.Immutable = false })
		helper.AssertEffective(UserResource(bob, doc), PrivilegeChange)
	})

	t.Run("Public floors strangers at view", func(t *testing.T) {
		helper.AssertEffective(UserResource(carol, doc), PrivilegeNone)

		helper.SetResourceFlags(doc, func(r *Resource) { r.Public = true })
		helper.AssertEffective(UserResource(carol, doc), PrivilegeView)
		helper.AssertEffective(UserResource(bob, doc), PrivilegeChange)

		helper.SetResourceFlags(doc, func(r *Resource) { r.Public = false })
	})

	t.Run("Inactive resource denies everyone", func(t *testing.T) {
		helper.SetResourceFlags(doc, func(r *Resource) { r.Active = false })
		helper.AssertEffective(UserResource(alice, doc), PrivilegeNone)
		helper.AssertEffective(UserResource(bob, doc), PrivilegeNone)

		helper.SetResourceFlags(doc, func(r *Resource) { r.Active = true })
	})
}

// TestProvenanceLog tests ledger history retrieval with filters.
func TestProvenanceLog(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	alice := helper.CreateUser("alice")
	bob := helper.CreateUser("bob")
	doc := helper.CreateResource("doc")

	helper.BootstrapOwner(UserResource(alice, doc))
	helper.MustShare(alice, UserResource(bob, doc), PrivilegeView)
	helper.MustShare(alice, UserResource(bob, doc), PrivilegeChange)

	_, err := service.UndoShare(ctx, alice, UserResource(bob, doc))
	assert.NoError(t, err)

	t.Run("Pair filter returns the full trail newest-first", func(t *testing.T) {
		rows, err := service.GetProvenanceLog(ctx, PairUserResource,
			NewProvenanceFilter().WithPair(UserResource(bob, doc)))
		assert.NoError(t, err)
		if assert.Len(t, rows, 3) {
			assert.Equal(t, PrivilegeView, rows[0].Privilege)
			assert.True(t, rows[0].Undone)
			assert.Equal(t, PrivilegeChange, rows[1].Privilege)
			assert.Equal(t, PrivilegeView, rows[2].Privilege)
			assert.True(t, rows[0].StartAt.After(rows[1].StartAt))
			assert.True(t, rows[1].StartAt.After(rows[2].StartAt))
		}
	})

	t.Run("Undone filter", func(t *testing.T) {
		rows, err := service.GetProvenanceLog(ctx, PairUserResource,
			NewProvenanceFilter().WithPair(UserResource(bob, doc)).WithUndone(false))
		assert.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("Grantor filter", func(t *testing.T) {
		rows, err := service.GetProvenanceLog(ctx, PairUserResource,
			NewProvenanceFilter().WithObject(doc).WithGrantor(alice))
		assert.NoError(t, err)
		assert.NotEmpty(t, rows)
		for _, row := range rows {
			assert.Equal(t, alice, row.GrantorID)
		}
	})

	t.Run("Pagination", func(t *testing.T) {
		rows, err := service.GetProvenanceLog(ctx, PairUserResource,
			NewProvenanceFilter().WithPair(UserResource(bob, doc)).WithPagination(1, 1))
		assert.NoError(t, err)
		if assert.Len(t, rows, 1) {
			assert.Equal(t, PrivilegeChange, rows[0].Privilege)
		}
	})
}

// TestExplicitAccessListings tests the resource/subject listing queries,
// including the documented owner-squash: a direct OWNER grant excludes that
// resource from the group path, while CHANGE and VIEW combine normally.
func TestExplicitAccessListings(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	alice := helper.CreateUser("alice")
	bob := helper.CreateUser("bob")
	team := helper.CreateGroup("team")
	owned := helper.CreateResource("owned")
	shared := helper.CreateResource("shared")

	helper.BootstrapOwner(UserGroup(alice, team))
	helper.BootstrapOwner(UserResource(alice, owned))
	helper.BootstrapOwner(UserResource(bob, shared))
	helper.MustShare(bob, UserResource(alice, shared), PrivilegeChange)

	// The group holds access to both resources, granted by each owner.
	helper.MustShare(alice, GroupResource(team, owned), PrivilegeView)
	helper.MustShare(bob, GroupResource(team, shared), PrivilegeView)

	t.Run("Direct path lists direct grants", func(t *testing.T) {
		ids, err := service.Resolver().ListResourcesWithPrivilege(ctx, alice, PrivilegeChange, true, false)
		assert.NoError(t, err)
		assert.Contains(t, ids, owned)
		assert.Contains(t, ids, shared)
	})

	t.Run("Direct OWNER squashes the group path", func(t *testing.T) {
		ids, err := service.Resolver().ListResourcesWithPrivilege(ctx, alice, PrivilegeView, false, true)
		assert.NoError(t, err)
		assert.NotContains(t, ids, owned, "directly owned resource must not surface via the group")
		assert.Contains(t, ids, shared, "direct CHANGE combines with the group path normally")
	})

	t.Run("Subjects holding a level on an object", func(t *testing.T) {
		ids, err := service.Resolver().ListSubjectsWithPrivilege(ctx, PairUserResource, shared, PrivilegeChange)
		assert.NoError(t, err)
		assert.Contains(t, ids, alice)
		assert.Contains(t, ids, bob)
	})

	t.Run("Users reachable at a level across paths", func(t *testing.T) {
		ids, err := service.Resolver().ListUsersWithResourcePrivilege(ctx, shared, PrivilegeView, AllPaths())
		assert.NoError(t, err)
		assert.Contains(t, ids, alice)
		assert.Contains(t, ids, bob)
	})
}

// assertLockstep checks the privilege row matches the newest ledger entry.
func assertLockstep(t *testing.T, helper *TestDataHelper, p Pair) {
	t.Helper()

	service := helper.GetService()
	ctx := helper.GetContext()

	row, err := service.Store().Get(ctx, p)
	assert.NoError(t, err)
	current, err := service.Ledger().Current(ctx, p)
	assert.NoError(t, err)

	if assert.NotNil(t, row) && assert.NotNil(t, current) {
		assert.Equal(t, current.Privilege, row.Privilege)
		assert.Equal(t, current.GrantorID, row.GrantorID)
		assert.True(t, current.StartAt.Equal(row.StartAt))
	}
}
