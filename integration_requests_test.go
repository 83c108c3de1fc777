package sharekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// requestScenario wires up a group owner, a community owner and their objects
// for bilateral request tests.
type requestScenario struct {
	groupOwner     string
	communityOwner string
	group          string
	community      string
}

func newRequestScenario(helper *TestDataHelper, autoApprove bool) requestScenario {
	sc := requestScenario{
		groupOwner:     helper.CreateUser("group-owner"),
		communityOwner: helper.CreateUser("community-owner"),
		group:          helper.CreateGroup("team"),
	}
	if autoApprove {
		sc.community = helper.CreateAutoApproveCommunity("community")
	} else {
		sc.community = helper.CreateCommunity("community")
	}
	helper.BootstrapOwner(UserGroup(sc.groupOwner, sc.group))
	helper.BootstrapOwner(UserCommunity(sc.communityOwner, sc.community))
	return sc
}

// TestRequestApprovalFlow tests the group-initiated request through approval.
func TestRequestApprovalFlow(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	sc := newRequestScenario(helper, false)

	t.Run("Group owner opens the request", func(t *testing.T) {
		msg, ok := service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.True(t, ok, msg)

		req, err := service.GetRequest(ctx, sc.group, sc.community)
		assert.NoError(t, err)
		if assert.NotNil(t, req) {
			assert.True(t, req.Pending())
			assert.True(t, req.InitiatedByGroup())
			assert.Equal(t, sc.groupOwner, req.GroupOwnerID)
			assert.Empty(t, req.CommunityOwnerID)
		}

		// No privilege until the other side signs.
		helper.AssertEffective(GroupCommunity(sc.group, sc.community), PrivilegeNone)
	})

	t.Run("Only the community owner can approve", func(t *testing.T) {
		stranger := helper.CreateUser("stranger")
		msg, ok := service.ApproveRequest(ctx, stranger, sc.group, sc.community)
		assert.False(t, ok)
		assert.NotEmpty(t, msg)
	})

	t.Run("Community owner approves", func(t *testing.T) {
		msg, ok := service.ApproveRequest(ctx, sc.communityOwner, sc.group, sc.community)
		assert.True(t, ok, msg)

		req, err := service.GetRequest(ctx, sc.group, sc.community)
		assert.NoError(t, err)
		if assert.NotNil(t, req) {
			assert.True(t, req.Redeemed)
			assert.True(t, req.Approved)
			assert.Equal(t, sc.communityOwner, req.CommunityOwnerID)
			assert.False(t, req.WhenResponded.IsZero())
		}

		helper.AssertEffective(GroupCommunity(sc.group, sc.community), PrivilegeView)
	})

	t.Run("Repeat create reports membership", func(t *testing.T) {
		msg, ok := service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.True(t, ok)
		assert.Equal(t, "group already joined the community", msg)
	})
}

// TestRequestDeclineAndResubmit tests the decline path and reopening.
func TestRequestDeclineAndResubmit(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	sc := newRequestScenario(helper, false)

	msg, ok := service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
	assert.True(t, ok, msg)

	t.Run("Community owner declines", func(t *testing.T) {
		msg, ok := service.DeclineRequest(ctx, sc.communityOwner, sc.group, sc.community)
		assert.True(t, ok, msg)

		req, err := service.GetRequest(ctx, sc.group, sc.community)
		assert.NoError(t, err)
		if assert.NotNil(t, req) {
			assert.True(t, req.Redeemed)
			assert.False(t, req.Approved)
		}

		helper.AssertEffective(GroupCommunity(sc.group, sc.community), PrivilegeNone)
	})

	t.Run("Declined request blocks a fresh create", func(t *testing.T) {
		msg, ok := service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.False(t, ok)
		assert.NotEmpty(t, msg)
	})

	t.Run("Only the initiator side can resubmit", func(t *testing.T) {
		_, ok := service.ResubmitRequest(ctx, sc.communityOwner, sc.group, sc.community)
		assert.False(t, ok)
	})

	t.Run("Resubmit reopens the request", func(t *testing.T) {
		msg, ok := service.ResubmitRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.True(t, ok, msg)

		req, err := service.GetRequest(ctx, sc.group, sc.community)
		assert.NoError(t, err)
		if assert.NotNil(t, req) {
			assert.True(t, req.Pending())
			assert.True(t, req.WhenResponded.IsZero())
		}
	})

	t.Run("Approval after resubmit grants view", func(t *testing.T) {
		msg, ok := service.ApproveRequest(ctx, sc.communityOwner, sc.group, sc.community)
		assert.True(t, ok, msg)
		helper.AssertEffective(GroupCommunity(sc.group, sc.community), PrivilegeView)
	})
}

// TestRequestCancel tests withdrawing a pending request.
func TestRequestCancel(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	sc := newRequestScenario(helper, false)

	msg, ok := service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
	assert.True(t, ok, msg)

	msg, ok = service.CancelRequest(ctx, sc.groupOwner, sc.group, sc.community)
	assert.True(t, ok, msg)

	req, err := service.GetRequest(ctx, sc.group, sc.community)
	assert.NoError(t, err)
	assert.Nil(t, req)

	t.Run("Cancelling twice fails", func(t *testing.T) {
		_, ok := service.CancelRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.False(t, ok)
	})

	t.Run("A fresh request can follow a cancel", func(t *testing.T) {
		msg, ok := service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.True(t, ok, msg)
	})
}

// TestRequestAutoApprove tests immediate redemption paths.
func TestRequestAutoApprove(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	t.Run("Community auto-approves group joins", func(t *testing.T) {
		sc := newRequestScenario(helper, true)

		msg, ok := service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.True(t, ok, msg)

		req, err := service.GetRequest(ctx, sc.group, sc.community)
		assert.NoError(t, err)
		if assert.NotNil(t, req) {
			assert.True(t, req.Redeemed)
			assert.True(t, req.Approved)
		}
		helper.AssertEffective(GroupCommunity(sc.group, sc.community), PrivilegeView)
	})

	t.Run("Actor owning both sides redeems immediately", func(t *testing.T) {
		carol := helper.CreateUser("carol")
		group := helper.CreateGroup("team")
		community := helper.CreateCommunity("community")
		helper.BootstrapOwner(UserGroup(carol, group))
		helper.BootstrapOwner(UserCommunity(carol, community))

		msg, ok := service.CreateOrUpdateRequest(ctx, carol, group, community)
		assert.True(t, ok, msg)

		helper.AssertEffective(GroupCommunity(group, community), PrivilegeView)
	})

	t.Run("Opposite-side create completes a pending request", func(t *testing.T) {
		sc := newRequestScenario(helper, false)

		msg, ok := service.CreateOrUpdateRequest(ctx, sc.communityOwner, sc.group, sc.community)
		assert.True(t, ok, msg)

		// The group owner asking afterwards completes the agreement.
		msg, ok = service.CreateOrUpdateRequest(ctx, sc.groupOwner, sc.group, sc.community)
		assert.True(t, ok, msg)

		helper.AssertEffective(GroupCommunity(sc.group, sc.community), PrivilegeView)
	})
}

// TestCommunityMediatedAccess tests the via-community resolution path and
// the allow_view switch end to end.
func TestCommunityMediatedAccess(t *testing.T) {
	helper := NewTestDataHelper(t)
	ctx := helper.GetContext()
	service := helper.GetService()

	// Two groups joined to the same community. The holding group owns a
	// resource; the viewer group's member reaches it through the community.
	holderOwner := helper.CreateUser("holder-owner")
	viewerOwner := helper.CreateUser("viewer-owner")
	member := helper.CreateUser("member")
	holding := helper.CreateGroup("holding")
	viewing := helper.CreateGroup("viewing")
	communityOwner := helper.CreateUser("community-owner")
	community := helper.CreateCommunity("community")
	doc := helper.CreateResource("doc")

	helper.BootstrapOwner(UserGroup(holderOwner, holding))
	helper.BootstrapOwner(UserGroup(viewerOwner, viewing))
	helper.BootstrapOwner(UserCommunity(communityOwner, community))
	helper.BootstrapOwner(UserResource(holderOwner, doc))

	helper.MustShare(viewerOwner, UserGroup(member, viewing), PrivilegeView)
	helper.MustShare(holderOwner, GroupResource(holding, doc), PrivilegeChange)

	for _, pair := range []struct {
		actor string
		group string
	}{
		{holderOwner, holding},
		{viewerOwner, viewing},
	} {
		msg, ok := service.CreateOrUpdateRequest(ctx, pair.actor, pair.group, community)
		assert.True(t, ok, msg)
		msg, ok = service.ApproveRequest(ctx, communityOwner, pair.group, community)
		assert.True(t, ok, msg)
	}

	t.Run("Peer member sees the resource", func(t *testing.T) {
		helper.AssertEffective(UserResource(member, doc), PrivilegeView)
	})

	t.Run("Community path can be excluded", func(t *testing.T) {
		p, err := service.Resolver().ResourcePrivilegeSpec(ctx, member, doc,
			QuerySpec{ViaUser: true, ViaGroup: true})
		assert.NoError(t, err)
		assert.Equal(t, PrivilegeNone, p)
	})

	t.Run("Disabling allow_view closes the path", func(t *testing.T) {
		err := service.SetGroupCommunityAllowView(ctx, holderOwner, holding, community, false)
		assert.NoError(t, err)
		helper.AssertEffective(UserResource(member, doc), PrivilegeNone)

		err = service.SetGroupCommunityAllowView(ctx, holderOwner, holding, community, true)
		assert.NoError(t, err)
		helper.AssertEffective(UserResource(member, doc), PrivilegeView)
	})

	t.Run("Only the group owner flips allow_view", func(t *testing.T) {
		err := service.SetGroupCommunityAllowView(ctx, member, holding, community, false)
		assert.ErrorIs(t, err, ErrMustOwnOrHaveSharingPrivilege)
	})
}
