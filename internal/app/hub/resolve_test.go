package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTargetByNickname(t *testing.T) {
	h, _ := newTestHub(t)

	target, ok := h.resolveTarget(context.Background(), TargetPayload{TargetNickname: "bernat"})
	require.True(t, ok)
	assert.Equal(t, userBernat, target.UserID)
	assert.Empty(t, target.ProductID)
}

func TestResolveTargetByUserID(t *testing.T) {
	h, _ := newTestHub(t)

	target, ok := h.resolveTarget(context.Background(), TargetPayload{TargetUserID: userBernat})
	require.True(t, ok)
	assert.Equal(t, userBernat, target.UserID)
}

func TestResolveTargetGenericFieldClassifiedByShape(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	// UUID-shaped value resolves as a userId.
	target, ok := h.resolveTarget(ctx, TargetPayload{Target: userBernat})
	require.True(t, ok)
	assert.Equal(t, userBernat, target.UserID)

	// Anything else resolves as a nickname.
	target, ok = h.resolveTarget(ctx, TargetPayload{Target: "anna"})
	require.True(t, ok)
	assert.Equal(t, userAnna, target.UserID)
}

func TestResolveTargetUnknownFails(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	_, ok := h.resolveTarget(ctx, TargetPayload{TargetNickname: "nobody"})
	assert.False(t, ok)

	_, ok = h.resolveTarget(ctx, TargetPayload{TargetUserID: "99999999-9999-4999-8999-999999999999"})
	assert.False(t, ok)

	_, ok = h.resolveTarget(ctx, TargetPayload{})
	assert.False(t, ok)
}

func TestResolveTargetProductOwnershipEnforced(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	// bernat owns productP.
	target, ok := h.resolveTarget(ctx, TargetPayload{TargetNickname: "bernat", ProductID: productP})
	require.True(t, ok)
	assert.Equal(t, productP, target.ProductID)

	// anna does not; a forged productId cannot address her threads.
	_, ok = h.resolveTarget(ctx, TargetPayload{TargetNickname: "anna", ProductID: productP})
	assert.False(t, ok)
}
