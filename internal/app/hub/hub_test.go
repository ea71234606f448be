package hub

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trocchat/internal/pkg/logx"
)

func init() {
	logx.InitGlobalLogger(false)
}

const (
	userAnna   = "11111111-1111-4111-8111-111111111111"
	userBernat = "22222222-2222-4222-8222-222222222222"
	productP   = "33333333-3333-4333-8333-333333333333"
)

func newTestHub(t *testing.T) (*Hub, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	st.addUser(userAnna, "anna")
	st.addUser(userBernat, "bernat")
	st.addProduct(productP, userBernat)
	return NewHub(st, 50), st
}

func TestRegisterTracksPresence(t *testing.T) {
	h, _ := newTestHub(t)

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)

	bernat := newTestClient(h, userBernat, "bernat")
	h.Register(bernat)

	assert.Equal(t, []string{"anna", "bernat"}, h.OnlineNicknames())
	assert.Same(t, anna, h.LookupClient(userAnna))
	assert.Same(t, bernat, h.LookupClient(userBernat))

	// The second registration rebroadcast the roster to anna as well.
	rosters := eventsNamed(drainEvents(t, anna), EventOnlineUsers)
	require.NotEmpty(t, rosters)

	var nicknames []string
	require.NoError(t, json.Unmarshal(rosters[len(rosters)-1].Data, &nicknames))
	assert.Equal(t, []string{"anna", "bernat"}, nicknames)
}

func TestRegisterEvictsPriorSession(t *testing.T) {
	h, _ := newTestHub(t)

	first := newTestClient(h, userAnna, "anna")
	h.Register(first)
	drainEvents(t, first)

	second := newTestClient(h, userAnna, "anna")
	h.Register(second)

	// Exactly one session-terminated to the old socket, then its queue closes.
	firstEvents := drainEvents(t, first)
	terminated := eventsNamed(firstEvents, EventSessionTerminated)
	require.Len(t, terminated, 1)

	// The new socket owns the identity now.
	assert.Same(t, second, h.LookupClient(userAnna))

	// The roster does not double-count the nickname.
	assert.Equal(t, []string{"anna"}, h.OnlineNicknames())

	// The post-eviction roster broadcast reached the new socket exactly once.
	rosters := eventsNamed(drainEvents(t, second), EventOnlineUsers)
	require.Len(t, rosters, 1)
}

func TestUnregisterIgnoresStaleConnection(t *testing.T) {
	h, _ := newTestHub(t)

	stale := newTestClient(h, userAnna, "anna")
	h.Register(stale)

	fresh := newTestClient(h, userAnna, "anna")
	h.Register(fresh)

	// The evicted socket's disconnect arrives late; it must not tear down the
	// fresh registration.
	h.Unregister(stale)

	assert.Same(t, fresh, h.LookupClient(userAnna))
	assert.Equal(t, []string{"anna"}, h.OnlineNicknames())

	h.Unregister(fresh)
	assert.Nil(t, h.LookupClient(userAnna))
	assert.Empty(t, h.OnlineNicknames())
}

func TestJoinGeneralReplaysHistoryToRequesterOnly(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)
	h.HandleJoinGeneral(ctx, anna)
	h.HandleGeneralMessage(ctx, anna, GeneralMessagePayload{Content: "hello"})
	drainEvents(t, anna)

	bernat := newTestClient(h, userBernat, "bernat")
	h.Register(bernat)
	h.HandleJoinGeneral(ctx, bernat)

	loads := eventsNamed(drainEvents(t, bernat), EventLoadMessages)
	require.Len(t, loads, 1)

	var views []ChatMessageView
	require.NoError(t, json.Unmarshal(loads[0].Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "hello", views[0].Content)
	assert.Equal(t, "anna", views[0].UserNickname)

	// anna did not get a second replay.
	assert.Empty(t, eventsNamed(drainEvents(t, anna), EventLoadMessages))
}

func TestGeneralHistoryIsCappedAndAscending(t *testing.T) {
	st := newFakeStore()
	st.addUser(userAnna, "anna")
	h := NewHub(st, 3)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)
	h.HandleJoinGeneral(ctx, anna)

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		h.HandleGeneralMessage(ctx, anna, GeneralMessagePayload{Content: content})
	}
	drainEvents(t, anna)

	h.HandleJoinGeneral(ctx, anna)
	loads := eventsNamed(drainEvents(t, anna), EventLoadMessages)
	require.Len(t, loads, 1)

	var views []ChatMessageView
	require.NoError(t, json.Unmarshal(loads[0].Data, &views))
	require.Len(t, views, 3)
	assert.Equal(t, "three", views[0].Content)
	assert.Equal(t, "four", views[1].Content)
	assert.Equal(t, "five", views[2].Content)
	assert.True(t, views[0].CreatedAt.Before(views[2].CreatedAt))
}

func TestGeneralMessageBroadcastsToRoomMembers(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	bernat := newTestClient(h, userBernat, "bernat")
	h.Register(anna)
	h.Register(bernat)
	h.HandleJoinGeneral(ctx, anna)
	h.HandleJoinGeneral(ctx, bernat)
	drainEvents(t, anna)
	drainEvents(t, bernat)

	h.HandleGeneralMessage(ctx, anna, GeneralMessagePayload{Content: " hola "})

	for _, c := range []*Client{anna, bernat} {
		broadcasts := eventsNamed(drainEvents(t, c), EventGeneralMessage)
		require.Len(t, broadcasts, 1)

		var view ChatMessageView
		require.NoError(t, json.Unmarshal(broadcasts[0].Data, &view))
		assert.Equal(t, "hola", view.Content)
		assert.Equal(t, "anna", view.UserNickname)
	}
}

func TestInvalidGeneralMessageIsDroppedSilently(t *testing.T) {
	h, st := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)
	h.HandleJoinGeneral(ctx, anna)
	drainEvents(t, anna)

	h.HandleGeneralMessage(ctx, anna, GeneralMessagePayload{Content: "   \t  "})
	h.HandleGeneralMessage(ctx, anna, GeneralMessagePayload{Content: strings.Repeat("x", MaxContentChars+1)})

	assert.Empty(t, st.messages)
	assert.Empty(t, drainEvents(t, anna))
}

func TestContentAtLimitIsAccepted(t *testing.T) {
	h, st := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)
	h.HandleJoinGeneral(ctx, anna)

	h.HandleGeneralMessage(ctx, anna, GeneralMessagePayload{Content: strings.Repeat("y", MaxContentChars)})

	require.Len(t, st.messages, 1)
}

func TestPrivateMessageFlow(t *testing.T) {
	h, st := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	bernat := newTestClient(h, userBernat, "bernat")
	h.Register(anna)
	h.Register(bernat)
	drainEvents(t, anna)
	drainEvents(t, bernat)

	h.HandlePrivateMessage(ctx, anna, PrivateMessagePayload{
		TargetPayload: TargetPayload{TargetNickname: "bernat", ProductID: productP},
		Content:       "hi",
	})

	require.Len(t, st.messages, 1)
	saved := st.messages[0]
	assert.True(t, saved.IsPrivate)
	assert.Equal(t, productP, saved.ProductID)
	assert.Equal(t, PrivateRoomID(userAnna, userBernat, productP), saved.RoomID)

	// Sender echo and direct delivery to the online target.
	for _, c := range []*Client{anna, bernat} {
		private := eventsNamed(drainEvents(t, c), EventPrivateMessage)
		require.Len(t, private, 1)

		var view ChatMessageView
		require.NoError(t, json.Unmarshal(private[0].Data, &view))
		assert.Equal(t, "hi", view.Content)
		assert.Equal(t, "anna", view.UserNickname)
		assert.Equal(t, productP, view.ProductID)
	}
}

func TestPrivateMessageToOfflineTargetStillPersists(t *testing.T) {
	h, st := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)
	drainEvents(t, anna)

	h.HandlePrivateMessage(ctx, anna, PrivateMessagePayload{
		TargetPayload: TargetPayload{TargetNickname: "bernat"},
		Content:       "see you",
	})

	require.Len(t, st.messages, 1)
	assert.Empty(t, st.messages[0].ProductID)

	echo := eventsNamed(drainEvents(t, anna), EventPrivateMessage)
	assert.Len(t, echo, 1)
}

func TestPrivateMessageUnownedProductIsDropped(t *testing.T) {
	h, st := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)
	drainEvents(t, anna)

	// productP belongs to bernat, not anna: targeting anna with it must fail.
	h.HandlePrivateMessage(ctx, anna, PrivateMessagePayload{
		TargetPayload: TargetPayload{TargetNickname: "anna", ProductID: productP},
		Content:       "hi",
	})

	assert.Empty(t, st.messages)
	assert.Empty(t, drainEvents(t, anna))
}

func TestLoadPrivateMessagesScopedByProduct(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	anna := newTestClient(h, userAnna, "anna")
	bernat := newTestClient(h, userBernat, "bernat")
	h.Register(anna)
	h.Register(bernat)

	h.HandlePrivateMessage(ctx, anna, PrivateMessagePayload{
		TargetPayload: TargetPayload{TargetUserID: userBernat, ProductID: productP},
		Content:       "hi",
	})
	drainEvents(t, bernat)

	// Product-scoped thread has the message.
	h.HandleLoadPrivateMessages(ctx, bernat, TargetPayload{TargetUserID: userAnna, ProductID: productP})
	loads := eventsNamed(drainEvents(t, bernat), EventLoadPrivateMessages)
	require.Len(t, loads, 1)

	var scoped PrivateHistoryView
	require.NoError(t, json.Unmarshal(loads[0].Data, &scoped))
	require.Len(t, scoped.Messages, 1)
	assert.Equal(t, "hi", scoped.Messages[0].Content)
	assert.Equal(t, productP, scoped.ProductID)

	// The product-less thread between the same pair is independent and empty.
	h.HandleLoadPrivateMessages(ctx, bernat, TargetPayload{TargetUserID: userAnna})
	loads = eventsNamed(drainEvents(t, bernat), EventLoadPrivateMessages)
	require.Len(t, loads, 1)

	var unscoped PrivateHistoryView
	require.NoError(t, json.Unmarshal(loads[0].Data, &unscoped))
	assert.Empty(t, unscoped.Messages)
}

func TestBroadcastAllReachesRoomlessSockets(t *testing.T) {
	h, _ := newTestHub(t)

	anna := newTestClient(h, userAnna, "anna")
	bernat := newTestClient(h, userBernat, "bernat")
	h.Register(anna)
	h.Register(bernat)
	drainEvents(t, anna)
	drainEvents(t, bernat)

	h.BroadcastAll(EventProductState, ProductState{ProductID: productP, Reserved: true})

	for _, c := range []*Client{anna, bernat} {
		states := eventsNamed(drainEvents(t, c), EventProductState)
		require.Len(t, states, 1)

		var state ProductState
		require.NoError(t, json.Unmarshal(states[0].Data, &state))
		assert.True(t, state.Reserved)
		assert.Equal(t, productP, state.ProductID)
	}
}

func TestEmitToUserReportsOffline(t *testing.T) {
	h, _ := newTestHub(t)

	assert.False(t, h.EmitToUser(userAnna, EventAppNotification, AppNotification{Type: "info"}))

	anna := newTestClient(h, userAnna, "anna")
	h.Register(anna)
	assert.True(t, h.EmitToUser(userAnna, EventAppNotification, AppNotification{Type: "info"}))
}
