package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"trocchat/internal/app/store"
)

// fakeStore is an in-memory store.Store used by the hub tests.
type fakeStore struct {
	mu sync.Mutex

	messages []store.ChatMessage

	// nickname -> userId
	users map[string]string

	// productId -> ownerId
	products map[string]string

	prefs map[string]*store.NotificationPrefs
	subs  map[string][]store.PushSubscription

	saveErr error

	clock time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]string),
		products: make(map[string]string),
		prefs:    make(map[string]*store.NotificationPrefs),
		subs:     make(map[string][]store.PushSubscription),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addUser(userID, nickname string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[nickname] = userID
}

func (f *fakeStore) addProduct(productID, ownerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[productID] = ownerID
}

func (f *fakeStore) SaveMessage(_ context.Context, m *store.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return f.saveErr
	}

	f.clock = f.clock.Add(time.Millisecond)
	m.CreatedAt = f.clock
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeStore) GeneralHistory(_ context.Context, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	general := []store.ChatMessage{}
	for _, m := range f.messages {
		if m.RoomID == GeneralRoom {
			general = append(general, m)
		}
	}
	if len(general) > limit {
		general = general[len(general)-limit:]
	}
	return general, nil
}

func (f *fakeStore) PrivateHistory(_ context.Context, roomID string) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	private := []store.ChatMessage{}
	for _, m := range f.messages {
		if m.RoomID == roomID && m.IsPrivate {
			private = append(private, m)
		}
	}
	return private, nil
}

func (f *fakeStore) UserIDByNickname(_ context.Context, nickname string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.users[nickname]
	if !ok {
		return "", store.ErrNotFound
	}
	return id, nil
}

func (f *fakeStore) NicknameByUserID(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for nickname, id := range f.users {
		if id == userID {
			return nickname, nil
		}
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) OwnsProduct(_ context.Context, userID, productID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID] == userID, nil
}

func (f *fakeStore) Preferences(_ context.Context, userID string) (*store.NotificationPrefs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs[userID], nil
}

func (f *fakeStore) PushSubscriptions(_ context.Context, userID string) ([]store.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[userID], nil
}

func (f *fakeStore) DeletePushSubscription(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for userID, subs := range f.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.ID != id {
				kept = append(kept, sub)
			}
		}
		f.subs[userID] = kept
	}
	return nil
}

// fakeConn is a no-op wsConn; tests observe outbound traffic through the
// client's send queue instead of the connection.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error)       { select {} }
func (c *fakeConn) WriteMessage(int, []byte) error          { return nil }
func (c *fakeConn) SetReadLimit(int64)                      {}
func (c *fakeConn) SetReadDeadline(time.Time) error         { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error        { return nil }
func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newTestClient(h *Hub, userID, nickname string) *Client {
	return NewClient(h, &fakeConn{}, Identity{UserID: userID, Nickname: nickname})
}

// drainEvents empties the client's send queue, decoding each frame.
func drainEvents(t *testing.T, c *Client) []Envelope {
	t.Helper()

	var envelopes []Envelope
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return envelopes
			}
			var e Envelope
			if err := json.Unmarshal(frame, &e); err != nil {
				t.Fatalf("invalid frame %q: %v", frame, err)
			}
			envelopes = append(envelopes, e)
		default:
			return envelopes
		}
	}
}

// eventsNamed filters envelopes by event name.
func eventsNamed(envelopes []Envelope, name string) []Envelope {
	var matched []Envelope
	for _, e := range envelopes {
		if e.Event == name {
			matched = append(matched, e)
		}
	}
	return matched
}
