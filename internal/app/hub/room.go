/*
Package hub contains the core logic of the realtime server.

This file implements room addressing. Rooms are not stored entities, only
derived string keys: the singleton general room plus private per-pair rooms,
optionally scoped to a single product listing.
*/
package hub

// GeneralRoom is the room id of the public channel.
const GeneralRoom = "general"

// PrivateRoomID derives the deterministic room key for a private conversation
// between two users. The pair is sorted so both participants derive the same
// key, and a product-scoped thread gets a distinct key per product in addition
// to the product-less thread.
func PrivateRoomID(userA, userB, productID string) string {
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}

	roomID := lo + "-" + hi
	if productID != "" {
		roomID += "::" + productID
	}
	return roomID
}
