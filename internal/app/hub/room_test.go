package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrivateRoomIDOrderIndependent(t *testing.T) {
	cases := []struct{ a, b, product string }{
		{"alpha", "beta", ""},
		{"alpha", "beta", "p1"},
		{userAnna, userBernat, productP},
		{"z", "a", "p2"},
	}

	for _, tc := range cases {
		assert.Equal(t,
			PrivateRoomID(tc.a, tc.b, tc.product),
			PrivateRoomID(tc.b, tc.a, tc.product),
			"pair (%s,%s) product %q", tc.a, tc.b, tc.product)
	}
}

func TestPrivateRoomIDDistinctPerProduct(t *testing.T) {
	base := PrivateRoomID("alpha", "beta", "")
	p1 := PrivateRoomID("alpha", "beta", "p1")
	p2 := PrivateRoomID("alpha", "beta", "p2")

	assert.NotEqual(t, base, p1)
	assert.NotEqual(t, base, p2)
	assert.NotEqual(t, p1, p2)
}

func TestPrivateRoomIDShape(t *testing.T) {
	assert.Equal(t, "alpha-beta", PrivateRoomID("beta", "alpha", ""))
	assert.Equal(t, "alpha-beta::p1", PrivateRoomID("beta", "alpha", "p1"))
}
