package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDNormalizesOrder(t *testing.T) {
	assert.Equal(t, "alice_bob", ID("alice", "bob"))
	assert.Equal(t, "alice_bob", ID("bob", "alice"))
	assert.Equal(t, "carol_carol", ID("carol", "carol"))
}

func TestParticipants(t *testing.T) {
	a, b, ok := Participants("alice_bob")
	assert.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	_, _, ok = Participants("nounderscore")
	assert.False(t, ok)
}

func TestInvolves(t *testing.T) {
	assert.True(t, Involves("alice_bob", "alice"))
	assert.True(t, Involves("alice_bob", "bob"))
	assert.False(t, Involves("alice_bob", "carol"))
}
