package envelope

import (
	"crypto/rsa"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeysOnce sync.Once
	testKeys     [2]*rsa.PrivateKey
)

// testKey returns a cached RSA-2048 keypair; generating one per test
// would dominate the suite's runtime.
func testKey(t *testing.T, i int) *rsa.PrivateKey {
	t.Helper()
	testKeysOnce.Do(func() {
		for n := range testKeys {
			key, err := GenerateKeyPair()
			if err != nil {
				panic(err)
			}
			testKeys[n] = key
		}
	})
	return testKeys[i]
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t, 0)
	from := Address{Identity: "alice", Device: "a1"}
	to := Address{Identity: "bob", Device: "b1"}

	env, err := Seal([]byte("hello relay"), from, to, &key.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, Alg, env.Alg)
	assert.Equal(t, from, env.From)
	assert.Equal(t, to, env.To)
	assert.NotEmpty(t, env.WrappedKey)
	assert.NotZero(t, env.Timestamp)

	plaintext, err := Open(env, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello relay"), plaintext)
}

func TestSealFreshKeyAndNoncePerCall(t *testing.T) {
	key := testKey(t, 0)
	from := Address{Identity: "alice"}
	to := Address{Identity: "bob", Device: "b1"}

	a, err := Seal([]byte("same plaintext"), from, to, &key.PublicKey)
	require.NoError(t, err)
	b, err := Seal([]byte("same plaintext"), from, to, &key.PublicKey)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.WrappedKey, b.WrappedKey)
}

// TestOpenRejectsTampering flips every bit of the sealed ciphertext
// (tag included) and requires authentication to fail each time without
// releasing plaintext.
func TestOpenRejectsTampering(t *testing.T) {
	key := testKey(t, 0)
	env, err := Seal([]byte("hi"), Address{Identity: "alice"}, Address{Identity: "bob", Device: "b1"}, &key.PublicKey)
	require.NoError(t, err)

	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)

	for byteIdx := range sealed {
		for bit := 0; bit < 8; bit++ {
			tampered := make([]byte, len(sealed))
			copy(tampered, sealed)
			tampered[byteIdx] ^= 1 << bit

			mutated := env
			mutated.Ciphertext = base64.StdEncoding.EncodeToString(tampered)

			plaintext, err := Open(mutated, key)
			require.ErrorIs(t, err, ErrAuthentication, "byte %d bit %d", byteIdx, bit)
			require.Nil(t, plaintext)
		}
	}
}

func TestOpenRejectsTamperedIV(t *testing.T) {
	key := testKey(t, 0)
	env, err := Seal([]byte("payload"), Address{Identity: "alice"}, Address{Identity: "bob", Device: "b1"}, &key.PublicKey)
	require.NoError(t, err)

	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	require.NoError(t, err)
	nonce[0] ^= 0x01
	env.IV = base64.StdEncoding.EncodeToString(nonce)

	_, err = Open(env, key)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestOpenWrongPrivateKey(t *testing.T) {
	sealKey := testKey(t, 0)
	otherKey := testKey(t, 1)

	env, err := Seal([]byte("secret"), Address{Identity: "alice"}, Address{Identity: "bob", Device: "b1"}, &sealKey.PublicKey)
	require.NoError(t, err)

	_, err = Open(env, otherKey)
	assert.ErrorIs(t, err, ErrKeyUnwrap)
}

func TestOpenUnsupportedAlgorithm(t *testing.T) {
	key := testKey(t, 0)
	env, err := Seal([]byte("x"), Address{Identity: "a"}, Address{Identity: "b", Device: "b1"}, &key.PublicKey)
	require.NoError(t, err)

	env.Alg = "A128CBC"
	_, err = Open(env, key)
	assert.ErrorIs(t, err, ErrAlgorithm)
}

func TestSealForWrapsForEveryDevice(t *testing.T) {
	b1 := testKey(t, 0)
	b2 := testKey(t, 1)
	keys := map[string]*rsa.PublicKey{
		"b1": &b1.PublicKey,
		"b2": &b2.PublicKey,
	}

	env, err := SealFor([]byte("fan out"), Address{Identity: "alice", Device: "a1"}, "bob", keys)
	require.NoError(t, err)

	require.Len(t, env.WrappedKeys, 2)
	assert.Empty(t, env.WrappedKey)
	assert.Equal(t, "bob", env.To.Identity)
	assert.Empty(t, env.To.Device)

	// Every device decrypts the one shared ciphertext with its own wrap.
	p1, err := OpenAs(env, "b1", b1)
	require.NoError(t, err)
	p2, err := OpenAs(env, "b2", b2)
	require.NoError(t, err)
	assert.Equal(t, []byte("fan out"), p1)
	assert.Equal(t, []byte("fan out"), p2)

	// Crossing devices and keys must not work.
	_, err = OpenAs(env, "b1", b2)
	assert.ErrorIs(t, err, ErrKeyUnwrap)
}

func TestSealForNoRecipients(t *testing.T) {
	_, err := SealFor([]byte("x"), Address{Identity: "alice"}, "bob", nil)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestForDeviceProjection(t *testing.T) {
	b1 := testKey(t, 0)
	b2 := testKey(t, 1)
	keys := map[string]*rsa.PublicKey{
		"b1": &b1.PublicKey,
		"b2": &b2.PublicKey,
	}
	env, err := SealFor([]byte("projected"), Address{Identity: "alice", Device: "a1"}, "bob", keys)
	require.NoError(t, err)

	proj, ok := env.ForDevice("b1")
	require.True(t, ok)
	assert.Equal(t, "b1", proj.To.Device)
	assert.Equal(t, env.WrappedKeys["b1"], proj.WrappedKey)
	assert.Nil(t, proj.WrappedKeys)

	// The projected form opens with Open directly.
	plaintext, err := Open(proj, b1)
	require.NoError(t, err)
	assert.Equal(t, []byte("projected"), plaintext)

	_, ok = env.ForDevice("b3")
	assert.False(t, ok)
}

func TestForDeviceSingleRecipientPassthrough(t *testing.T) {
	key := testKey(t, 0)
	env, err := Seal([]byte("legacy"), Address{Identity: "alice"}, Address{Identity: "bob"}, &key.PublicKey)
	require.NoError(t, err)

	proj, ok := env.ForDevice("b9")
	require.True(t, ok)
	assert.Equal(t, "b9", proj.To.Device)
	assert.Equal(t, env.WrappedKey, proj.WrappedKey)

	plaintext, err := Open(proj, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), plaintext)
}
