package slotstore

import (
	"context"
	"testing"

	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/registrytesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey   = keys.MustParse("8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR")
	testOwner = keys.MustParse("38pfsot7kCZkrttx1THEDXEz4JJXmCCcaDoDieRtVuy5")
)

func TestAccountFormat(t *testing.T) {
	tests := []struct {
		name string
		a    *host.Account
	}{
		{name: "empty", a: &host.Account{Key: testKey}},
		{name: "funded", a: &host.Account{Key: testKey, Balance: 890880}},
		{name: "slot", a: &host.Account{Key: testKey, Owner: testOwner, Balance: 1 << 40, Data: []byte{1, 2, 3}}},
		{name: "program", a: &host.Account{Key: testKey, Owner: keys.UpgradeableLoader, Executable: true, Data: []byte{0xca, 0xfe}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := EncodeAccount(tt.a)
			assert.Len(t, b, AccountHeaderBytes+len(tt.a.Data))
			got, err := DecodeAccount(testKey, b)
			require.NoError(t, err)
			assert.Equal(t, tt.a, got)
		})
	}
}

func TestDecodeAccountErrors(t *testing.T) {
	_, err := DecodeAccount(testKey, make([]byte, AccountHeaderBytes-1))
	assert.ErrorIs(t, err, ErrAccountHeaderShort)

	b := EncodeAccount(&host.Account{Data: []byte{1, 2, 3}})
	_, err = DecodeAccount(testKey, b[:len(b)-1])
	assert.ErrorIs(t, err, ErrAccountDataLength)
}

func TestSlotName(t *testing.T) {
	k, ok := KeyFromSlotName(SlotName(testKey))
	require.True(t, ok)
	assert.Equal(t, testKey, k)

	_, ok = KeyFromSlotName(testKey.String())
	assert.False(t, ok)
	_, ok = KeyFromSlotName("not-base58!" + SlotExt)
	assert.False(t, ok)
}

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	tc := registrytesting.NewTestContext(t, registrytesting.TestConfig{TestLabelPrefix: "TestDirStore"})
	s, err := NewDirStore(tc.Log, t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Read(ctx, testKey)
	require.ErrorIs(t, err, ErrNotFound)

	a := &host.Account{Key: testKey, Owner: testOwner, Balance: 10, Data: []byte{1}}
	etag, err := s.Write(ctx, a, "")
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	// create requires absence
	_, err = s.Write(ctx, a, "")
	require.ErrorIs(t, err, ErrExistsOC)

	got, readTag, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, etag, readTag)
	assert.Equal(t, a, got)

	a.Balance = 11
	next, err := s.Write(ctx, a, etag)
	require.NoError(t, err)
	assert.NotEqual(t, etag, next)

	// the first etag is now stale
	a.Balance = 12
	_, err = s.Write(ctx, a, etag)
	require.ErrorIs(t, err, ErrContentOC)

	listed, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []keys.Key{testKey}, listed)
}
