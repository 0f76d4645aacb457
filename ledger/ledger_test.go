package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/slotstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPayer = keys.MustParse("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	testSlot  = keys.MustParse("8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR")
	testOwner = keys.MustParse("38pfsot7kCZkrttx1THEDXEz4JJXmCCcaDoDieRtVuy5")
)

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	logger.New("NOOP")
	t.Cleanup(logger.OnExit)
	return New(logger.Sugar.WithServiceName("ledgertest"), opts...)
}

func TestLedgerCreateCommits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Airdrop(ctx, testPayer, 10_000_000))

	err := l.Invoke(ctx, []keys.Key{testPayer}, func(h host.Host) error {
		payer, err := h.Load(testPayer)
		require.NoError(t, err)
		slot, err := h.Load(testSlot)
		require.NoError(t, err)
		require.False(t, slot.Allocated())
		return h.Create(payer, slot, 8, testOwner)
	})
	require.NoError(t, err)

	slot, err := l.Snapshot(ctx, testSlot)
	require.NoError(t, err)
	assert.Equal(t, testOwner, slot.Owner)
	assert.Len(t, slot.Data, 8)
	assert.Equal(t, l.Rent().MinimumBalance(8), slot.Balance)

	payer, err := l.Snapshot(ctx, testPayer)
	require.NoError(t, err)
	assert.Equal(t, 10_000_000-l.Rent().MinimumBalance(8), payer.Balance)
	assert.False(t, payer.Signer)
}

func TestLedgerFailedInvocationRollsBack(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Airdrop(ctx, testPayer, 10_000_000))

	boom := errors.New("boom")
	err := l.Invoke(ctx, []keys.Key{testPayer}, func(h host.Host) error {
		payer, _ := h.Load(testPayer)
		slot, _ := h.Load(testSlot)
		require.NoError(t, h.Create(payer, slot, 8, testOwner))
		return boom
	})
	require.ErrorIs(t, err, boom)

	slot, err := l.Snapshot(ctx, testSlot)
	require.NoError(t, err)
	assert.False(t, slot.Allocated())
	payer, err := l.Snapshot(ctx, testPayer)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), payer.Balance)
}

func TestLedgerRentCheck(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Airdrop(ctx, testPayer, 10_000_000))

	err := l.Invoke(ctx, []keys.Key{testPayer}, func(h host.Host) error {
		payer, _ := h.Load(testPayer)
		slot, _ := h.Load(testSlot)
		if err := h.Create(payer, slot, 8, testOwner); err != nil {
			return err
		}
		// grow without topping up
		return h.Resize(slot, 64)
	})
	require.ErrorIs(t, err, host.ErrRentNotExempt)

	slot, err := l.Snapshot(ctx, testSlot)
	require.NoError(t, err)
	assert.False(t, slot.Allocated())
}

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Airdrop(ctx, testPayer, 100))

	tests := []struct {
		name    string
		signers []keys.Key
		amount  uint64
		wantErr error
	}{
		{name: "unsigned", amount: 1, wantErr: host.ErrMissingSignature},
		{name: "overdraw", signers: []keys.Key{testPayer}, amount: 101, wantErr: host.ErrInsufficientFunds},
		{name: "ok", signers: []keys.Key{testPayer}, amount: 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Invoke(ctx, tt.signers, func(h host.Host) error {
				from, _ := h.Load(testPayer)
				to, _ := h.Load(testSlot)
				return h.Transfer(from, to, tt.amount)
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	to, err := l.Snapshot(ctx, testSlot)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), to.Balance)
}

func TestLedgerResizePreservesPrefix(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Airdrop(ctx, testPayer, 100_000_000))

	err := l.Invoke(ctx, []keys.Key{testPayer}, func(h host.Host) error {
		payer, _ := h.Load(testPayer)
		slot, _ := h.Load(testSlot)
		if err := h.Create(payer, slot, 4, testOwner); err != nil {
			return err
		}
		copy(slot.Data, []byte{1, 2, 3, 4})
		if err := h.Transfer(payer, slot, h.Rent().MinimumBalance(8)-slot.Balance); err != nil {
			return err
		}
		return h.Resize(slot, 8)
	})
	require.NoError(t, err)

	slot, err := l.Snapshot(ctx, testSlot)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, slot.Data)
}

func TestLedgerCreateRejectsAllocated(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Deploy(ctx, testOwner, []byte{0xca, 0xfe}))
	require.NoError(t, l.Airdrop(ctx, testPayer, 100_000_000))

	err := l.Invoke(ctx, []keys.Key{testPayer}, func(h host.Host) error {
		payer, _ := h.Load(testPayer)
		slot, _ := h.Load(testOwner)
		return h.Create(payer, slot, 8, testOwner)
	})
	require.ErrorIs(t, err, host.ErrAccountExists)

	prog, err := l.Snapshot(ctx, testOwner)
	require.NoError(t, err)
	assert.True(t, prog.Executable)
	assert.Equal(t, keys.UpgradeableLoader, prog.Owner)
}

func TestLedgerLoadAfterInvoke(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	var leaked host.Host
	require.NoError(t, l.Invoke(ctx, nil, func(h host.Host) error {
		leaked = h
		return nil
	}))
	_, err := leaked.Load(testSlot)
	assert.ErrorIs(t, err, ErrLedgerClosed)
}

func TestLedgerWithStore(t *testing.T) {
	ctx := context.Background()
	l0 := newTestLedger(t)
	log := l0.log

	dir := t.TempDir()
	store, err := slotstore.NewDirStore(log, dir)
	require.NoError(t, err)

	l := New(log, WithStore(store))
	require.NoError(t, l.Airdrop(ctx, testPayer, 10_000_000))
	require.NoError(t, l.Invoke(ctx, []keys.Key{testPayer}, func(h host.Host) error {
		payer, _ := h.Load(testPayer)
		slot, _ := h.Load(testSlot)
		return h.Create(payer, slot, 16, testOwner)
	}))

	// a second ledger over the same directory sees the committed state
	reopened := New(log, WithStore(store))
	slot, err := reopened.Snapshot(ctx, testSlot)
	require.NoError(t, err)
	assert.Equal(t, testOwner, slot.Owner)
	assert.Len(t, slot.Data, 16)

	all, err := reopened.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []keys.Key{testPayer, testSlot}, all)

	// the first ledger's etag for the slot is now stale
	require.NoError(t, reopened.Airdrop(ctx, testSlot, 1))
	err = l.Airdrop(ctx, testSlot, 1)
	assert.ErrorIs(t, err, slotstore.ErrContentOC)
}
