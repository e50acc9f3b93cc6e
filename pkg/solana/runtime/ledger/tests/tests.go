package tests

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
)

func RunTests(t *testing.T, s ledger.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s ledger.Store){
		testRoundTrip,
		testUpdateAndClose,
		testCommitErrors,
		testSlotTracking,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s ledger.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		expected := &ledger.Account{
			Address:  newKey(t),
			Owner:    newKey(t),
			Lamports: 890_880,
			Data:     []byte{1, 2, 3, 4},
		}
		cloned := expected.Clone()

		_, err := s.Get(ctx, cloned.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		require.NoError(t, s.Commit(ctx, 1, []*ledger.Account{expected}, nil))
		assert.EqualValues(t, 1, expected.Slot)

		actual, err := s.Get(ctx, cloned.Address)
		require.NoError(t, err)
		cloned.Slot = 1
		assertEquivalentAccounts(t, &cloned, actual)

		// Mutating the returned value must not leak into the store.
		actual.Data[0] = 0xff
		actual.Lamports = 0

		actual, err = s.Get(ctx, cloned.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, &cloned, actual)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func testUpdateAndClose(t *testing.T, s ledger.Store) {
	t.Run("testUpdateAndClose", func(t *testing.T) {
		ctx := context.Background()

		owner := newKey(t)
		closing := &ledger.Account{
			Address:  newKey(t),
			Owner:    owner,
			Lamports: 100,
		}
		destination := &ledger.Account{
			Address:  newKey(t),
			Owner:    owner,
			Lamports: 50,
		}
		require.NoError(t, s.Commit(ctx, 1, []*ledger.Account{closing, destination}, nil))

		destination.Lamports += closing.Lamports
		require.NoError(t, s.Commit(ctx, 2, []*ledger.Account{destination}, []ed25519.PublicKey{closing.Address}))

		_, err := s.Get(ctx, closing.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		actual, err := s.Get(ctx, destination.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 150, actual.Lamports)
		assert.EqualValues(t, 2, actual.Slot)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)

		// Closing an unknown address is a no-op.
		require.NoError(t, s.Commit(ctx, 3, nil, []ed25519.PublicKey{newKey(t)}))
	})
}

func testCommitErrors(t *testing.T, s ledger.Store) {
	t.Run("testCommitErrors", func(t *testing.T) {
		ctx := context.Background()

		valid := &ledger.Account{
			Address:  newKey(t),
			Owner:    newKey(t),
			Lamports: 1,
		}

		for _, invalid := range []*ledger.Account{
			{Owner: newKey(t)},
			{Address: newKey(t)},
			{Address: make([]byte, 31), Owner: newKey(t)},
		} {
			err := s.Commit(ctx, 1, []*ledger.Account{valid, invalid}, nil)
			assert.ErrorIs(t, err, ledger.ErrInvalidAccount)
		}

		_, err := s.Get(ctx, valid.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		slot, err := s.GetLatestSlot(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, slot)
	})
}

func testSlotTracking(t *testing.T, s ledger.Store) {
	t.Run("testSlotTracking", func(t *testing.T) {
		ctx := context.Background()

		slot, err := s.GetLatestSlot(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, slot)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		account := &ledger.Account{
			Address: newKey(t),
			Owner:   newKey(t),
		}
		for _, commitSlot := range []uint64{5, 10, 7} {
			require.NoError(t, s.Commit(ctx, commitSlot, []*ledger.Account{account}, nil))
		}

		slot, err = s.GetLatestSlot(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 10, slot)

		actual, err := s.Get(ctx, account.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 7, actual.Slot)
	})
}

func newKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub
}

func assertEquivalentAccounts(t *testing.T, expected, actual *ledger.Account) {
	assert.EqualValues(t, expected.Address, actual.Address)
	assert.EqualValues(t, expected.Owner, actual.Owner)
	assert.Equal(t, expected.Lamports, actual.Lamports)
	assert.Equal(t, expected.Data, actual.Data)
	assert.Equal(t, expected.Executable, actual.Executable)
	assert.Equal(t, expected.Slot, actual.Slot)
}
