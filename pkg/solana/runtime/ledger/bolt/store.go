package bolt

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	solbinary "github.com/BillArmsty/rusty-rocket/pkg/solana/binary"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
)

var (
	bucketAccounts = []byte("accounts")
	bucketMetadata = []byte("metadata")

	keyLatestSlot = []byte("latest_slot")
)

const (
	// owner | lamports | executable | slot | data...
	headerSize = ed25519.PublicKeySize + 8 + 1 + 8
)

type store struct {
	db *bolt.DB
}

// Open opens, creating if necessary, a ledger backed by the bbolt database at
// the provided path.
func Open(path string, noSync bool) (ledger.Store, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create ledger directory")
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
		NoSync:  noSync,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open ledger")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAccounts, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "failed to initialize ledger buckets")
	}

	return &store{db: db}, db.Close, nil
}

func (s *store) Get(_ context.Context, address ed25519.PublicKey) (*ledger.Account, error) {
	var account *ledger.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get(address)
		if v == nil {
			return ledger.ErrAccountNotFound
		}

		var err error
		account, err = unmarshalAccount(address, v)
		return err
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

func (s *store) Commit(_ context.Context, slot uint64, updated []*ledger.Account, closed []ed25519.PublicKey) error {
	for _, account := range updated {
		if err := account.Validate(); err != nil {
			return err
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		for _, account := range updated {
			cloned := account.Clone()
			cloned.Slot = slot
			if err := accounts.Put(cloned.Address, marshalAccount(&cloned)); err != nil {
				return errors.Wrap(err, "failed to write account")
			}
		}

		for _, address := range closed {
			if err := accounts.Delete(address); err != nil {
				return errors.Wrap(err, "failed to delete account")
			}
		}

		metadata := tx.Bucket(bucketMetadata)
		latest := metadata.Get(keyLatestSlot)
		if latest == nil || binary.LittleEndian.Uint64(latest) < slot {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], slot)
			if err := metadata.Put(keyLatestSlot, buf[:]); err != nil {
				return errors.Wrap(err, "failed to write latest slot")
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, account := range updated {
		account.Slot = slot
	}
	return nil
}

func (s *store) Count(_ context.Context) (uint64, error) {
	var count uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		count = uint64(tx.Bucket(bucketAccounts).Stats().KeyN)
		return nil
	})
	return count, err
}

func (s *store) GetLatestSlot(_ context.Context) (uint64, error) {
	var slot uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMetadata).Get(keyLatestSlot); v != nil {
			slot = binary.LittleEndian.Uint64(v)
		}
		return nil
	})
	return slot, err
}

func marshalAccount(account *ledger.Account) []byte {
	b := make([]byte, headerSize+len(account.Data))

	var offset int
	solbinary.PutKey32(b[offset:], account.Owner, &offset)
	solbinary.PutUint64(b[offset:], account.Lamports, &offset)
	solbinary.PutBool(b[offset:], account.Executable, &offset)
	solbinary.PutUint64(b[offset:], account.Slot, &offset)
	copy(b[offset:], account.Data)

	return b
}

func unmarshalAccount(address ed25519.PublicKey, b []byte) (*ledger.Account, error) {
	if len(b) < headerSize {
		return nil, errors.Wrapf(ledger.ErrInvalidAccount, "invalid stored size: %d", len(b))
	}

	account := &ledger.Account{
		Address: append(ed25519.PublicKey(nil), address...),
	}

	var offset int
	solbinary.GetKey32(b[offset:], &account.Owner, &offset)
	solbinary.GetUint64(b[offset:], &account.Lamports, &offset)
	solbinary.GetBool(b[offset:], &account.Executable, &offset)
	solbinary.GetUint64(b[offset:], &account.Slot, &offset)
	account.Data = append([]byte{}, b[offset:]...)

	return account, nil
}
