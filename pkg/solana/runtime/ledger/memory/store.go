package memory

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
)

type store struct {
	mu       sync.Mutex
	accounts map[string]*ledger.Account
	slot     uint64
}

func New() ledger.Store {
	return &store{
		accounts: make(map[string]*ledger.Account),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.accounts = make(map[string]*ledger.Account)
	s.slot = 0
	s.mu.Unlock()
}

func (s *store) Get(_ context.Context, address ed25519.PublicKey) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.accounts[string(address)]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) Commit(_ context.Context, slot uint64, updated []*ledger.Account, closed []ed25519.PublicKey) error {
	for _, account := range updated {
		if err := account.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range updated {
		cloned := account.Clone()
		cloned.Slot = slot
		account.Slot = slot
		s.accounts[string(account.Address)] = &cloned
	}

	for _, address := range closed {
		delete(s.accounts, string(address))
	}

	if slot > s.slot {
		s.slot = slot
	}

	return nil
}

func (s *store) Count(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.accounts)), nil
}

func (s *store) GetLatestSlot(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.slot, nil
}
