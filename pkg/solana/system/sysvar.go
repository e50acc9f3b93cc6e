package system

import (
	"crypto/ed25519"
	"encoding/binary"
	"math"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
)

// https://explorer.solana.com/address/11111111111111111111111111111111
var SystemAccount ed25519.PublicKey

// SysvarOwner owns every sysvar account.
var SysvarOwner ed25519.PublicKey

// RentSysVar points to the system variable "Rent"
//
// Source: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/sysvar/rent.rs#L11
var RentSysVar ed25519.PublicKey

const (
	rentSysvarSize     = 8 + 8 + 1
	defaultBurnPercent = 50
)

func init() {
	var err error

	RentSysVar, err = base58.Decode("SysvarRent111111111111111111111111111111111")
	if err != nil {
		panic(err)
	}

	SysvarOwner, err = base58.Decode("Sysvar1111111111111111111111111111111111111")
	if err != nil {
		panic(err)
	}

	SystemAccount, err = base58.Decode("11111111111111111111111111111111")
	if err != nil {
		panic(err)
	}
}

// NewRentSysvarAccount returns the rent sysvar account describing the rent
// parameters.
//
// Layout reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/rent.rs#L11-L21
func NewRentSysvarAccount(rent runtime.Rent) *ledger.Account {
	// (8)  u64: lamports per byte year
	// (8)  f64: exemption threshold
	// (1)   u8: burn percent
	data := make([]byte, rentSysvarSize)
	binary.LittleEndian.PutUint64(data, rent.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(data[8:], math.Float64bits(float64(rent.ExemptionThreshold)))
	data[16] = defaultBurnPercent

	return &ledger.Account{
		Address:  append(ed25519.PublicKey(nil), RentSysVar...),
		Owner:    append(ed25519.PublicKey(nil), SysvarOwner...),
		Lamports: rent.MinimumBalance(rentSysvarSize),
		Data:     data,
	}
}

// GetRentFromAccount decodes the rent parameters held by the rent sysvar.
func GetRentFromAccount(data []byte) (runtime.Rent, error) {
	if len(data) != rentSysvarSize {
		return runtime.Rent{}, errors.Errorf("invalid rent sysvar size: %d", len(data))
	}

	threshold := math.Float64frombits(binary.LittleEndian.Uint64(data[8:]))
	if threshold < 0 || threshold != math.Trunc(threshold) {
		return runtime.Rent{}, errors.Errorf("unsupported exemption threshold: %f", threshold)
	}

	return runtime.Rent{
		LamportsPerByteYear: binary.LittleEndian.Uint64(data),
		ExemptionThreshold:  uint64(threshold),
	}, nil
}
