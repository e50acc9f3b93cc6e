package runtime

const (
	// AccountStorageOverhead is the number of bytes of account metadata
	// charged for in addition to the account's data.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionThreshold  = 2

	// MaxPermittedDataLength is the largest account data size the system
	// program will allocate.
	MaxPermittedDataLength = 10 * 1024 * 1024
)

// Rent holds the parameters used to compute the rent-exempt minimum balance.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
	}
}

// MinimumBalance returns the minimum balance for an account holding size bytes
// of data to be exempt from rent.
func (r Rent) MinimumBalance(size uint64) uint64 {
	return (AccountStorageOverhead + size) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// IsExempt reports whether the balance is rent exempt for the data size.
func (r Rent) IsExempt(lamports, size uint64) bool {
	return lamports >= r.MinimumBalance(size)
}
