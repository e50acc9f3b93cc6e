package vault

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/system"
)

const (
	payerAccountIndex = iota
	vaultAccountIndex
	systemProgramAccountIndex

	requiredAccountCount
)

// Processor creates vault accounts on behalf of payers. The vault lives at
// the program address derived from the payer, so the processor signs for it
// with seeds rather than a private key.
type Processor struct {
	log           *logrus.Entry
	conf          *conf
	systemProgram ed25519.PublicKey
}

func NewProcessor(systemProgram ed25519.PublicKey, configProvider ConfigProvider) *Processor {
	return &Processor{
		log:           logrus.StandardLogger().WithField("type", "solana/vault/processor"),
		conf:          configProvider(),
		systemProgram: append(ed25519.PublicKey(nil), systemProgram...),
	}
}

func (p *Processor) Process(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	if len(accounts) < requiredAccountCount {
		return runtime.ErrMissingAccount
	}

	payer := accounts[payerAccountIndex]
	vault := accounts[vaultAccountIndex]
	systemProgram := accounts[systemProgramAccountIndex]

	if !payer.IsWritable || !payer.IsSigner {
		ctx.Log("payer %s must be a writable signer", base58.Encode(payer.Address))
		return runtime.ErrInvalidAccountRole
	}

	if !vault.IsWritable {
		ctx.Log("vault %s must be writable", base58.Encode(vault.Address))
		return runtime.ErrInvalidAccountRole
	}
	if !bytes.Equal(vault.Owner, p.systemProgram) {
		ctx.Log("vault %s is already owned by %s", base58.Encode(vault.Address), base58.Encode(vault.Owner))
		return runtime.ErrInvalidAccountOwner
	}

	if !bytes.Equal(systemProgram.Address, p.systemProgram) {
		ctx.Log("unexpected system program %s", base58.Encode(systemProgram.Address))
		return runtime.ErrInvalidProgramReference
	}

	if len(data) < 1 {
		return runtime.ErrInvalidInstructionData
	}
	seeds := VaultSeeds(payer.Address, data[0])

	expected, err := solana.CreateProgramAddress(ctx.ProgramID(), seeds...)
	if err != nil || !bytes.Equal(expected, vault.Address) {
		ctx.Log("vault %s does not match bump %d", base58.Encode(vault.Address), data[0])
		return runtime.ErrSeedMismatch
	}

	lamports := p.conf.lamports.Get(ctx.Context())
	size := p.conf.size.Get(ctx.Context())

	ctx.Log("creating vault %s with %d lamports and %d bytes", base58.Encode(vault.Address), lamports, size)

	create := system.CreateAccount(payer.Address, vault.Address, ctx.ProgramID(), lamports, size)
	create.Program = p.systemProgram
	return ctx.InvokeSigned(create, seeds)
}
