package program

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

type Op string

const (
	OpInitMetadata       Op = "init-metadata"
	OpInitPosition       Op = "init-position"
	OpRefreshReserve     Op = "refresh-reserve"
	OpRefreshPosition    Op = "refresh-position"
	OpDepositLiquidity   Op = "deposit-liquidity"
	OpRedeemCollateral   Op = "redeem-collateral"
	OpDepositCollateral  Op = "deposit-collateral"
	OpWithdrawCollateral Op = "withdraw-collateral"
	OpBorrow             Op = "borrow"
	OpRepay              Op = "repay"
	OpFlashBorrow        Op = "flash-borrow"
	OpFlashRepay         Op = "flash-repay"
	OpInitFarmLink       Op = "init-farm-link"

	OpCloseAccount     Op = "close-account"
	OpTokenTransfer    Op = "token-transfer"
	OpMintTo           Op = "mint-to"
	OpCreateAccount    Op = "create-account"
	OpInitTokenAccount Op = "init-token-account"
	OpCreateATA        Op = "create-ata"
	OpTransfer         Op = "transfer"
)

// Role is one named slot of an instruction's account list.
type Role struct {
	Name string
	solana.AccountMeta
}

func Writable(name string, key solana.PublicKey) Role {
	return Role{Name: name, AccountMeta: solana.AccountMeta{PublicKey: key, IsWritable: true}}
}

func Readonly(name string, key solana.PublicKey) Role {
	return Role{Name: name, AccountMeta: solana.AccountMeta{PublicKey: key}}
}

func Signer(name string, key solana.PublicKey, writable bool) Role {
	return Role{Name: name, AccountMeta: solana.AccountMeta{PublicKey: key, IsSigner: true, IsWritable: writable}}
}

// Instruction keeps the account roles in ABI order. The slice order is what
// goes on the wire.
type Instruction struct {
	Op          Op
	IsProgramID solana.PublicKey
	IsRoles     []Role
	IsData      []byte
}

func (i *Instruction) ProgramID() solana.PublicKey {
	return i.IsProgramID
}

func (i *Instruction) Accounts() []*solana.AccountMeta {
	accounts := make([]*solana.AccountMeta, 0, len(i.IsRoles))
	for k := range i.IsRoles {
		meta := i.IsRoles[k].AccountMeta
		accounts = append(accounts, &meta)
	}
	return accounts
}

func (i *Instruction) Data() ([]byte, error) {
	return i.IsData, nil
}

func (i *Instruction) Role(name string) (solana.PublicKey, bool) {
	for _, role := range i.IsRoles {
		if role.Name == name {
			return role.PublicKey, true
		}
	}
	return solana.PublicKey{}, false
}

func (i *Instruction) RoleNames() []string {
	names := make([]string, 0, len(i.IsRoles))
	for _, role := range i.IsRoles {
		names = append(names, role.Name)
	}
	return names
}

// FirstWritable returns the first writable non-signer account, which is the
// account an error report points at.
func (i *Instruction) FirstWritable() solana.PublicKey {
	for _, role := range i.IsRoles {
		if role.IsWritable && !role.IsSigner {
			return role.PublicKey
		}
	}
	if len(i.IsRoles) > 0 {
		return i.IsRoles[0].PublicKey
	}
	return solana.PublicKey{}
}

// Wrap names the accounts of an instruction built by a solana-go program
// builder so it can travel in a sequence next to klend descriptors.
func Wrap(op Op, ix solana.Instruction, names ...string) (*Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	accounts := ix.Accounts()
	roles := make([]Role, 0, len(accounts))
	for k, meta := range accounts {
		name := "account"
		if k < len(names) {
			name = names[k]
		}
		roles = append(roles, Role{Name: name, AccountMeta: *meta})
	}
	return &Instruction{
		Op:          op,
		IsProgramID: ix.ProgramID(),
		IsRoles:     roles,
		IsData:      data,
	}, nil
}

// Selector is the anchor instruction discriminator: sha256("global:<name>")[:8].
func Selector(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
