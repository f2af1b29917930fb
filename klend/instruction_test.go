package klend

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectors(t *testing.T) {
	for name, want := range map[string][8]byte{
		"init_user_metadata":                {117, 169, 176, 69, 197, 23, 15, 162},
		"init_obligation":                   {251, 10, 231, 76, 27, 11, 159, 96},
		"refresh_reserve":                   {2, 218, 138, 235, 79, 201, 25, 102},
		"refresh_obligation":                {33, 132, 147, 228, 151, 192, 72, 89},
		"deposit_reserve_liquidity":         {169, 201, 30, 126, 6, 205, 102, 68},
		"redeem_reserve_collateral":         {234, 117, 181, 125, 185, 142, 220, 29},
		"deposit_obligation_collateral":     {108, 209, 4, 72, 21, 22, 118, 133},
		"withdraw_obligation_collateral":    {37, 116, 205, 103, 243, 192, 92, 198},
		"borrow_obligation_liquidity":       {121, 127, 18, 204, 73, 245, 225, 65},
		"repay_obligation_liquidity":        {145, 178, 13, 225, 76, 240, 147, 72},
		"flash_borrow_reserve_liquidity":    {135, 231, 52, 167, 7, 52, 212, 193},
		"flash_repay_reserve_liquidity":     {185, 117, 0, 203, 96, 245, 180, 186},
		"init_obligation_farms_for_reserve": {136, 63, 15, 186, 211, 152, 168, 164},
	} {
		assert.Equal(t, want, program.Selector(name), name)
	}
}

func TestInstructionBorrowLayout(t *testing.T) {
	m := MainMarket()
	position := solana.MustPublicKeyFromBase58("429tjZvNNBbTP8fRT1DkaBLECmDgYWEk2svnzT9o2JrV")
	destination := solana.NewWallet().PublicKey()
	ix, err := m.InstructionBorrow(position, AssetSOL, testOwner, destination, 20_000_000_000)
	require.NoError(t, err)

	assert.Equal(t, program.KLend, ix.ProgramID())
	assert.Equal(t, []string{
		"owner", "obligation", "lending_market", "lending_market_authority", "borrow_reserve",
		"borrow_reserve_liquidity_mint", "reserve_source_liquidity", "borrow_reserve_liquidity_fee_receiver",
		"user_destination_liquidity", "referrer_token_state", "token_program", "instruction_sysvar_account",
	}, ix.RoleNames())
	accounts := ix.Accounts()
	require.Len(t, accounts, 12)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, position, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsWritable)
	assert.False(t, accounts[2].IsWritable)
	assert.Equal(t, m.Reserves[AssetSOL].Address, accounts[4].PublicKey)
	assert.Equal(t, destination, accounts[8].PublicKey)
	assert.Equal(t, program.KLend, accounts[9].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)
	selector := program.Selector("borrow_obligation_liquidity")
	assert.Equal(t, selector[:], data[:8])
	assert.Equal(t, uint64(20_000_000_000), binary.LittleEndian.Uint64(data[8:]))
}

func TestInstructionMaxAmountPassesThrough(t *testing.T) {
	m := MainMarket()
	position := solana.NewWallet().PublicKey()
	ix, err := m.InstructionWithdrawCollateral(position, AssetJitoSOL, testOwner, solana.NewWallet().PublicKey(), MaxAmount)
	require.NoError(t, err)
	data, _ := ix.Data()
	assert.Equal(t, []byte{255, 255, 255, 255, 255, 255, 255, 255}, data[8:])
}

func TestInstructionInitPositionArgs(t *testing.T) {
	m := MainMarket()
	zero := solana.PublicKey{}
	ix, err := m.InstructionInitPosition(testOwner, testOwner, 1, 2, zero, zero)
	require.NoError(t, err)
	data, _ := ix.Data()
	assert.Equal(t, []byte{1, 2}, data[8:])
	obligation, ok := ix.Role("obligation")
	require.True(t, ok)
	assert.Equal(t, "6ePjXJtJepk8NvYfJa9Fd7VBykTP9GDLPMuc9TSGy8eG", obligation.String())
	metadata, _ := ix.Role("owner_user_metadata")
	assert.Equal(t, "42NDs5Bhe7q5geDgXt55EiLXot7syKrGw1mJhNnubY69", metadata.String())
}

func TestInstructionInitMetadataArgs(t *testing.T) {
	m := MainMarket()
	table := solana.NewWallet().PublicKey()
	ix, err := m.InstructionInitMetadata(testOwner, testOwner, table)
	require.NoError(t, err)
	data, _ := ix.Data()
	assert.Equal(t, table[:], data[8:])
	assert.Len(t, ix.IsRoles, 6)
}

func TestInstructionRefreshReserveOracles(t *testing.T) {
	m := MainMarket()
	ix, err := m.InstructionRefreshReserve(AssetJitoSOL)
	require.NoError(t, err)
	accounts := ix.Accounts()
	require.Len(t, accounts, 6)
	assert.Equal(t, m.Reserves[AssetJitoSOL].Address, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsWritable)
	for _, oracle := range accounts[2:5] {
		assert.Equal(t, program.KLend, oracle.PublicKey)
	}
	assert.Equal(t, MainScopePrices, accounts[5].PublicKey)
	data, _ := ix.Data()
	assert.Len(t, data, 8)
}

func TestInstructionRefreshPositionOrder(t *testing.T) {
	m := MainMarket()
	position := solana.NewWallet().PublicKey()
	ix, err := m.InstructionRefreshPosition(position, PositionState{
		Deposits: []Asset{AssetJitoSOL, AssetUSDC},
		Borrows:  []Asset{AssetSOL},
	})
	require.NoError(t, err)
	accounts := ix.Accounts()
	require.Len(t, accounts, 5)
	assert.Equal(t, m.Address, accounts[0].PublicKey)
	assert.Equal(t, position, accounts[1].PublicKey)
	assert.Equal(t, m.Reserves[AssetJitoSOL].Address, accounts[2].PublicKey)
	assert.Equal(t, m.Reserves[AssetUSDC].Address, accounts[3].PublicKey)
	assert.Equal(t, m.Reserves[AssetSOL].Address, accounts[4].PublicKey)

	empty, err := m.InstructionRefreshPosition(position, PositionState{})
	require.NoError(t, err)
	assert.Len(t, empty.Accounts(), 2)
}

func TestInstructionFlashRepayIndex(t *testing.T) {
	m := MainMarket()
	holding := solana.NewWallet().PublicKey()
	ix, err := m.InstructionFlashRepay(AssetSOL, testOwner, holding, 8_000_000_000_000, 3)
	require.NoError(t, err)
	data, _ := ix.Data()
	require.Len(t, data, 17)
	assert.Equal(t, uint64(8_000_000_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, byte(3), data[16])
	source, _ := ix.Role("user_source_liquidity")
	assert.Equal(t, holding, source)
}

func TestInstructionMissingReserveAccount(t *testing.T) {
	m := MainMarket()
	position := solana.NewWallet().PublicKey()

	_, err := m.InstructionInitFarmLink(testOwner, testOwner, position, AssetJitoSOL, 0)
	assert.ErrorIs(t, err, ErrMissingAccount)

	_, err = m.InstructionDepositLiquidity(AssetUSDC, testOwner, position, position, 1)
	assert.ErrorIs(t, err, ErrMissingAccount)

	_, err = m.InstructionBorrow(position, Asset(42), testOwner, position, 1)
	assert.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestInstructionInitFarmLink(t *testing.T) {
	m := MainMarket()
	position := solana.MustPublicKeyFromBase58("429tjZvNNBbTP8fRT1DkaBLECmDgYWEk2svnzT9o2JrV")
	ix, err := m.InstructionInitFarmLink(testOwner, testOwner, position, AssetSOL, 0)
	require.NoError(t, err)
	link, ok := ix.Role("obligation_farm")
	require.True(t, ok)
	assert.Equal(t, "EWj3HyRuLWF1HnFHGrZbRCRsrv8S2p4LoPbCvKd1eMNX", link.String())
	data, _ := ix.Data()
	assert.Equal(t, []byte{0}, data[8:])
}
