package klend

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/program"
	"github.com/near/borsh-go"
)

// MaxAmount asks the lending program to use the whole balance. It is passed
// through as is.
const MaxAmount uint64 = math.MaxUint64

type amountArgs struct {
	Amount uint64
}

type metadataArgs struct {
	LookupTable solana.PublicKey
}

type positionArgs struct {
	Tag uint8
	ID  uint8
}

type flashRepayArgs struct {
	Amount                 uint64
	BorrowInstructionIndex uint8
}

type farmArgs struct {
	Mode uint8
}

func payload(name string, args interface{}) ([]byte, error) {
	selector := program.Selector(name)
	data := append([]byte{}, selector[:]...)
	if args == nil {
		return data, nil
	}
	raw, err := borsh.Serialize(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", name, err)
	}
	return append(data, raw...), nil
}

func (m *Market) instruction(op program.Op, name string, args interface{}, roles ...program.Role) (*program.Instruction, error) {
	data, err := payload(name, args)
	if err != nil {
		return nil, err
	}
	return &program.Instruction{
		Op:          op,
		IsProgramID: m.Program,
		IsRoles:     roles,
		IsData:      data,
	}, nil
}

func (m *Market) InstructionInitMetadata(owner, feePayer, lookupTable solana.PublicKey) (*program.Instruction, error) {
	metadata, err := MetadataAddress(m.Program, owner)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpInitMetadata, "init_user_metadata", metadataArgs{LookupTable: lookupTable},
		program.Signer("owner", owner, true),
		program.Signer("fee_payer", feePayer, true),
		program.Writable("user_metadata", metadata),
		program.Readonly("referrer_user_metadata", m.Program),
		program.Readonly("rent", program.SysRent),
		program.Readonly("system_program", program.System),
	)
}

func (m *Market) InstructionInitPosition(owner, feePayer solana.PublicKey, tag, id uint8, seed1, seed2 solana.PublicKey) (*program.Instruction, error) {
	position, err := PositionAddress(m.Program, tag, id, owner, m.Address, seed1, seed2)
	if err != nil {
		return nil, err
	}
	metadata, err := MetadataAddress(m.Program, owner)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpInitPosition, "init_obligation", positionArgs{Tag: tag, ID: id},
		program.Signer("obligation_owner", owner, true),
		program.Signer("fee_payer", feePayer, true),
		program.Writable("obligation", position),
		program.Readonly("lending_market", m.Address),
		program.Readonly("seed1_account", seed1),
		program.Readonly("seed2_account", seed2),
		program.Readonly("owner_user_metadata", metadata),
		program.Readonly("rent", program.SysRent),
		program.Readonly("system_program", program.System),
	)
}

// InstructionRefreshReserve fills the unused oracle slots with the program id,
// which is how anchor encodes an absent optional account.
func (m *Market) InstructionRefreshReserve(asset Asset) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpRefreshReserve, "refresh_reserve", nil,
		program.Writable("reserve", reserve.Address),
		program.Readonly("lending_market", m.Address),
		program.Readonly("pyth_oracle", m.Program),
		program.Readonly("switchboard_price_oracle", m.Program),
		program.Readonly("switchboard_twap_oracle", m.Program),
		program.Readonly("scope_prices", m.ScopePrices),
	)
}

// InstructionRefreshPosition lists deposit reserves then borrow reserves, in
// the order the position stores them.
func (m *Market) InstructionRefreshPosition(position solana.PublicKey, state PositionState) (*program.Instruction, error) {
	roles := []program.Role{
		program.Readonly("lending_market", m.Address),
		program.Writable("obligation", position),
	}
	for _, asset := range append(append([]Asset{}, state.Deposits...), state.Borrows...) {
		reserve, err := m.Reserve(asset)
		if err != nil {
			return nil, err
		}
		roles = append(roles, program.Writable("reserve", reserve.Address))
	}
	return m.instruction(program.OpRefreshPosition, "refresh_obligation", nil, roles...)
}

func (m *Market) InstructionDepositLiquidity(asset Asset, owner, source, destination solana.PublicKey, amount uint64) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	collateralMint, err := reserve.need("collateral mint", reserve.CollateralMint)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpDepositLiquidity, "deposit_reserve_liquidity", amountArgs{Amount: amount},
		program.Signer("owner", owner, true),
		program.Writable("reserve", reserve.Address),
		program.Readonly("lending_market", m.Address),
		program.Writable("lending_market_authority", m.Authority),
		program.Writable("reserve_liquidity_mint", reserve.LiquidityMint),
		program.Writable("reserve_liquidity_supply", reserve.LiquiditySupply),
		program.Writable("reserve_collateral_mint", collateralMint),
		program.Writable("user_source_liquidity", source),
		program.Writable("user_destination_collateral", destination),
		program.Readonly("collateral_token_program", program.Token),
		program.Readonly("liquidity_token_program", program.Token),
		program.Readonly("instruction_sysvar_account", program.SysInstructions),
	)
}

func (m *Market) InstructionRedeemCollateral(asset Asset, owner, source, destination solana.PublicKey, amount uint64) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	collateralMint, err := reserve.need("collateral mint", reserve.CollateralMint)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpRedeemCollateral, "redeem_reserve_collateral", amountArgs{Amount: amount},
		program.Signer("owner", owner, false),
		program.Readonly("lending_market", m.Address),
		program.Writable("reserve", reserve.Address),
		program.Readonly("lending_market_authority", m.Authority),
		program.Readonly("reserve_liquidity_mint", reserve.LiquidityMint),
		program.Writable("reserve_collateral_mint", collateralMint),
		program.Writable("reserve_liquidity_supply", reserve.LiquiditySupply),
		program.Writable("user_source_collateral", source),
		program.Writable("user_destination_liquidity", destination),
		program.Readonly("collateral_token_program", program.Token),
		program.Readonly("liquidity_token_program", program.Token),
		program.Readonly("instruction_sysvar_account", program.SysInstructions),
	)
}

func (m *Market) InstructionDepositCollateral(position solana.PublicKey, asset Asset, owner, source solana.PublicKey, amount uint64) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	collateralSupply, err := reserve.need("collateral supply", reserve.CollateralSupply)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpDepositCollateral, "deposit_obligation_collateral", amountArgs{Amount: amount},
		program.Signer("owner", owner, true),
		program.Writable("obligation", position),
		program.Readonly("lending_market", m.Address),
		program.Writable("deposit_reserve", reserve.Address),
		program.Writable("reserve_destination_collateral", collateralSupply),
		program.Writable("user_source_collateral", source),
		program.Readonly("token_program", program.Token),
		program.Readonly("instruction_sysvar_account", program.SysInstructions),
	)
}

func (m *Market) InstructionWithdrawCollateral(position solana.PublicKey, asset Asset, owner, destination solana.PublicKey, amount uint64) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	collateralSupply, err := reserve.need("collateral supply", reserve.CollateralSupply)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpWithdrawCollateral, "withdraw_obligation_collateral", amountArgs{Amount: amount},
		program.Signer("owner", owner, true),
		program.Writable("obligation", position),
		program.Readonly("lending_market", m.Address),
		program.Readonly("lending_market_authority", m.Authority),
		program.Writable("withdraw_reserve", reserve.Address),
		program.Writable("reserve_source_collateral", collateralSupply),
		program.Writable("user_destination_collateral", destination),
		program.Readonly("token_program", program.Token),
		program.Readonly("instruction_sysvar_account", program.SysInstructions),
	)
}

func (m *Market) InstructionBorrow(position solana.PublicKey, asset Asset, owner, destination solana.PublicKey, amount uint64) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	feeVault, err := reserve.need("fee vault", reserve.LiquidityFeeVault)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpBorrow, "borrow_obligation_liquidity", amountArgs{Amount: amount},
		program.Signer("owner", owner, true),
		program.Writable("obligation", position),
		program.Readonly("lending_market", m.Address),
		program.Readonly("lending_market_authority", m.Authority),
		program.Writable("borrow_reserve", reserve.Address),
		program.Writable("borrow_reserve_liquidity_mint", reserve.LiquidityMint),
		program.Writable("reserve_source_liquidity", reserve.LiquiditySupply),
		program.Writable("borrow_reserve_liquidity_fee_receiver", feeVault),
		program.Writable("user_destination_liquidity", destination),
		program.Writable("referrer_token_state", m.Program),
		program.Readonly("token_program", program.Token),
		program.Readonly("instruction_sysvar_account", program.SysInstructions),
	)
}

func (m *Market) InstructionRepay(position solana.PublicKey, asset Asset, owner, source solana.PublicKey, amount uint64) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpRepay, "repay_obligation_liquidity", amountArgs{Amount: amount},
		program.Signer("owner", owner, false),
		program.Writable("obligation", position),
		program.Readonly("lending_market", m.Address),
		program.Writable("repay_reserve", reserve.Address),
		program.Readonly("reserve_liquidity_mint", reserve.LiquidityMint),
		program.Writable("reserve_destination_liquidity", reserve.LiquiditySupply),
		program.Writable("user_source_liquidity", source),
		program.Readonly("token_program", program.Token),
		program.Readonly("instruction_sysvar_account", program.SysInstructions),
	)
}

func (m *Market) InstructionFlashBorrow(asset Asset, owner, destination solana.PublicKey, amount uint64) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	feeVault, err := reserve.need("fee vault", reserve.LiquidityFeeVault)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpFlashBorrow, "flash_borrow_reserve_liquidity", amountArgs{Amount: amount},
		program.Signer("user_transfer_authority", owner, false),
		program.Readonly("lending_market_authority", m.Authority),
		program.Readonly("lending_market", m.Address),
		program.Writable("reserve", reserve.Address),
		program.Readonly("reserve_liquidity_mint", reserve.LiquidityMint),
		program.Writable("reserve_source_liquidity", reserve.LiquiditySupply),
		program.Writable("user_destination_liquidity", destination),
		program.Writable("reserve_liquidity_fee_receiver", feeVault),
		program.Readonly("referrer_token_state", m.Program),
		program.Readonly("referrer_account", m.Program),
		program.Readonly("sysvar_info", program.SysInstructions),
		program.Readonly("token_program", program.Token),
	)
}

// InstructionFlashRepay carries borrowIndex, the absolute position of the
// matching flash borrow inside the transaction.
func (m *Market) InstructionFlashRepay(asset Asset, owner, source solana.PublicKey, amount uint64, borrowIndex uint8) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	feeVault, err := reserve.need("fee vault", reserve.LiquidityFeeVault)
	if err != nil {
		return nil, err
	}
	args := flashRepayArgs{Amount: amount, BorrowInstructionIndex: borrowIndex}
	return m.instruction(program.OpFlashRepay, "flash_repay_reserve_liquidity", args,
		program.Signer("user_transfer_authority", owner, false),
		program.Readonly("lending_market_authority", m.Authority),
		program.Readonly("lending_market", m.Address),
		program.Writable("reserve", reserve.Address),
		program.Readonly("reserve_liquidity_mint", reserve.LiquidityMint),
		program.Writable("reserve_destination_liquidity", reserve.LiquiditySupply),
		program.Writable("user_source_liquidity", source),
		program.Writable("reserve_liquidity_fee_receiver", feeVault),
		program.Readonly("referrer_token_state", m.Program),
		program.Readonly("referrer_account", m.Program),
		program.Readonly("sysvar_info", program.SysInstructions),
		program.Readonly("token_program", program.Token),
	)
}

func (m *Market) InstructionInitFarmLink(payer, owner, position solana.PublicKey, asset Asset, mode uint8) (*program.Instruction, error) {
	reserve, err := m.Reserve(asset)
	if err != nil {
		return nil, err
	}
	farmState, err := reserve.need("farm state", reserve.FarmState)
	if err != nil {
		return nil, err
	}
	link, err := FarmLinkAddress(m.FarmsProgram, farmState, position)
	if err != nil {
		return nil, err
	}
	return m.instruction(program.OpInitFarmLink, "init_obligation_farms_for_reserve", farmArgs{Mode: mode},
		program.Signer("payer", payer, true),
		program.Writable("owner", owner),
		program.Writable("obligation", position),
		program.Writable("lending_market_authority", m.Authority),
		program.Writable("reserve", reserve.Address),
		program.Writable("reserve_farm_state", farmState),
		program.Writable("obligation_farm", link),
		program.Readonly("lending_market", m.Address),
		program.Writable("farms_program", m.FarmsProgram),
		program.Readonly("rent", program.SysRent),
		program.Readonly("system_program", program.System),
	)
}
