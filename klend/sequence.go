package klend

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/klend-harness/program"
)

// PositionState is the ordered list of reserves a position holds deposits
// and borrows in. The lending program expects refresh-position to list them
// in this order.
type PositionState struct {
	Deposits []Asset
	Borrows  []Asset
}

func (s PositionState) Clone() PositionState {
	return PositionState{
		Deposits: append([]Asset{}, s.Deposits...),
		Borrows:  append([]Asset{}, s.Borrows...),
	}
}

func (s PositionState) Empty() bool {
	return len(s.Deposits) == 0 && len(s.Borrows) == 0
}

func (s PositionState) withDeposit(asset Asset) PositionState {
	next := s.Clone()
	if !containsAsset(next.Deposits, asset) {
		next.Deposits = append(next.Deposits, asset)
	}
	return next
}

func (s PositionState) withoutDeposit(asset Asset) PositionState {
	next := s.Clone()
	next.Deposits = removeAsset(next.Deposits, asset)
	return next
}

func (s PositionState) withBorrow(asset Asset) PositionState {
	next := s.Clone()
	if !containsAsset(next.Borrows, asset) {
		next.Borrows = append(next.Borrows, asset)
	}
	return next
}

func (s PositionState) withoutBorrow(asset Asset) PositionState {
	next := s.Clone()
	next.Borrows = removeAsset(next.Borrows, asset)
	return next
}

func containsAsset(list []Asset, asset Asset) bool {
	for _, a := range list {
		if a == asset {
			return true
		}
	}
	return false
}

func removeAsset(list []Asset, asset Asset) []Asset {
	out := list[:0]
	for _, a := range list {
		if a != asset {
			out = append(out, a)
		}
	}
	return out
}

// Position is an obligation account of the lending program.
type Position struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Market  solana.PublicKey
	Tag     uint8
	ID      uint8
	Seed1   solana.PublicKey
	Seed2   solana.PublicKey
	State   PositionState
}

// Apply moves the position to the state a landed sequence projected.
func (p *Position) Apply(seq *Sequence) {
	if seq == nil || !seq.Position.Equals(p.Address) {
		return
	}
	p.State = seq.State.Clone()
}

// Sequence is the ordered instruction list of one logical action. It is not
// mutated once returned.
type Sequence struct {
	Goal     program.Op
	Asset    Asset
	Position solana.PublicKey
	Steps    []*program.Instruction
	Effects  []LineItem
	State    PositionState
}

func (s *Sequence) Instructions() []solana.Instruction {
	ins := make([]solana.Instruction, 0, len(s.Steps))
	for _, step := range s.Steps {
		ins = append(ins, step)
	}
	return ins
}

func (s *Sequence) Ops() []program.Op {
	ops := make([]program.Op, 0, len(s.Steps))
	for _, step := range s.Steps {
		ops = append(ops, step.Op)
	}
	return ops
}

// GoalInstruction returns the step carrying the sequence's goal op.
func (s *Sequence) GoalInstruction() *program.Instruction {
	for _, step := range s.Steps {
		if step.Op == s.Goal {
			return step
		}
	}
	return nil
}

type Sequencer struct {
	market *Market
	owner  solana.PublicKey
}

func NewSequencer(market *Market, owner solana.PublicKey) *Sequencer {
	return &Sequencer{
		market: market,
		owner:  owner,
	}
}

func (s *Sequencer) Market() *Market {
	return s.market
}

func (s *Sequencer) Owner() solana.PublicKey {
	return s.owner
}

func (s *Sequencer) NewPosition(tag, id uint8, seed1, seed2 solana.PublicKey) (*Position, error) {
	address, err := PositionAddress(s.market.Program, tag, id, s.owner, s.market.Address, seed1, seed2)
	if err != nil {
		return nil, err
	}
	return &Position{
		Address: address,
		Owner:   s.owner,
		Market:  s.market.Address,
		Tag:     tag,
		ID:      id,
		Seed1:   seed1,
		Seed2:   seed2,
	}, nil
}

// refreshes returns the reserve refreshes for the position's deposits and the
// collateral reserve, then its borrows and the debt reserve, followed by the
// position refresh. A zero asset means the goal touches no reserve on that
// side.
func (s *Sequencer) refreshes(pos *Position, collateral, debt Asset) ([]*program.Instruction, error) {
	seen := make(map[Asset]bool)
	assets := make([]Asset, 0)
	add := func(asset Asset) {
		if asset == 0 || seen[asset] {
			return
		}
		seen[asset] = true
		assets = append(assets, asset)
	}
	for _, asset := range pos.State.Deposits {
		add(asset)
	}
	add(collateral)
	for _, asset := range pos.State.Borrows {
		add(asset)
	}
	add(debt)
	steps := make([]*program.Instruction, 0, len(assets)+1)
	for _, asset := range assets {
		ix, err := s.market.InstructionRefreshReserve(asset)
		if err != nil {
			return nil, err
		}
		steps = append(steps, ix)
	}
	ix, err := s.market.InstructionRefreshPosition(pos.Address, pos.State)
	if err != nil {
		return nil, err
	}
	return append(steps, ix), nil
}

func (s *Sequencer) closeAccount(account solana.PublicKey) (*program.Instruction, error) {
	ix, err := token.NewCloseAccountInstruction(account, s.owner, s.owner, []solana.PublicKey{}).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("close account %s: %w", account, err)
	}
	return program.Wrap(program.OpCloseAccount, ix, "account", "destination", "owner")
}

// finish appends the wrapper close for native SOL and checks the ordering
// rule before the sequence leaves the sequencer.
func (s *Sequencer) finish(seq *Sequence, wrapper solana.PublicKey) (*Sequence, error) {
	if seq.Asset.Native() && !wrapper.IsZero() {
		ix, err := s.closeAccount(wrapper)
		if err != nil {
			return nil, err
		}
		seq.Steps = append(seq.Steps, ix)
	}
	if err := CheckOrdering(seq.Steps); err != nil {
		return nil, err
	}
	return seq, nil
}

func (s *Sequencer) InitMetadata(lookupTable solana.PublicKey) (*Sequence, error) {
	ix, err := s.market.InstructionInitMetadata(s.owner, s.owner, lookupTable)
	if err != nil {
		return nil, err
	}
	return &Sequence{Goal: program.OpInitMetadata, Steps: []*program.Instruction{ix}}, nil
}

func (s *Sequencer) InitPosition(tag, id uint8, seed1, seed2 solana.PublicKey) (*Position, *Sequence, error) {
	pos, err := s.NewPosition(tag, id, seed1, seed2)
	if err != nil {
		return nil, nil, err
	}
	ix, err := s.market.InstructionInitPosition(s.owner, s.owner, tag, id, seed1, seed2)
	if err != nil {
		return nil, nil, err
	}
	return pos, &Sequence{
		Goal:     program.OpInitPosition,
		Position: pos.Address,
		Steps:    []*program.Instruction{ix},
	}, nil
}

func (s *Sequencer) RefreshReserve(asset Asset) (*Sequence, error) {
	ix, err := s.market.InstructionRefreshReserve(asset)
	if err != nil {
		return nil, err
	}
	return &Sequence{Goal: program.OpRefreshReserve, Asset: asset, Steps: []*program.Instruction{ix}}, nil
}

func (s *Sequencer) RefreshPosition(pos *Position) (*Sequence, error) {
	steps, err := s.refreshes(pos, 0, 0)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		Goal:     program.OpRefreshPosition,
		Position: pos.Address,
		Steps:    steps,
		State:    pos.State.Clone(),
	}, nil
}

// DepositLiquidity mints reserve collateral from liquidity. For SOL the
// source is a funded wrapper account that is closed afterwards.
func (s *Sequencer) DepositLiquidity(asset Asset, source, destination solana.PublicKey, amount uint64) (*Sequence, error) {
	refresh, err := s.market.InstructionRefreshReserve(asset)
	if err != nil {
		return nil, err
	}
	ix, err := s.market.InstructionDepositLiquidity(asset, s.owner, source, destination, amount)
	if err != nil {
		return nil, err
	}
	return s.finish(&Sequence{
		Goal:  program.OpDepositLiquidity,
		Asset: asset,
		Steps: []*program.Instruction{refresh, ix},
	}, source)
}

func (s *Sequencer) RedeemCollateral(asset Asset, source, destination solana.PublicKey, amount uint64) (*Sequence, error) {
	refresh, err := s.market.InstructionRefreshReserve(asset)
	if err != nil {
		return nil, err
	}
	ix, err := s.market.InstructionRedeemCollateral(asset, s.owner, source, destination, amount)
	if err != nil {
		return nil, err
	}
	return s.finish(&Sequence{
		Goal:  program.OpRedeemCollateral,
		Asset: asset,
		Steps: []*program.Instruction{refresh, ix},
	}, destination)
}

func (s *Sequencer) DepositCollateral(pos *Position, asset Asset, source solana.PublicKey, amount uint64) (*Sequence, error) {
	if _, err := s.market.Reserve(asset); err != nil {
		return nil, err
	}
	steps, err := s.refreshes(pos, asset, 0)
	if err != nil {
		return nil, err
	}
	ix, err := s.market.InstructionDepositCollateral(pos.Address, asset, s.owner, source, amount)
	if err != nil {
		return nil, err
	}
	return s.finish(&Sequence{
		Goal:     program.OpDepositCollateral,
		Asset:    asset,
		Position: pos.Address,
		Steps:    append(steps, ix),
		Effects:  []LineItem{{Asset: asset, Leg: LegCollateral, Amount: amount, Credit: true}},
		State:    pos.State.withDeposit(asset),
	}, solana.PublicKey{})
}

// WithdrawCollateral takes collateral tokens out of the position. MaxAmount
// withdraws everything and drops the reserve from the projected state.
func (s *Sequencer) WithdrawCollateral(pos *Position, asset Asset, destination solana.PublicKey, amount uint64) (*Sequence, error) {
	if _, err := s.market.Reserve(asset); err != nil {
		return nil, err
	}
	steps, err := s.refreshes(pos, asset, 0)
	if err != nil {
		return nil, err
	}
	ix, err := s.market.InstructionWithdrawCollateral(pos.Address, asset, s.owner, destination, amount)
	if err != nil {
		return nil, err
	}
	state := pos.State.Clone()
	if amount == MaxAmount {
		state = state.withoutDeposit(asset)
	}
	return s.finish(&Sequence{
		Goal:     program.OpWithdrawCollateral,
		Asset:    asset,
		Position: pos.Address,
		Steps:    append(steps, ix),
		Effects:  []LineItem{{Asset: asset, Leg: LegCollateral, Amount: amount}},
		State:    state,
	}, solana.PublicKey{})
}

// Borrow draws liquidity against the position into destination. A SOL
// destination is closed last so the lamports land in the owner's wallet.
func (s *Sequencer) Borrow(pos *Position, asset Asset, destination solana.PublicKey, amount uint64) (*Sequence, error) {
	return s.borrow(pos, asset, destination, amount, true)
}

func (s *Sequencer) borrow(pos *Position, asset Asset, destination solana.PublicKey, amount uint64, unwrap bool) (*Sequence, error) {
	if _, err := s.market.Reserve(asset); err != nil {
		return nil, err
	}
	steps, err := s.refreshes(pos, 0, asset)
	if err != nil {
		return nil, err
	}
	ix, err := s.market.InstructionBorrow(pos.Address, asset, s.owner, destination, amount)
	if err != nil {
		return nil, err
	}
	wrapper := solana.PublicKey{}
	if unwrap {
		wrapper = destination
	}
	return s.finish(&Sequence{
		Goal:     program.OpBorrow,
		Asset:    asset,
		Position: pos.Address,
		Steps:    append(steps, ix),
		Effects:  []LineItem{{Asset: asset, Leg: LegDebt, Amount: amount, Credit: true}},
		State:    pos.State.withBorrow(asset),
	}, wrapper)
}

func (s *Sequencer) Repay(pos *Position, asset Asset, source solana.PublicKey, amount uint64) (*Sequence, error) {
	if _, err := s.market.Reserve(asset); err != nil {
		return nil, err
	}
	steps, err := s.refreshes(pos, 0, asset)
	if err != nil {
		return nil, err
	}
	ix, err := s.market.InstructionRepay(pos.Address, asset, s.owner, source, amount)
	if err != nil {
		return nil, err
	}
	state := pos.State.Clone()
	if amount == MaxAmount {
		state = state.withoutBorrow(asset)
	}
	return s.finish(&Sequence{
		Goal:     program.OpRepay,
		Asset:    asset,
		Position: pos.Address,
		Steps:    append(steps, ix),
		Effects:  []LineItem{{Asset: asset, Leg: LegDebt, Amount: amount}},
		State:    state,
	}, source)
}

func (s *Sequencer) FlashBorrow(asset Asset, destination solana.PublicKey, amount uint64) (*Sequence, error) {
	ix, err := s.market.InstructionFlashBorrow(asset, s.owner, destination, amount)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		Goal:    program.OpFlashBorrow,
		Asset:   asset,
		Steps:   []*program.Instruction{ix},
		Effects: []LineItem{{Asset: asset, Leg: LegFlash, Amount: amount, Credit: true}},
	}, nil
}

func (s *Sequencer) FlashRepay(asset Asset, source solana.PublicKey, amount uint64, borrowIndex uint8) (*Sequence, error) {
	ix, err := s.market.InstructionFlashRepay(asset, s.owner, source, amount, borrowIndex)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		Goal:    program.OpFlashRepay,
		Asset:   asset,
		Steps:   []*program.Instruction{ix},
		Effects: []LineItem{{Asset: asset, Leg: LegFlash, Amount: amount}},
	}, nil
}

func (s *Sequencer) InitFarmLink(pos *Position, asset Asset, mode uint8) (*Sequence, error) {
	ix, err := s.market.InstructionInitFarmLink(s.owner, s.owner, pos.Address, asset, mode)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		Goal:     program.OpInitFarmLink,
		Asset:    asset,
		Position: pos.Address,
		Steps:    []*program.Instruction{ix},
		State:    pos.State.Clone(),
	}, nil
}

var valuationReserveRole = map[program.Op]string{
	program.OpDepositCollateral:  "deposit_reserve",
	program.OpWithdrawCollateral: "withdraw_reserve",
	program.OpBorrow:             "borrow_reserve",
	program.OpRepay:              "repay_reserve",
}

// CheckOrdering verifies that every position operation reads only reserves
// refreshed earlier in steps, and that the position was refreshed after the
// last of those reserve refreshes and before the operation.
func CheckOrdering(steps []*program.Instruction) error {
	refreshed := make(map[solana.PublicKey]int)
	positionRefresh := make(map[solana.PublicKey]int)
	lastReserveRefresh := -1
	for i, step := range steps {
		switch step.Op {
		case program.OpRefreshReserve:
			reserve, _ := step.Role("reserve")
			refreshed[reserve] = i
			lastReserveRefresh = i
		case program.OpRefreshPosition:
			obligation, _ := step.Role("obligation")
			for _, role := range step.IsRoles {
				if role.Name != "reserve" {
					continue
				}
				if _, ok := refreshed[role.PublicKey]; !ok {
					return fmt.Errorf("%w: step %d refreshes position %s before reserve %s", ErrOrdering, i, obligation, role.PublicKey)
				}
			}
			positionRefresh[obligation] = i
		default:
			roleName, ok := valuationReserveRole[step.Op]
			if !ok {
				continue
			}
			reserve, _ := step.Role(roleName)
			obligation, _ := step.Role("obligation")
			if _, ok := refreshed[reserve]; !ok {
				return fmt.Errorf("%w: step %d (%s) reads reserve %s without a refresh", ErrOrdering, i, step.Op, reserve)
			}
			at, ok := positionRefresh[obligation]
			if !ok {
				return fmt.Errorf("%w: step %d (%s) uses position %s without a refresh", ErrOrdering, i, step.Op, obligation)
			}
			if at < lastReserveRefresh {
				return fmt.Errorf("%w: step %d (%s) position %s refreshed at %d before reserve refresh at %d",
					ErrOrdering, i, step.Op, obligation, at, lastReserveRefresh)
			}
		}
	}
	return nil
}
