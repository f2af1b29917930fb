package klend

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/program"
)

var (
	seedMetadata  = []byte("user_meta")
	seedAuthority = []byte("lma")
	seedFarmUser  = []byte("user")
)

// Derive finds the program address for seeds under programID. It never checks
// that the account exists.
func Derive(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	address, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive under %s: %w", programID, err)
	}
	return address, bump, nil
}

func PositionAddress(programID solana.PublicKey, tag, id uint8, owner, market, seed1, seed2 solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := Derive(programID, []byte{tag}, []byte{id}, owner[:], market[:], seed1[:], seed2[:])
	return address, err
}

func MetadataAddress(programID, owner solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := Derive(programID, seedMetadata, owner[:])
	return address, err
}

func FarmLinkAddress(farmsProgram, farmState, position solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := Derive(farmsProgram, seedFarmUser, farmState[:], position[:])
	return address, err
}

func MarketAuthorityAddress(programID, market solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := Derive(programID, seedAuthority, market[:])
	return address, err
}

// LookupTableAddress is the address a lookup table created by authority at
// recentSlot will have.
func LookupTableAddress(authority solana.PublicKey, recentSlot uint64) (solana.PublicKey, error) {
	slot := make([]byte, 8)
	binary.LittleEndian.PutUint64(slot, recentSlot)
	address, _, err := Derive(program.LookupTable, authority[:], slot)
	return address, err
}

func TokenAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("associated token address of %s for %s: %w", wallet, mint, err)
	}
	return address, nil
}
