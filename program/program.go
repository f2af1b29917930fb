package program

import "github.com/gagliardetto/solana-go"

var (
	KLend           = solana.MustPublicKeyFromBase58("KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD")
	KFarm           = solana.MustPublicKeyFromBase58("FarmsPZpWu9i7Kky8tPN37rs2TpmMrAZrC7S7vJa91Hr")
	ScopePrices     = solana.MustPublicKeyFromBase58("HFn8GnPADiny6XqUoWE8uRPPxb29ikn4yTuPa9MF2fWJ")
	Token           = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedToken = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	System          = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	LookupTable     = solana.MustPublicKeyFromBase58("AddressLookupTab1e1111111111111111111111111")
	SysClock        = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	SysRent         = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	SysInstructions = solana.MustPublicKeyFromBase58("Sysvar1nstructions1111111111111111111111111")
)

var (
	WSOL    = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	USDC    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	JitoSOL = solana.MustPublicKeyFromBase58("J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn")
)

const (
	TokenAccountSize = 165
	MintSize         = 82
	// rent-exempt minimum for a 165 byte token account
	TokenAccountRent = 2039280
	LamportsPerSol   = 1000000000
)
