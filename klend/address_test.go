package klend

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOwner = solana.MustPublicKeyFromBase58("3x2wQTqKeEdZKRbufU6BTLqxx2kaJDJn71krTYN2J9bU")

func TestPositionAddress(t *testing.T) {
	zero := solana.PublicKey{}
	address, err := PositionAddress(program.KLend, 0, 0, testOwner, MainMarketAddress, zero, zero)
	require.NoError(t, err)
	assert.Equal(t, "429tjZvNNBbTP8fRT1DkaBLECmDgYWEk2svnzT9o2JrV", address.String())

	other, err := PositionAddress(program.KLend, 1, 2, testOwner, MainMarketAddress, zero, zero)
	require.NoError(t, err)
	assert.Equal(t, "6ePjXJtJepk8NvYfJa9Fd7VBykTP9GDLPMuc9TSGy8eG", other.String())
}

func TestDeriveIsDeterministic(t *testing.T) {
	seeds := [][]byte{[]byte("user_meta"), testOwner[:]}
	for _, programID := range []solana.PublicKey{program.KLend, program.KFarm, program.Token} {
		first, firstBump, err := Derive(programID, seeds...)
		require.NoError(t, err)
		second, secondBump, err := Derive(programID, seeds...)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, firstBump, secondBump)
	}
}

func TestDeriveRejectsLongSeed(t *testing.T) {
	_, _, err := Derive(program.KLend, make([]byte, 33))
	assert.Error(t, err)
}

func TestMetadataAndAuthorityAddress(t *testing.T) {
	metadata, err := MetadataAddress(program.KLend, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "42NDs5Bhe7q5geDgXt55EiLXot7syKrGw1mJhNnubY69", metadata.String())

	authority, err := MarketAuthorityAddress(program.KLend, MainMarketAddress)
	require.NoError(t, err)
	assert.Equal(t, MainMarketAuthority, authority)
}

func TestFarmLinkAddress(t *testing.T) {
	position := solana.MustPublicKeyFromBase58("429tjZvNNBbTP8fRT1DkaBLECmDgYWEk2svnzT9o2JrV")
	farm := MainMarket().Reserves[AssetSOL].FarmState
	link, err := FarmLinkAddress(program.KFarm, farm, position)
	require.NoError(t, err)
	assert.Equal(t, "EWj3HyRuLWF1HnFHGrZbRCRsrv8S2p4LoPbCvKd1eMNX", link.String())
}

func TestLookupTableAddress(t *testing.T) {
	address, err := LookupTableAddress(testOwner, 100)
	require.NoError(t, err)
	assert.Equal(t, "5STmzyfbRv3NPUUAzWjxWCz151d6G3JeP4Ldz2iTSDMd", address.String())
}
