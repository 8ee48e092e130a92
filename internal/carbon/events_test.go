package carbon

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintedLog(t *testing.T, addr common.Address, id int64, to common.Address) *types.Log {
	t.Helper()
	ev := ParsedABI.Events[EventMinted]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(75), "Mangrove Restoration")
	require.NoError(t, err)
	return &types.Log{
		Address: addr,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(id)), common.BytesToHash(to.Bytes())},
		Data:    data,
	}
}

func TestParseMintedLog(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	to := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	ev, err := ParseLog(mintedLog(t, addr, 7, to))
	require.NoError(t, err)
	assert.Equal(t, EventMinted, ev.Name)
	assert.Equal(t, int64(7), ev.TokenID.Int64())
	assert.Equal(t, to, ev.To)
	assert.Equal(t, int64(75), ev.CarbonAmount.Int64())
	assert.Equal(t, "Mangrove Restoration", ev.ProjectName)
}

func TestMintedTokenIDSkipsForeignLogs(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	other := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	to := common.HexToAddress("0x01")
	r := &types.Receipt{Logs: []*types.Log{
		mintedLog(t, other, 99, to),
		{Address: addr, Topics: []common.Hash{common.HexToHash("0xdead")}},
		mintedLog(t, addr, 3, to),
	}}
	id, err := MintedTokenID(r, addr)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id.Int64())

	_, err = MintedTokenID(&types.Receipt{}, addr)
	assert.ErrorIs(t, err, ErrNoMintEvent)
}

func TestParseLogTopicMismatch(t *testing.T) {
	ev := ParsedABI.Events[EventSold]
	_, err := ParseLog(&types.Log{Topics: []common.Hash{ev.ID, common.BigToHash(big.NewInt(1))}})
	assert.Error(t, err)
	_, err = ParseLog(&types.Log{})
	assert.Error(t, err)
}

func TestABIHasEveryMethod(t *testing.T) {
	for _, name := range []string{
		MethodMint, MethodList, MethodUnlist, MethodBuy, MethodRetire, MethodAddVerifier,
		MethodTokensByOwner, MethodTokensForSale, MethodGetCredit, MethodTokenURI,
		MethodOwnerOf, MethodBalanceOf, MethodIsVerifier, MethodContractOwner,
	} {
		_, ok := ParsedABI.Methods[name]
		assert.True(t, ok, name)
	}
	assert.True(t, ParsedABI.Methods[MethodBuy].IsPayable())
	assert.True(t, ParsedABI.Methods[MethodGetCredit].IsConstant())
}
