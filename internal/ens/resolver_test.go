package ens

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers eth_call by (target, calldata).
type fakeCaller struct {
	answers map[string][]byte
	err     error
}

func (f *fakeCaller) set(to common.Address, sel []byte, node common.Hash, out []byte) {
	if f.answers == nil {
		f.answers = map[string][]byte{}
	}
	f.answers[key(to, append(append([]byte{}, sel...), node.Bytes()...))] = out
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.answers[key(*msg.To, msg.Data)], nil
}

func key(to common.Address, data []byte) string { return to.Hex() + common.Bytes2Hex(data) }

func word(a common.Address) []byte { return common.LeftPadBytes(a.Bytes(), 32) }

func abiString(s string) []byte {
	var b bytes.Buffer
	b.Write(common.LeftPadBytes(big.NewInt(32).Bytes(), 32))
	b.Write(common.LeftPadBytes(big.NewInt(int64(len(s))).Bytes(), 32))
	b.Write(common.RightPadBytes([]byte(s), (len(s)+31)/32*32))
	return b.Bytes()
}

var (
	publicResolver = common.HexToAddress("0x4976fb03C32e5B8cfe2b6cCB31c09Ba78EBaBa41")
	vitalik        = common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")
)

func TestNamehashVectors(t *testing.T) {
	assert.Equal(t, common.Hash{}, Namehash(""))
	assert.Equal(t, common.HexToHash("0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae"), Namehash("eth"))
	assert.Equal(t, common.HexToHash("0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f"), Namehash("foo.eth"))
	assert.NotEqual(t, Namehash("test.eth"), Namehash("sub.test.eth"))
}

func TestIsName(t *testing.T) {
	assert.True(t, IsName("alice.eth"))
	assert.True(t, IsName("verifier.carbon.eth"))
	assert.False(t, IsName(vitalik.Hex()))
	assert.False(t, IsName("alice"))
	assert.False(t, IsName("alice.eth."))
}

func TestResolve(t *testing.T) {
	f := &fakeCaller{}
	node := Namehash("vitalik.eth")
	f.set(Registry, selResolver, node, word(publicResolver))
	f.set(publicResolver, selAddr, node, word(vitalik))

	got, err := NewResolver(f).Resolve(context.Background(), "Vitalik.eth")
	require.NoError(t, err)
	assert.Equal(t, vitalik, got)
}

func TestResolveNoResolver(t *testing.T) {
	f := &fakeCaller{}
	f.set(Registry, selResolver, Namehash("nobody.eth"), word(common.Address{}))

	_, err := NewResolver(f).Resolve(context.Background(), "nobody.eth")
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestResolveWithoutRegistry(t *testing.T) {
	// Local chains have no registry contract and return empty output.
	_, err := NewResolver(&fakeCaller{}).Resolve(context.Background(), "alice.eth")
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestResolveNoRecord(t *testing.T) {
	f := &fakeCaller{}
	node := Namehash("empty.eth")
	f.set(Registry, selResolver, node, word(publicResolver))

	_, err := NewResolver(f).Resolve(context.Background(), "empty.eth")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestResolveCallError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewResolver(&fakeCaller{err: boom}).Resolve(context.Background(), "alice.eth")
	assert.ErrorIs(t, err, boom)
}

func TestLookup(t *testing.T) {
	f := &fakeCaller{}
	rev := Namehash("d8da6bf26964af9d7eed9e03e53415d37aa96045.addr.reverse")
	f.set(Registry, selResolver, rev, word(publicResolver))
	f.set(publicResolver, selName, rev, abiString("vitalik.eth"))
	fwd := Namehash("vitalik.eth")
	f.set(Registry, selResolver, fwd, word(publicResolver))
	f.set(publicResolver, selAddr, fwd, word(vitalik))

	name, err := NewResolver(f).Lookup(context.Background(), vitalik)
	require.NoError(t, err)
	assert.Equal(t, "vitalik.eth", name)
}

func TestLookupRejectsUnverifiedName(t *testing.T) {
	f := &fakeCaller{}
	rev := Namehash("d8da6bf26964af9d7eed9e03e53415d37aa96045.addr.reverse")
	f.set(Registry, selResolver, rev, word(publicResolver))
	f.set(publicResolver, selName, rev, abiString("impostor.eth"))
	fwd := Namehash("impostor.eth")
	f.set(Registry, selResolver, fwd, word(publicResolver))
	f.set(publicResolver, selAddr, fwd, word(common.HexToAddress("0x1")))

	_, err := NewResolver(f).Lookup(context.Background(), vitalik)
	assert.ErrorContains(t, err, "resolves to")
}

func TestDecodeString(t *testing.T) {
	assert.Equal(t, "hello", decodeString(abiString("hello")))
	assert.Equal(t, "", decodeString(nil))
	assert.Equal(t, "", decodeString(abiString("")))

	bad := abiString("hello")
	bad[63] = 0xff // length beyond the payload
	assert.Equal(t, "", decodeString(bad))
}
