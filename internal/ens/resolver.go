// Package ens resolves ENS names for the address arguments of the CLI, so
// credits can be queried by owner name and verifiers authorized by name.
package ens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Registry is the ENS registry, deployed at the same address on Ethereum
// mainnet and Sepolia.
var Registry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

var (
	ErrNoResolver = errors.New("no resolver set")
	ErrNoRecord   = errors.New("no record")
)

var (
	selResolver = []byte{0x01, 0x78, 0xb8, 0xbf} // resolver(bytes32)
	selAddr     = []byte{0x3b, 0x3b, 0x57, 0xde} // addr(bytes32)
	selName     = []byte{0x69, 0x1f, 0x34, 0x31} // name(bytes32)
)

// Resolver answers forward and reverse ENS queries over any contract caller.
type Resolver struct {
	caller   ethereum.ContractCaller
	registry common.Address
}

// NewResolver returns a resolver that queries the standard registry.
func NewResolver(caller ethereum.ContractCaller) *Resolver {
	return &Resolver{caller: caller, registry: Registry}
}

// IsName reports whether s looks like an ENS name rather than an address.
func IsName(s string) bool {
	return !common.IsHexAddress(s) && strings.Contains(s, ".") &&
		!strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".")
}

// Resolve returns the address record of name.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, error) {
	node := Namehash(strings.ToLower(name))
	res, err := r.resolverOf(ctx, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	out, err := r.call(ctx, res, selAddr, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("querying resolver for %s: %w", name, err)
	}
	addr := wordAddress(out)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: %w", name, ErrNoRecord)
	}
	return addr, nil
}

// Lookup returns the primary name of addr. A reverse record is only trusted
// when the name resolves back to addr.
func (r *Resolver) Lookup(ctx context.Context, addr common.Address) (string, error) {
	node := Namehash(strings.ToLower(addr.Hex()[2:]) + ".addr.reverse")
	res, err := r.resolverOf(ctx, node)
	if err != nil {
		return "", fmt.Errorf("reverse %s: %w", addr.Hex(), err)
	}
	out, err := r.call(ctx, res, selName, node)
	if err != nil {
		return "", fmt.Errorf("querying reverse resolver: %w", err)
	}
	name := decodeString(out)
	if name == "" {
		return "", fmt.Errorf("reverse %s: %w", addr.Hex(), ErrNoRecord)
	}
	fwd, err := r.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	if fwd != addr {
		return "", fmt.Errorf("reverse %s: %s resolves to %s", addr.Hex(), name, fwd.Hex())
	}
	return name, nil
}

func (r *Resolver) resolverOf(ctx context.Context, node common.Hash) (common.Address, error) {
	out, err := r.call(ctx, r.registry, selResolver, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("querying ENS registry: %w", err)
	}
	res := wordAddress(out)
	if res == (common.Address{}) {
		return common.Address{}, ErrNoResolver
	}
	return res, nil
}

func (r *Resolver) call(ctx context.Context, to common.Address, sel []byte, node common.Hash) ([]byte, error) {
	data := make([]byte, 0, len(sel)+common.HashLength)
	data = append(append(data, sel...), node.Bytes()...)
	return r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// Namehash implements the EIP-137 namehash. Names must be normalized by
// the caller.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		node = common.BytesToHash(keccak256(node.Bytes(), keccak256([]byte(labels[i]))))
	}
	return node
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// wordAddress reads an address from the first 32-byte ABI word. Short
// output (no contract at the target) yields the zero address.
func wordAddress(out []byte) common.Address {
	if len(out) < 32 {
		return common.Address{}
	}
	return common.BytesToAddress(out[12:32])
}

// decodeString decodes a single ABI-encoded string return value.
func decodeString(out []byte) string {
	if len(out) < 64 {
		return ""
	}
	off := new(big.Int).SetBytes(out[:32])
	if !off.IsUint64() || off.Uint64()+32 > uint64(len(out)) {
		return ""
	}
	start := off.Uint64()
	n := new(big.Int).SetBytes(out[start : start+32])
	start += 32
	if !n.IsUint64() || n.Uint64() > uint64(len(out))-start {
		return ""
	}
	return string(out[start : start+n.Uint64()])
}
