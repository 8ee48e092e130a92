package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrChainNotFound is returned when a network is not in the registry.
var ErrChainNotFound = errors.New("chain not found")

// Network holds all metadata for a single EVM network.
type Network struct {
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	ChainID        int64    `json:"chain_id"`
	NativeCurrency string   `json:"native_currency"`
	RPCs           []string `json:"rpcs"`
	Explorer       string   `json:"explorer,omitempty"`
	Testnet        bool     `json:"testnet"`
}

// TxURL returns the explorer link for a transaction hash, or "" when the
// network has no explorer.
func (n *Network) TxURL(hash string) string {
	if n.Explorer == "" {
		return ""
	}
	return strings.TrimRight(n.Explorer, "/") + "/tx/" + hash
}

// Registry is the network registry. Custom networks can be added at runtime
// (the equivalent of wallet_addEthereumChain).
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Network
	byID   map[int64]*Network
}

// NewRegistry returns a registry preloaded with the built-in networks.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*Network),
		byID:   make(map[int64]*Network),
	}
	for _, n := range builtinNetworks() {
		r.put(n)
	}
	return r
}

func (r *Registry) put(n Network) {
	c := n
	c.Name = strings.ToLower(c.Name)
	r.byName[c.Name] = &c
	r.byID[c.ChainID] = &c
}

// Add registers a custom network. An existing entry with the same chain ID
// or name is replaced.
func (r *Registry) Add(n Network) error {
	if n.ChainID <= 0 {
		return fmt.Errorf("invalid chain id %d", n.ChainID)
	}
	if strings.TrimSpace(n.Name) == "" {
		return errors.New("network name is required")
	}
	if len(n.RPCs) == 0 {
		return fmt.Errorf("network %s has no RPC URL", n.Name)
	}
	if n.DisplayName == "" {
		n.DisplayName = n.Name
	}
	if n.NativeCurrency == "" {
		n.NativeCurrency = "ETH"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[n.ChainID]; ok {
		delete(r.byName, old.Name)
	}
	r.put(n)
	return nil
}

// All returns every network sorted by chain ID.
func (r *Registry) All() []Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Network, 0, len(r.byID))
	for _, n := range r.byID {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// GetByName finds a network by its slug name (e.g. "sepolia", "localhost").
func (r *Registry) GetByName(name string) (*Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrChainNotFound
	}
	return n, nil
}

// GetByChainID finds a network by its numeric chain ID.
func (r *Registry) GetByChainID(id int64) (*Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byID[id]
	if !ok {
		return nil, ErrChainNotFound
	}
	return n, nil
}

// Resolve accepts either a slug name or a decimal chain ID.
func (r *Registry) Resolve(nameOrID string) (*Network, error) {
	if n, err := r.GetByName(nameOrID); err == nil {
		return n, nil
	}
	var id int64
	if _, err := fmt.Sscanf(nameOrID, "%d", &id); err == nil {
		return r.GetByChainID(id)
	}
	return nil, ErrChainNotFound
}

// LocalChainID is the chain ID of a Hardhat or Anvil development node.
const LocalChainID int64 = 31337

func builtinNetworks() []Network {
	return []Network{
		{
			Name: "localhost", DisplayName: "Hardhat Localhost", ChainID: LocalChainID,
			NativeCurrency: "ETH", RPCs: []string{"http://127.0.0.1:8545"}, Testnet: true,
		},
		{
			Name: "ethereum", DisplayName: "Ethereum", ChainID: 1, NativeCurrency: "ETH",
			RPCs:     []string{"https://eth.llamarpc.com", "https://ethereum-rpc.publicnode.com"},
			Explorer: "https://etherscan.io",
		},
		{
			Name: "sepolia", DisplayName: "Sepolia", ChainID: 11155111, NativeCurrency: "ETH",
			RPCs:     []string{"https://rpc.sepolia.org", "https://ethereum-sepolia-rpc.publicnode.com"},
			Explorer: "https://sepolia.etherscan.io", Testnet: true,
		},
		{
			Name: "polygon", DisplayName: "Polygon", ChainID: 137, NativeCurrency: "POL",
			RPCs:     []string{"https://polygon-rpc.com", "https://polygon-bor-rpc.publicnode.com"},
			Explorer: "https://polygonscan.com",
		},
		{
			Name: "amoy", DisplayName: "Polygon Amoy", ChainID: 80002, NativeCurrency: "POL",
			RPCs:     []string{"https://rpc-amoy.polygon.technology", "https://polygon-amoy-bor-rpc.publicnode.com"},
			Explorer: "https://amoy.polygonscan.com", Testnet: true,
		},
		{
			Name: "base", DisplayName: "Base", ChainID: 8453, NativeCurrency: "ETH",
			RPCs:     []string{"https://mainnet.base.org", "https://base-rpc.publicnode.com"},
			Explorer: "https://basescan.org",
		},
		{
			Name: "base-sepolia", DisplayName: "Base Sepolia", ChainID: 84532, NativeCurrency: "ETH",
			RPCs:     []string{"https://sepolia.base.org", "https://base-sepolia-rpc.publicnode.com"},
			Explorer: "https://sepolia.basescan.org", Testnet: true,
		},
	}
}
