package config

// Config holds all w3carbon configuration.
type Config struct {
	DefaultWallet  string              `json:"default_wallet"`
	Network        string              `json:"network"`         // active network slug
	RPCAlgorithm   string              `json:"rpc_algorithm"`   // "fastest" | "failover"
	Connected      bool                `json:"connected"`       // wallet approved this app; enables silent reconnect
	Deployments    map[string]string   `json:"deployments"`     // chain ID -> contract address
	CustomRPCs     map[string][]string `json:"custom_rpcs"`     // network slug -> extra RPC URLs
	CustomNetworks []NetworkEntry      `json:"custom_networks"` // networks added with `network add`
	Pinata         PinataConfig        `json:"pinata"`
	LogLevel       string              `json:"log_level"`
	LogFile        string              `json:"log_file,omitempty"`
	NoteTTL        int                 `json:"notification_ttl"` // seconds a dashboard notification stays, 0 = until quit
	RPCRateLimit   float64             `json:"rpc_rate_limit"`   // contract reads per second, 0 = unlimited
	Concurrency    int                 `json:"concurrency"`      // parallel credit hydrations

	// internal: config dir path used for Save()
	configDir string
	// env holds overrides from the environment / .env; never persisted.
	env envOverrides
}

// NetworkEntry is a user-registered EVM network.
type NetworkEntry struct {
	Name     string   `json:"name"`
	ChainID  int64    `json:"chain_id"`
	RPCs     []string `json:"rpcs"`
	Currency string   `json:"currency,omitempty"`
	Explorer string   `json:"explorer,omitempty"`
}

// PinataConfig holds IPFS pinning credentials.
type PinataConfig struct {
	JWT        string `json:"jwt,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	APISecret  string `json:"api_secret,omitempty"`
	GatewayURL string `json:"gateway_url,omitempty"`
}

type envOverrides struct {
	contract  string
	networkID int64
	network   string
}
