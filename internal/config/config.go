package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultNetwork   = "localhost"
	defaultAlgorithm = "fastest"
	defaultLogLevel  = "warn"
	defaultNoteTTL   = 5
	defaultWorkers   = 4

	configFile  = "config.json"
	walletsFile = "wallets.json"
	envFile     = ".env"
)

// Load reads config from dir (or creates defaults). dir defaults to
// $W3CARBON_CONFIG_DIR, then ~/.w3carbon. A .env file in the working
// directory or in dir is loaded into the process environment first; real
// environment variables win over both.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = os.Getenv(EnvConfigDir)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".w3carbon")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	if err := loadDotEnv(envFile, filepath.Join(dir, envFile)); err != nil {
		return nil, err
	}

	cfg := defaults(dir)

	data, err := os.ReadFile(filepath.Join(dir, configFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.configDir = dir
	if cfg.Deployments == nil {
		cfg.Deployments = make(map[string]string)
	}
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[string][]string)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads every existing file; missing files are skipped.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	addr := firstEnv(EnvContractAddress, legacyEnvContractAddress)
	idStr := firstEnv(EnvNetworkID, legacyEnvNetworkID)
	if idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid %s %q", EnvNetworkID, idStr)
		}
		c.env.networkID = id
	}
	if addr != "" {
		c.env.contract = addr
		if c.env.networkID == 0 {
			c.env.networkID = LocalChainID
		}
	}
	if n := os.Getenv(EnvNetwork); n != "" {
		c.env.network = n
	}
	if jwt := os.Getenv(EnvPinataJWT); jwt != "" {
		c.Pinata.JWT = jwt
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.LogLevel = lvl
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Save writes the config to disk. Environment overrides are not persisted.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// WalletsPath is the wallets.json location.
func (c *Config) WalletsPath() string {
	return filepath.Join(c.configDir, walletsFile)
}

// ActiveNetwork returns the network to use: $W3CARBON_NETWORK, then the
// saved choice.
func (c *Config) ActiveNetwork() string {
	if c.env.network != "" {
		return c.env.network
	}
	return c.Network
}

// Deployment returns the contract address for a chain. The environment
// override wins, then the saved deployments, then the local Hardhat default.
func (c *Config) Deployment(chainID int64) (string, bool) {
	if c.env.contract != "" && c.env.networkID == chainID {
		return c.env.contract, true
	}
	if a, ok := c.Deployments[strconv.FormatInt(chainID, 10)]; ok && a != "" {
		return a, true
	}
	if chainID == LocalChainID {
		return DefaultLocalDeployment, true
	}
	return "", false
}

// SetDeployment records the contract address for a chain.
func (c *Config) SetDeployment(chainID int64, address string) {
	if c.Deployments == nil {
		c.Deployments = make(map[string]string)
	}
	c.Deployments[strconv.FormatInt(chainID, 10)] = address
}

// DeploymentMap returns every known deployment keyed by chain ID.
func (c *Config) DeploymentMap() map[int64]string {
	out := map[int64]string{LocalChainID: DefaultLocalDeployment}
	for k, v := range c.Deployments {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil && v != "" {
			out[id] = v
		}
	}
	if c.env.contract != "" {
		out[c.env.networkID] = c.env.contract
	}
	return out
}

// AddRPC adds a custom RPC URL for a network.
func (c *Config) AddRPC(network, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[string][]string)
	}
	if slices.Contains(c.CustomRPCs[network], url) {
		return fmt.Errorf("RPC %s already exists for network %s", url, network)
	}
	c.CustomRPCs[network] = append(c.CustomRPCs[network], url)
	return nil
}

// GetRPCs returns custom RPCs for a network.
func (c *Config) GetRPCs(network string) []string {
	return c.CustomRPCs[network]
}

// AddNetwork records a custom network, replacing one with the same chain ID.
func (c *Config) AddNetwork(n NetworkEntry) {
	c.CustomNetworks = slices.DeleteFunc(c.CustomNetworks, func(e NetworkEntry) bool {
		return e.ChainID == n.ChainID
	})
	c.CustomNetworks = append(c.CustomNetworks, n)
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		Network:      defaultNetwork,
		RPCAlgorithm: defaultAlgorithm,
		LogLevel:     defaultLogLevel,
		NoteTTL:      defaultNoteTTL,
		Concurrency:  defaultWorkers,
		Deployments:  make(map[string]string),
		CustomRPCs:   make(map[string][]string),
		configDir:    dir,
	}
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
