package config

import "time"

// DefaultLocalDeployment is where the contract lands on a fresh Hardhat node.
const DefaultLocalDeployment = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// LocalChainID is the Hardhat chain ID.
const LocalChainID int64 = 31337

// GasLimitContractCall is the EstimateGas fallback for a state-changing call
// when the node fails to estimate without reporting a revert.
const GasLimitContractCall = uint64(500_000)

// Timeout constants used across cmd.
const (
	RPCSelectTimeout = 10 * time.Second // RPC benchmark / selection
	TxConfirmTimeout = 3 * time.Minute  // transaction confirmation wait
	QueryTimeout     = 30 * time.Second // one repository refresh
)

// Environment variables. The NEXT_PUBLIC_ names are accepted for deployments
// made with the original web frontend's scripts.
const (
	EnvConfigDir       = "W3CARBON_CONFIG_DIR"
	EnvContractAddress = "W3CARBON_CONTRACT_ADDRESS"
	EnvNetworkID       = "W3CARBON_NETWORK_ID"
	EnvNetwork         = "W3CARBON_NETWORK"
	EnvPinataJWT       = "W3CARBON_PINATA_JWT"
	EnvLogLevel        = "W3CARBON_LOG_LEVEL"

	legacyEnvContractAddress = "NEXT_PUBLIC_CONTRACT_ADDRESS"
	legacyEnvNetworkID       = "NEXT_PUBLIC_NETWORK_ID"
)
