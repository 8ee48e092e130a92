// Package sync imports contract deployment records, as written by the
// Hardhat deploy script, into the w3carbon config.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ContractName is the only contract whose deployments are imported.
const ContractName = "CarbonCreditNFT"

// ErrNoRecords is returned when a source holds no usable record.
var ErrNoRecords = errors.New("no deployment records found")

// Record is one deployment. ChainID is a json.Number because deploy scripts
// serialise the chain ID either as a number or as a decimal string.
type Record struct {
	ContractName    string      `json:"contractName"`
	ContractAddress string      `json:"contractAddress"`
	Network         string      `json:"network"`
	ChainID         json.Number `json:"chainId"`
	Deployer        string      `json:"deployer,omitempty"`
	DeploymentTime  string      `json:"deploymentTime,omitempty"`
	BlockNumber     uint64      `json:"blockNumber,omitempty"`
}

// Chain returns the record's chain ID.
func (r Record) Chain() (int64, error) {
	id, err := r.ChainID.Int64()
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chain id %q", r.ChainID)
	}
	return id, nil
}

// Target receives imported deployments. *config.Config implements it.
type Target interface {
	SetDeployment(chainID int64, address string)
	Save() error
}

// Syncer reads deployment records from a file or URL and applies them.
type Syncer struct {
	target Target
	client *http.Client
	log    zerolog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithHTTPClient replaces the client used for http(s) sources.
func WithHTTPClient(c *http.Client) Option { return func(s *Syncer) { s.client = c } }

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Syncer) { s.log = l } }

// New creates a new Syncer.
func New(target Target, opts ...Option) *Syncer {
	s := &Syncer{
		target: target,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run imports every CarbonCreditNFT record found at source and saves the
// target. Records for other contracts are skipped; a malformed record fails
// the whole import and nothing is saved.
func (s *Syncer) Run(ctx context.Context, source string) ([]Record, error) {
	data, err := s.read(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}
	records, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	type entry struct {
		id   int64
		addr string
	}
	var (
		applied []Record
		entries []entry
	)
	for _, r := range records {
		if r.ContractName != "" && r.ContractName != ContractName {
			s.log.Debug().Str("contract", r.ContractName).Msg("skipping foreign deployment")
			continue
		}
		id, err := r.Chain()
		if err != nil {
			return nil, err
		}
		if !common.IsHexAddress(r.ContractAddress) {
			return nil, fmt.Errorf("invalid contract address %q for chain %d", r.ContractAddress, id)
		}
		entries = append(entries, entry{id, common.HexToAddress(r.ContractAddress).Hex()})
		applied = append(applied, r)
	}
	if len(applied) == 0 {
		return nil, ErrNoRecords
	}

	for _, e := range entries {
		s.target.SetDeployment(e.id, e.addr)
		s.log.Info().Int64("chain_id", e.id).Str("address", e.addr).Msg("deployment imported")
	}
	if err := s.target.Save(); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}
	return applied, nil
}

// Watch runs Run on a ticker until ctx is cancelled. Failures after the
// first run are logged and retried on the next tick.
func (s *Syncer) Watch(ctx context.Context, source string, interval time.Duration) error {
	if _, err := s.Run(ctx, source); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Run(ctx, source); err != nil {
				s.log.Warn().Err(err).Str("source", source).Msg("deployment sync failed")
			}
		}
	}
}

// Parse accepts a single record or an array of records.
func Parse(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoRecords
	}
	if data[0] == '[' {
		var rs []Record
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, err
		}
		return rs, nil
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return []Record{r}, nil
}

func (s *Syncer) read(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.ReadFile(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
