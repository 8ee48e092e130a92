package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/config"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/notify"
	"github.com/Mohsinsiddi/w3carbon/internal/pinning"
	"github.com/Mohsinsiddi/w3carbon/internal/rpc"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
	"github.com/Mohsinsiddi/w3carbon/internal/wallet"
)

// app is the dApp wired for one command: the injected wallet, the session
// over it and the market layers reading through the session.
type app struct {
	registry *chain.Registry
	wallets  *wallet.Manager
	wallet   *wallet.Injected
	sessions *session.Manager
	repo     *market.Repository
	view     *market.View
	actions  *market.Actions
	notes    *notify.Queue
	progress *ui.Progress
}

// newApp wires the application. Notifications go to the in-memory queue and
// the log; with progress set they are also printed as they happen.
func newApp(progress bool) (*app, error) {
	reg, err := networkRegistry()
	if err != nil {
		return nil, err
	}
	network, err := reg.Resolve(cfg.ActiveNetwork())
	if err != nil {
		return nil, fmt.Errorf("active network %q: %w", cfg.ActiveNetwork(), err)
	}

	var approver wallet.Approver = ui.PromptApprover{}
	if assumeYes {
		approver = wallet.AutoApprove
	}
	name := walletFlag
	if name == "" {
		name = cfg.DefaultWallet
	}

	mgr := newWalletManager()
	inj := wallet.NewInjected(mgr, reg,
		wallet.WithApprover(approver),
		wallet.WithSelector(rpc.NewSelector(rpc.Algorithm(cfg.RPCAlgorithm), rpc.WithLogger(log))),
		wallet.WithActiveWallet(name),
		wallet.WithChain(network.ChainID),
		wallet.WithAuthorized(cfg.Connected),
		wallet.WithInjectedLogger(log),
	)
	sessions := session.NewManager(inj, deployments(),
		session.WithLogger(log),
		session.WithEventTimeout(config.QueryTimeout),
		session.WithContractOptions(
			carbon.WithFallbackGas(config.GasLimitContractCall),
			carbon.WithLogger(log),
		),
	)

	repo := market.NewRepository(sessions,
		market.WithConcurrency(cfg.Concurrency),
		market.WithRateLimit(cfg.RPCRateLimit),
		market.WithRepositoryLogger(log),
	)
	view := market.NewView(repo, sessions, market.WithViewLogger(log))
	view.ClearOnDisconnect(sessions)

	a := &app{
		registry: reg,
		wallets:  mgr,
		wallet:   inj,
		sessions: sessions,
		repo:     repo,
		view:     view,
		notes:    notify.NewQueue(notify.DefaultQueueSize),
	}
	sink := notify.Fanout{a.notes, notify.LogSink{Log: log}}
	if progress {
		a.progress = ui.NewProgress(os.Stderr, interactive())
		sink = append(sink, a.progress)
	}
	a.actions = market.NewActions(sessions, repo, view, sink,
		market.WithPublisher(publisher()),
		market.WithConfirmTimeout(config.TxConfirmTimeout),
		market.WithActionsLogger(log),
	)
	return a, nil
}

// close stops a spinner left behind by an interrupted action.
func (a *app) close() {
	if a.progress != nil {
		a.progress.Close()
	}
}

// connected restores an approved connection without prompting and fails
// when there is none.
func (a *app) connected(ctx context.Context) (session.Session, error) {
	s, err := a.sessions.Reconnect(ctx)
	if err != nil {
		return s, err
	}
	if !s.Connected() {
		return s, errs.Environment("cmd.connected", fmt.Errorf("%w: run `w3carbon connect` first", errs.ErrNotConnected))
	}
	return s, nil
}

// network returns the registry entry for the session's chain, or nil.
func (a *app) network(chainID int64) *chain.Network {
	n, err := a.registry.GetByChainID(chainID)
	if err != nil {
		return nil
	}
	return n
}

// networkRegistry returns the built-in networks plus the user's custom
// networks and RPC URLs. Custom RPCs are tried before the built-in ones.
func networkRegistry() (*chain.Registry, error) {
	reg := chain.NewRegistry()
	for _, n := range cfg.CustomNetworks {
		if err := reg.Add(chain.Network{
			Name:           n.Name,
			ChainID:        n.ChainID,
			NativeCurrency: n.Currency,
			RPCs:           n.RPCs,
			Explorer:       n.Explorer,
		}); err != nil {
			return nil, fmt.Errorf("custom network %q: %w", n.Name, err)
		}
	}
	for name, urls := range cfg.CustomRPCs {
		n, err := reg.GetByName(name)
		if err != nil || len(urls) == 0 {
			continue
		}
		c := *n
		c.RPCs = append(append([]string{}, urls...), n.RPCs...)
		if err := reg.Add(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// deployments resolves the contract address per chain from the config.
func deployments() session.Deployments {
	return func(chainID int64) (common.Address, bool) {
		a, ok := cfg.Deployment(chainID)
		if !ok || !common.IsHexAddress(a) {
			return common.Address{}, false
		}
		return common.HexToAddress(a), true
	}
}

// publisher pins metadata to IPFS when Pinata credentials are configured
// and embeds it as a data URI otherwise.
func publisher() market.MetadataPublisher {
	pc := pinning.Config{
		JWT:        cfg.Pinata.JWT,
		APIKey:     cfg.Pinata.APIKey,
		APISecret:  cfg.Pinata.APISecret,
		GatewayURL: cfg.Pinata.GatewayURL,
	}
	if !pc.Configured() {
		return pinning.NewPublisher(nil, log)
	}
	return pinning.NewPublisher(pinning.NewPinataClient(pc), log)
}

// newWalletManager creates a Manager backed by the config-dir JSON store.
func newWalletManager() *wallet.Manager {
	return wallet.NewManager(wallet.WithStore(wallet.NewJSONStore(cfg.WalletsPath())))
}

func printResult(a *app, chainID int64, r market.Result) {
	pairs := [][2]string{
		{"Tx hash", r.TxHash.Hex()},
		{"Block", fmt.Sprint(r.BlockNumber)},
		{"Gas used", fmt.Sprint(r.GasUsed)},
	}
	if r.TokenID != nil {
		pairs = append(pairs, [2]string{"Token", "#" + r.TokenID.String()})
	}
	if n := a.network(chainID); n != nil {
		if u := n.TxURL(r.TxHash.Hex()); u != "" {
			pairs = append(pairs, [2]string{"Explorer", u})
		}
	}
	fmt.Println(ui.KeyValueBlock("Transaction", pairs))
	if r.RefreshErr != nil {
		fmt.Println(ui.Warn("Confirmed, but reloading the market failed: " + r.RefreshErr.Error()))
	}
}
