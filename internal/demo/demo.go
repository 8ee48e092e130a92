// Package demo runs the marketplace against an in-process simulated chain
// seeded with sample offset projects and three Hardhat development
// accounts.
package demo

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/carbon/simulated"
	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/notify"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
	"github.com/Mohsinsiddi/w3carbon/internal/wallet"
)

// Project is one seeded credit.
type Project struct {
	Name        string
	Location    string
	Description string
	Tonnes      int64
	Price       string // ether
}

// Projects are minted by Seed in order, so project i becomes token i.
var Projects = []Project{
	{"Amazon Rainforest Conservation", "Brazil, South America", "Protecting 10,000 hectares of pristine Amazon rainforest from deforestation", 100, "0.5"},
	{"Solar Farm Initiative", "California, USA", "Large-scale solar energy project replacing coal power generation", 250, "1.2"},
	{"Mangrove Restoration", "Philippines", "Restoring coastal mangrove ecosystems for carbon sequestration", 75, "0.3"},
	{"Wind Energy Project", "Denmark", "Offshore wind farm generating clean renewable energy", 500, "2.0"},
	{"Reforestation Program", "Kenya, Africa", "Community-led tree planting initiative in degraded lands", 150, "0.8"},
	{"Biogas Plant", "India", "Converting agricultural waste to clean energy and reducing methane emissions", 300, "1.5"},
}

// Listed is how many of the seeded projects are put up for sale.
const Listed = 4

// Wallet names, one per development key.
const (
	Verifier = "verifier"
	Alice    = "alice"
	Bob      = "bob"
)

var accounts = []string{Verifier, Alice, Bob}

// Options configures New.
type Options struct {
	// Sink receives action notifications in addition to Env.Notes.
	Sink notify.Sink
	Log  zerolog.Logger
	// Funding per account in ether; 0 means 10000.
	Funding int64
	// ManualMining leaves transactions pending until Chain.Mine.
	ManualMining bool
}

// Env is a connected marketplace over the simulated chain.
type Env struct {
	Chain    *simulated.Chain
	Wallets  *wallet.Manager
	Wallet   *wallet.Injected
	Sessions *session.Manager
	Repo     *market.Repository
	View     *market.View
	Actions  *market.Actions
	Notes    *notify.Queue
}

// New builds the environment and connects the verifier account.
func New(ctx context.Context, opts Options) (*Env, error) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	for i, name := range accounts {
		if _, err := mgr.AddWithKey(name, simulated.DevKeys[i]); err != nil {
			return nil, fmt.Errorf("adding %s: %w", name, err)
		}
	}
	owner, err := mgr.Get(Verifier)
	if err != nil {
		return nil, err
	}

	var simOpts []simulated.Option
	if opts.ManualMining {
		simOpts = append(simOpts, simulated.WithManualMining())
	}
	sim := simulated.New(owner.Account(), simOpts...)
	funding := opts.Funding
	if funding <= 0 {
		funding = 10_000
	}
	for _, w := range mgr.List() {
		sim.Fund(w.Account(), simulated.Ether(funding))
	}

	inj := wallet.NewInjected(mgr, chain.NewRegistry(),
		wallet.WithApprover(wallet.AutoApprove),
		wallet.WithActiveWallet(Verifier),
		wallet.WithChain(chain.LocalChainID),
		wallet.WithDialer(func(context.Context, *chain.Network) (carbon.Backend, error) { return sim, nil }),
		wallet.WithInjectedLogger(opts.Log),
	)
	deployments := func(id int64) (common.Address, bool) {
		return sim.Address(), id == chain.LocalChainID
	}
	sessions := session.NewManager(inj, deployments,
		session.WithLogger(opts.Log),
		session.WithEventTimeout(10*time.Second),
		session.WithContractOptions(carbon.WithPollInterval(10*time.Millisecond)),
	)

	notes := notify.NewQueue(notify.DefaultQueueSize)
	sink := notify.Fanout{notes, notify.LogSink{Log: opts.Log}}
	if opts.Sink != nil {
		sink = append(sink, opts.Sink)
	}

	repo := market.NewRepository(sessions, market.WithRepositoryLogger(opts.Log))
	view := market.NewView(repo, sessions, market.WithViewLogger(opts.Log))
	view.ClearOnDisconnect(sessions)
	env := &Env{
		Chain:    sim,
		Wallets:  mgr,
		Wallet:   inj,
		Sessions: sessions,
		Repo:     repo,
		View:     view,
		Actions:  market.NewActions(sessions, repo, view, sink, market.WithActionsLogger(opts.Log)),
		Notes:    notes,
	}

	if _, err := sessions.Connect(ctx); err != nil {
		return nil, err
	}
	return env, nil
}

// Seed mints every project to the verifier and lists the first Listed of
// them at their prices.
func (e *Env) Seed(ctx context.Context) error {
	expiry := time.Now().AddDate(2, 0, 0)
	for i, p := range Projects {
		res, err := e.Actions.Mint(ctx, market.MintRequest{
			CarbonAmount: big.NewInt(p.Tonnes),
			ProjectName:  p.Name,
			Location:     p.Location,
			Expiry:       expiry,
			Description:  p.Description,
			Verification: "Verified",
		})
		if err != nil {
			return fmt.Errorf("minting %q: %w", p.Name, err)
		}
		if i >= Listed {
			continue
		}
		if _, err := e.Actions.ListForSale(ctx, res.TokenID, p.Price); err != nil {
			return fmt.Errorf("listing %q: %w", p.Name, err)
		}
	}
	return e.View.Refresh(ctx, market.ScopeAll)
}

// Use switches the connected account to another demo wallet. The session
// rebinds through the wallet's accountsChanged event.
func (e *Env) Use(name string) error {
	return e.Wallet.SelectWallet(name)
}
