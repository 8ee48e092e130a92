package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/notify"
)

// DefaultConfirmTimeout bounds the wait for a receipt.
const DefaultConfirmTimeout = 3 * time.Minute

// MetadataPublisher turns metadata into the URI stored on-chain.
type MetadataPublisher interface {
	Publish(ctx context.Context, m carbon.Metadata) (string, error)
}

type inlinePublisher struct{}

func (inlinePublisher) Publish(_ context.Context, m carbon.Metadata) (string, error) {
	return m.DataURI()
}

// Result describes a confirmed transaction.
type Result struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	TokenID     *big.Int
	Events      []carbon.Event
	// RefreshErr is set when the transaction succeeded but re-reading the
	// market afterwards failed.
	RefreshErr error
}

// Actions issues state-changing contract calls. Each one validates its
// input locally, notifies, submits, waits for the receipt, refreshes the
// affected part of the view and notifies again. Failures never touch the
// view.
type Actions struct {
	src       SessionSource
	repo      *Repository
	view      Refresher
	sink      notify.Sink
	publisher MetadataPublisher
	now       func() time.Time
	timeout   time.Duration
	log       zerolog.Logger
}

// ActionsOption configures Actions.
type ActionsOption func(*Actions)

// WithPublisher sets how mint metadata is published. The default embeds
// it as a data URI.
func WithPublisher(p MetadataPublisher) ActionsOption {
	return func(a *Actions) {
		if p != nil {
			a.publisher = p
		}
	}
}

// WithConfirmTimeout bounds the receipt wait.
func WithConfirmTimeout(d time.Duration) ActionsOption { return func(a *Actions) { a.timeout = d } }

// WithActionsClock replaces time.Now for expiry validation.
func WithActionsClock(now func() time.Time) ActionsOption { return func(a *Actions) { a.now = now } }

// WithActionsLogger attaches a logger.
func WithActionsLogger(l zerolog.Logger) ActionsOption { return func(a *Actions) { a.log = l } }

// NewActions wires the write side. view may be nil when nothing needs
// refreshing; sink may be nil to drop notifications.
func NewActions(src SessionSource, repo *Repository, view Refresher, sink notify.Sink, opts ...ActionsOption) *Actions {
	if sink == nil {
		sink = notify.Discard
	}
	a := &Actions{
		src:       src,
		repo:      repo,
		view:      view,
		sink:      sink,
		publisher: inlinePublisher{},
		now:       time.Now,
		timeout:   DefaultConfirmTimeout,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// MintRequest are the inputs of Mint.
type MintRequest struct {
	// Recipient is a hex address; empty means the connected account.
	Recipient    string
	CarbonAmount *big.Int
	ProjectName  string
	Location     string
	Expiry       time.Time
	Description  string
	Image        string
	Verification string
}

// Mint creates a new credit. The caller must be an authorized verifier.
func (a *Actions) Mint(ctx context.Context, req MintRequest) (Result, error) {
	const op = "market.Mint"
	project := strings.TrimSpace(req.ProjectName)
	location := strings.TrimSpace(req.Location)
	switch {
	case req.CarbonAmount == nil || req.CarbonAmount.Sign() <= 0:
		return Result{}, errs.Validation(op, "carbon amount must be greater than 0")
	case project == "":
		return Result{}, errs.Validation(op, "project name is required")
	case location == "":
		return Result{}, errs.Validation(op, "location is required")
	case !req.Expiry.After(a.now()):
		return Result{}, errs.Validation(op, "expiry date must be in the future")
	}
	var recipient common.Address
	if r := strings.TrimSpace(req.Recipient); r != "" {
		if !common.IsHexAddress(r) {
			return Result{}, errs.Validation(op, "invalid recipient address %q", r)
		}
		recipient = common.HexToAddress(r)
	}

	sess := a.src.Current()
	if !sess.Connected() {
		return Result{}, errs.Environment(op, errs.ErrNotConnected)
	}
	if recipient == (common.Address{}) {
		recipient = sess.Account
	}

	var extra []carbon.Attribute
	if req.Verification != "" {
		extra = append(extra, carbon.Attribute{TraitType: "Verification Status", Value: req.Verification})
	}
	meta := carbon.NewMetadata(project, location, req.Description, req.CarbonAmount, req.Expiry, extra...)
	if req.Image != "" {
		meta.Image = req.Image
	}

	res, err := a.run(ctx, sess.Contract, op, "Minting credit", ScopeForSale, func(ctx context.Context) (*types.Transaction, error) {
		uri, err := a.publisher.Publish(ctx, meta)
		if err != nil {
			return nil, fmt.Errorf("publishing metadata: %w", err)
		}
		return sess.Contract.Mint(ctx, carbon.MintParams{
			To:           recipient,
			CarbonAmount: req.CarbonAmount,
			ProjectName:  project,
			Location:     location,
			ExpiryDate:   big.NewInt(req.Expiry.Unix()),
			TokenURI:     uri,
		})
	}, func(r *Result) string {
		for _, ev := range r.Events {
			if ev.Name == carbon.EventMinted {
				r.TokenID = ev.TokenID
				return fmt.Sprintf("Credit #%s minted for %s tonnes CO2 (%s)", ev.TokenID, req.CarbonAmount, project)
			}
		}
		return fmt.Sprintf("Credit minted (%s)", project)
	})
	return res, err
}

// ListForSale lists an owned credit at price, a decimal amount in the
// native currency (e.g. "0.1").
func (a *Actions) ListForSale(ctx context.Context, tokenID *big.Int, price string) (Result, error) {
	const op = "market.ListForSale"
	if err := validateTokenID(op, tokenID); err != nil {
		return Result{}, err
	}
	wei, err := chain.ParseEther(price)
	if err != nil {
		return Result{}, errs.Validation(op, "invalid price %q: %v", price, err)
	}
	if wei.Sign() <= 0 {
		return Result{}, errs.Validation(op, "price must be greater than 0")
	}
	sess := a.src.Current()
	if !sess.Connected() {
		return Result{}, errs.Environment(op, errs.ErrNotConnected)
	}
	return a.run(ctx, sess.Contract, op, "Listing credit", ScopeAll, func(ctx context.Context) (*types.Transaction, error) {
		return sess.Contract.ListForSale(ctx, tokenID, wei)
	}, func(*Result) string {
		return fmt.Sprintf("Credit #%s listed for %s", tokenID, chain.FormatEther(wei))
	})
}

// Unlist takes a credit off the market without selling it.
func (a *Actions) Unlist(ctx context.Context, tokenID *big.Int) (Result, error) {
	const op = "market.Unlist"
	if err := validateTokenID(op, tokenID); err != nil {
		return Result{}, err
	}
	sess := a.src.Current()
	if !sess.Connected() {
		return Result{}, errs.Environment(op, errs.ErrNotConnected)
	}
	return a.run(ctx, sess.Contract, op, "Removing listing", ScopeAll, func(ctx context.Context) (*types.Transaction, error) {
		return sess.Contract.RemoveFromSale(ctx, tokenID)
	}, func(*Result) string {
		return fmt.Sprintf("Credit #%s removed from sale", tokenID)
	})
}

// Purchase buys a listed credit attaching exactly displayedPrice wei. The
// credit is re-read first; if it is no longer for sale or its price moved
// away from displayedPrice nothing is submitted.
func (a *Actions) Purchase(ctx context.Context, tokenID, displayedPrice *big.Int) (Result, error) {
	const op = "market.Purchase"
	if err := validateTokenID(op, tokenID); err != nil {
		return Result{}, err
	}
	if displayedPrice == nil || displayedPrice.Sign() <= 0 {
		return Result{}, errs.Validation(op, "price must be greater than 0")
	}
	sess := a.src.Current()
	if !sess.Connected() {
		return Result{}, errs.Environment(op, errs.ErrNotConnected)
	}
	price := new(big.Int).Set(displayedPrice)
	return a.run(ctx, sess.Contract, op, "Purchasing credit", ScopeAll, func(ctx context.Context) (*types.Transaction, error) {
		current, err := a.repo.Credit(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if !current.IsForSale {
			return nil, &errs.Error{Kind: errs.KindTransaction, Op: op, Reason: errs.ReasonNotForSale,
				Msg: fmt.Sprintf("credit #%s is no longer for sale", tokenID)}
		}
		if current.Price.Cmp(price) != 0 {
			return nil, &errs.Error{Kind: errs.KindTransaction, Op: op, Reason: errs.ReasonPriceChanged,
				Msg: fmt.Sprintf("price changed from %s to %s", chain.FormatEther(price), chain.FormatEther(current.Price))}
		}
		return sess.Contract.Buy(ctx, tokenID, price)
	}, func(*Result) string {
		return fmt.Sprintf("Credit #%s purchased for %s", tokenID, chain.FormatEther(price))
	})
}

// Retire permanently consumes a credit's offset claim.
func (a *Actions) Retire(ctx context.Context, tokenID *big.Int) (Result, error) {
	const op = "market.Retire"
	if err := validateTokenID(op, tokenID); err != nil {
		return Result{}, err
	}
	sess := a.src.Current()
	if !sess.Connected() {
		return Result{}, errs.Environment(op, errs.ErrNotConnected)
	}
	res, err := a.run(ctx, sess.Contract, op, "Retiring credit", ScopeOwned, func(ctx context.Context) (*types.Transaction, error) {
		return sess.Contract.Retire(ctx, tokenID)
	}, func(*Result) string {
		return fmt.Sprintf("Credit #%s retired", tokenID)
	})
	// Retiring also delists on-chain; only the owned half was re-read.
	if d, ok := a.view.(listingDropper); ok && err == nil {
		d.DropListing(tokenID)
	}
	return res, err
}

type listingDropper interface {
	DropListing(tokenID *big.Int)
}

// AddVerifier authorizes an address to mint. Only the contract owner may
// call it.
func (a *Actions) AddVerifier(ctx context.Context, address string) (Result, error) {
	const op = "market.AddVerifier"
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return Result{}, errs.Validation(op, "invalid verifier address %q", address)
	}
	verifier := common.HexToAddress(address)
	sess := a.src.Current()
	if !sess.Connected() {
		return Result{}, errs.Environment(op, errs.ErrNotConnected)
	}
	return a.run(ctx, sess.Contract, op, "Adding verifier", ScopeNone, func(ctx context.Context) (*types.Transaction, error) {
		return sess.Contract.AddVerifier(ctx, verifier)
	}, func(*Result) string {
		return fmt.Sprintf("%s can now mint credits", verifier.Hex())
	})
}

// run is the shared submit, confirm, refresh protocol.
func (a *Actions) run(
	ctx context.Context,
	c *carbon.Contract,
	op, title string,
	scope Scope,
	submit func(context.Context) (*types.Transaction, error),
	success func(*Result) string,
) (Result, error) {
	a.sink.Show(notify.KindInfo, title, "Processing transaction...")

	tx, err := submit(ctx)
	if err != nil {
		return Result{}, a.fail(op, title, err)
	}
	a.sink.Show(notify.KindInfo, title, "Waiting for confirmation of "+shortHash(tx.Hash()))

	wctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	receipt, err := c.WaitMined(wctx, tx)
	if err != nil {
		return Result{TxHash: tx.Hash()}, a.fail(op, title, err)
	}

	res := Result{
		TxHash:  tx.Hash(),
		GasUsed: receipt.GasUsed,
		Events:  carbon.ReceiptEvents(receipt, c.Address()),
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if a.view != nil && scope != ScopeNone {
		if rerr := a.view.Refresh(ctx, scope); rerr != nil {
			res.RefreshErr = rerr
			a.sink.Show(notify.KindWarning, title, "confirmed, but reloading the market failed: "+rerr.Error())
			a.log.Warn().Err(rerr).Str("op", op).Msg("refresh after transaction failed")
		}
	}
	msg := success(&res)
	a.sink.Show(notify.KindSuccess, title, msg)
	a.log.Info().Str("op", op).Str("tx", res.TxHash.Hex()).Uint64("block", res.BlockNumber).Msg(msg)
	return res, nil
}

// fail converts err into the error taxonomy and reports it.
func (a *Actions) fail(op, title string, err error) error {
	var typed *errs.Error
	switch {
	case errors.Is(err, carbon.ErrReadOnly):
		typed = errs.Environment(op, fmt.Errorf("connected account cannot sign: %w", err))
	default:
		typed = errs.Transaction(op, err)
		var rev *carbon.RevertError
		if errors.As(err, &rev) && rev.Reason != "" && typed.Msg == "" {
			typed.Msg = "reverted: " + rev.Reason
		}
	}
	a.sink.Show(notify.KindError, title+" failed", describe(typed))
	a.log.Warn().Err(typed).Str("op", op).Msg("transaction failed")
	return typed
}

func describe(e *errs.Error) string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Error()
}

func validateTokenID(op string, id *big.Int) error {
	if id == nil || id.Sign() < 0 {
		return errs.Validation(op, "token id must be a non-negative integer")
	}
	return nil
}

func shortHash(h common.Hash) string {
	s := h.Hex()
	return s[:10] + "…" + s[len(s)-6:]
}
