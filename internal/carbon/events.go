package carbon

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoMintEvent is returned when a mint receipt carries no CarbonCreditMinted log.
var ErrNoMintEvent = errors.New("no CarbonCreditMinted event in receipt")

// Event is one decoded contract log. Fields not carried by the event are zero.
type Event struct {
	Name         string
	TokenID      *big.Int
	From         common.Address // seller (Sold) or owner (Retired)
	To           common.Address // recipient (Minted) or buyer (Sold)
	Price        *big.Int
	CarbonAmount *big.Int
	ProjectName  string
	TxHash       common.Hash
	BlockNumber  uint64
}

// ParseLog decodes a log emitted by the contract.
func ParseLog(l *types.Log) (Event, error) {
	if len(l.Topics) == 0 {
		return Event{}, errors.New("anonymous log")
	}
	ev, err := ParsedABI.EventByID(l.Topics[0])
	if err != nil {
		return Event{}, err
	}
	out := Event{Name: ev.Name, TxHash: l.TxHash, BlockNumber: l.BlockNumber}

	want := 0
	for _, in := range ev.Inputs {
		if in.Indexed {
			want++
		}
	}
	if len(l.Topics) != want+1 {
		return Event{}, fmt.Errorf("%s: expected %d topics, got %d", ev.Name, want+1, len(l.Topics))
	}
	if want > 0 {
		out.TokenID = new(big.Int).SetBytes(l.Topics[1].Bytes())
	}

	fields, err := ParsedABI.Unpack(ev.Name, l.Data)
	if err != nil {
		return Event{}, fmt.Errorf("decoding %s: %w", ev.Name, err)
	}

	switch ev.Name {
	case EventMinted:
		out.To = common.BytesToAddress(l.Topics[2].Bytes())
		out.CarbonAmount = fields[0].(*big.Int)
		out.ProjectName = fields[1].(string)
	case EventListed:
		out.Price = fields[0].(*big.Int)
	case EventSold:
		out.From = common.BytesToAddress(l.Topics[2].Bytes())
		out.To = common.BytesToAddress(l.Topics[3].Bytes())
		out.Price = fields[0].(*big.Int)
	case EventRetired:
		out.From = common.BytesToAddress(l.Topics[2].Bytes())
	}
	return out, nil
}

// ReceiptEvents decodes every log of the receipt emitted by address.
// Foreign and unknown logs are skipped.
func ReceiptEvents(r *types.Receipt, address common.Address) []Event {
	var out []Event
	for _, l := range r.Logs {
		if l.Address != address {
			continue
		}
		ev, err := ParseLog(l)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// MintedTokenID extracts the token ID assigned by a mint.
func MintedTokenID(r *types.Receipt, address common.Address) (*big.Int, error) {
	for _, ev := range ReceiptEvents(r, address) {
		if ev.Name == EventMinted {
			return ev.TokenID, nil
		}
	}
	return nil, ErrNoMintEvent
}
