package simulated

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
)

// Revert messages, matching the deployed contract.
const (
	ReasonNotAuthorized  = "Not authorized to mint"
	ReasonBadAmount      = "Carbon amount must be greater than 0"
	ReasonBadExpiry      = "Expiry date must be in the future"
	ReasonNotOwner       = "Not the owner"
	ReasonRetired        = "Credit already retired"
	ReasonBadPrice       = "Price must be greater than 0"
	ReasonNotForSale     = "Not for sale"
	ReasonBadPayment     = "Incorrect payment amount"
	ReasonOwnPurchase    = "Cannot buy your own credit"
	ReasonNoToken        = "Token does not exist"
	ReasonNotAdmin       = "Ownable: caller is not the owner"
	reasonZeroRecipient  = "ERC721: mint to the zero address"
	reasonNonPayableCall = ""
)

// RevertError is returned by calls and estimations that hit a failing rule.
// It carries ABI-encoded Error(string) data like a node's JSON-RPC error.
type RevertError struct{ Reason string }

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// ErrorCode mirrors the JSON-RPC code nodes use for reverts.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData is the hex-encoded revert payload.
func (e *RevertError) ErrorData() interface{} {
	if e.Reason == "" {
		return "0x"
	}
	enc, err := revertArgs.Pack(e.Reason)
	if err != nil {
		return "0x"
	}
	return hexutil.Encode(append(append([]byte{}, revertSelector...), enc...))
}

var (
	revertSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	revertArgs     = func() abi.Arguments {
		t, err := abi.NewType("string", "", nil)
		if err != nil {
			panic(err)
		}
		return abi.Arguments{{Type: t}}
	}()
)

func revert(reason string) error { return &RevertError{Reason: reason} }

type credit struct {
	rec   carbon.CreditRecord
	owner common.Address
	uri   string
}

// state is the contract storage. Values are replaced, never mutated, so a
// shallow clone of the slice is a snapshot.
type state struct {
	admin      common.Address
	verifiers  map[common.Address]bool
	credits    []credit
	lastSeller common.Address
}

func newState(admin common.Address) *state {
	return &state{admin: admin, verifiers: map[common.Address]bool{admin: true}}
}

func (s *state) clone() *state {
	cp := &state{
		admin:     s.admin,
		verifiers: make(map[common.Address]bool, len(s.verifiers)),
		credits:   append([]credit(nil), s.credits...),
	}
	for k, v := range s.verifiers {
		cp.verifiers[k] = v
	}
	return cp
}

type call struct {
	method *abi.Method
	args   []interface{}
}

func decodeCall(data []byte) (call, error) {
	if len(data) < 4 {
		return call{}, errors.New("calldata too short")
	}
	m, err := carbon.ParsedABI.MethodById(data[:4])
	if err != nil {
		return call{}, revert(reasonNonPayableCall)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return call{}, fmt.Errorf("decoding %s: %w", m.Name, err)
	}
	return call{method: m, args: args}, nil
}

func (s *state) token(id *big.Int) (*credit, error) {
	if !id.IsInt64() || id.Sign() < 0 || id.Int64() >= int64(len(s.credits)) {
		return nil, revert(ReasonNoToken)
	}
	return &s.credits[id.Int64()], nil
}

func (s *state) read(c call) ([]byte, error) {
	out := c.method.Outputs
	switch c.method.Name {
	case carbon.MethodTokensForSale:
		ids := []*big.Int{}
		for _, cr := range s.credits {
			if cr.rec.IsForSale {
				ids = append(ids, cr.rec.TokenId)
			}
		}
		return out.Pack(ids)
	case carbon.MethodTokensByOwner:
		owner := c.args[0].(common.Address)
		ids := []*big.Int{}
		for _, cr := range s.credits {
			if cr.owner == owner {
				ids = append(ids, cr.rec.TokenId)
			}
		}
		return out.Pack(ids)
	case carbon.MethodGetCredit:
		cr, err := s.token(c.args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return out.Pack(cr.rec)
	case carbon.MethodTokenURI:
		cr, err := s.token(c.args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return out.Pack(cr.uri)
	case carbon.MethodOwnerOf:
		cr, err := s.token(c.args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return out.Pack(cr.owner)
	case carbon.MethodBalanceOf:
		owner := c.args[0].(common.Address)
		n := int64(0)
		for _, cr := range s.credits {
			if cr.owner == owner {
				n++
			}
		}
		return out.Pack(big.NewInt(n))
	case carbon.MethodIsVerifier:
		return out.Pack(s.verifiers[c.args[0].(common.Address)])
	case carbon.MethodContractOwner:
		return out.Pack(s.admin)
	}
	return nil, fmt.Errorf("unsupported view %s", c.method.Name)
}

func (s *state) write(c call, from common.Address, value *big.Int, now time.Time) ([]*types.Log, error) {
	s.lastSeller = common.Address{}
	if value.Sign() > 0 && !c.method.IsPayable() {
		return nil, revert(reasonNonPayableCall)
	}
	switch c.method.Name {
	case carbon.MethodMint:
		return s.mint(c.args, from, now)
	case carbon.MethodList:
		return s.list(c.args[0].(*big.Int), c.args[1].(*big.Int), from)
	case carbon.MethodUnlist:
		return s.unlist(c.args[0].(*big.Int), from)
	case carbon.MethodBuy:
		return s.buy(c.args[0].(*big.Int), from, value)
	case carbon.MethodRetire:
		return s.retire(c.args[0].(*big.Int), from)
	case carbon.MethodAddVerifier:
		if from != s.admin {
			return nil, revert(ReasonNotAdmin)
		}
		s.verifiers[c.args[0].(common.Address)] = true
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported transaction %s", c.method.Name)
}

func (s *state) mint(args []interface{}, from common.Address, now time.Time) ([]*types.Log, error) {
	to := args[0].(common.Address)
	amount := args[1].(*big.Int)
	project := args[2].(string)
	location := args[3].(string)
	expiry := args[4].(*big.Int)
	uri := args[5].(string)

	switch {
	case !s.verifiers[from]:
		return nil, revert(ReasonNotAuthorized)
	case to == (common.Address{}):
		return nil, revert(reasonZeroRecipient)
	case amount.Sign() <= 0:
		return nil, revert(ReasonBadAmount)
	case expiry.Cmp(big.NewInt(now.Unix())) <= 0:
		return nil, revert(ReasonBadExpiry)
	}

	id := big.NewInt(int64(len(s.credits)))
	s.credits = append(s.credits, credit{
		rec: carbon.CreditRecord{
			TokenId:      id,
			CarbonAmount: amount,
			ProjectName:  project,
			Location:     location,
			IssuanceDate: big.NewInt(now.Unix()),
			ExpiryDate:   expiry,
			Verifier:     from,
			Price:        new(big.Int),
		},
		owner: to,
		uri:   uri,
	})
	l, err := eventLog(carbon.EventMinted, []common.Hash{common.BigToHash(id), addrTopic(to)}, amount, project)
	if err != nil {
		return nil, err
	}
	return []*types.Log{l}, nil
}

func (s *state) owned(id *big.Int, from common.Address) (*credit, error) {
	cr, err := s.token(id)
	if err != nil {
		return nil, err
	}
	if cr.owner != from {
		return nil, revert(ReasonNotOwner)
	}
	return cr, nil
}

func (s *state) list(id, price *big.Int, from common.Address) ([]*types.Log, error) {
	cr, err := s.owned(id, from)
	if err != nil {
		return nil, err
	}
	if cr.rec.IsRetired {
		return nil, revert(ReasonRetired)
	}
	if price.Sign() <= 0 {
		return nil, revert(ReasonBadPrice)
	}
	cr.rec.IsForSale = true
	cr.rec.Price = price
	l, err := eventLog(carbon.EventListed, []common.Hash{common.BigToHash(id)}, price)
	if err != nil {
		return nil, err
	}
	return []*types.Log{l}, nil
}

func (s *state) unlist(id *big.Int, from common.Address) ([]*types.Log, error) {
	cr, err := s.owned(id, from)
	if err != nil {
		return nil, err
	}
	if !cr.rec.IsForSale {
		return nil, revert(ReasonNotForSale)
	}
	cr.rec.IsForSale = false
	return nil, nil
}

func (s *state) buy(id *big.Int, from common.Address, value *big.Int) ([]*types.Log, error) {
	cr, err := s.token(id)
	if err != nil {
		return nil, err
	}
	switch {
	case !cr.rec.IsForSale:
		return nil, revert(ReasonNotForSale)
	case value.Cmp(cr.rec.Price) != 0:
		return nil, revert(ReasonBadPayment)
	case cr.owner == from:
		return nil, revert(ReasonOwnPurchase)
	}
	seller := cr.owner
	cr.owner = from
	cr.rec.IsForSale = false
	s.lastSeller = seller
	l, err := eventLog(carbon.EventSold, []common.Hash{common.BigToHash(id), addrTopic(seller), addrTopic(from)}, cr.rec.Price)
	if err != nil {
		return nil, err
	}
	return []*types.Log{l}, nil
}

func (s *state) retire(id *big.Int, from common.Address) ([]*types.Log, error) {
	cr, err := s.owned(id, from)
	if err != nil {
		return nil, err
	}
	if cr.rec.IsRetired {
		return nil, revert(ReasonRetired)
	}
	cr.rec.IsRetired = true
	cr.rec.IsForSale = false
	l, err := eventLog(carbon.EventRetired, []common.Hash{common.BigToHash(id), addrTopic(from)})
	if err != nil {
		return nil, err
	}
	return []*types.Log{l}, nil
}

func addrTopic(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

func eventLog(name string, indexed []common.Hash, data ...interface{}) (*types.Log, error) {
	ev := carbon.ParsedABI.Events[name]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", name, err)
	}
	return &types.Log{Topics: append([]common.Hash{ev.ID}, indexed...), Data: packed}, nil
}
