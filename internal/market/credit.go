// Package market is the read and write side of the carbon credit
// marketplace: the repository hydrates credits from the contract, the view
// keeps the latest snapshot and the actions run the
// validate, submit, confirm, refresh protocol.
package market

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
)

// Credit is one carbon credit token as read from the contract.
type Credit struct {
	TokenID      *big.Int
	CarbonAmount *big.Int
	ProjectName  string
	Location     string
	IssuanceDate time.Time
	ExpiryDate   time.Time
	Verifier     common.Address
	IsRetired    bool
	Price        *big.Int
	IsForSale    bool
	TokenURI     string
}

func creditFromRecord(r carbon.CreditRecord, uri string) Credit {
	return Credit{
		TokenID:      r.TokenId,
		CarbonAmount: r.CarbonAmount,
		ProjectName:  r.ProjectName,
		Location:     r.Location,
		IssuanceDate: unixTime(r.IssuanceDate),
		ExpiryDate:   unixTime(r.ExpiryDate),
		Verifier:     r.Verifier,
		IsRetired:    r.IsRetired,
		Price:        r.Price,
		IsForSale:    r.IsForSale,
		TokenURI:     uri,
	}
}

func unixTime(v *big.Int) time.Time {
	if v == nil || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// Expired reports whether the credit's validity has lapsed at now.
func (c Credit) Expired(now time.Time) bool {
	return !c.ExpiryDate.IsZero() && !now.Before(c.ExpiryDate)
}

// Metadata decodes an inline metadata URI. Off-chain URIs return false.
func (c Credit) Metadata() (carbon.Metadata, bool) {
	if !carbon.IsDataURI(c.TokenURI) {
		return carbon.Metadata{}, false
	}
	m, err := carbon.DecodeDataURI(c.TokenURI)
	if err != nil {
		return carbon.Metadata{}, false
	}
	return m, true
}

// SessionSource yields the current session. *session.Manager implements it.
type SessionSource interface {
	Current() session.Session
}
