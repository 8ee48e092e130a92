package ui

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
)

const dateLayout = "2006-01-02"

// CreditStatus is the single-word state shown for a credit.
func CreditStatus(c market.Credit, now time.Time) string {
	switch {
	case c.IsRetired:
		return "retired"
	case c.Expired(now):
		return "expired"
	case c.IsForSale:
		return "for sale"
	default:
		return "held"
	}
}

func styledStatus(c market.Credit, now time.Time) string {
	s := CreditStatus(c, now)
	switch s {
	case "retired":
		return StyleSuccess.Render(s)
	case "expired":
		return StyleError.Render(s)
	case "for sale":
		return StyleWarning.Render(s)
	}
	return StyleMeta.Render(s)
}

// FormatPrice renders a wei price in ETH, or "-" when the credit is not
// listed.
func FormatPrice(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "-"
	}
	return chain.FormatEther(wei) + " ETH"
}

// FormatTonnes renders a carbon amount.
func FormatTonnes(t *big.Int) string {
	if t == nil {
		return "0 t"
	}
	return t.String() + " t"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func tokenLabel(id *big.Int) string {
	if id == nil {
		return "#?"
	}
	return "#" + id.String()
}

// CreditsTable renders credits as a table. selected highlights one row;
// pass -1 for none.
func CreditsTable(credits []market.Credit, now time.Time, selected int) string {
	t := NewTable([]Column{
		{Title: "Token", Width: 7},
		{Title: "Project", Width: 24},
		{Title: "Location", Width: 16},
		{Title: "Amount", Width: 9},
		{Title: "Price", Width: 14},
		{Title: "Status", Width: 9},
		{Title: "Expires", Width: 10},
	})
	t.SelIdx = selected
	for i, c := range credits {
		status := styledStatus(c, now)
		if i == selected {
			status = CreditStatus(c, now)
		}
		t.AddRow(Row{
			tokenLabel(c.TokenID),
			c.ProjectName,
			c.Location,
			FormatTonnes(c.CarbonAmount),
			FormatPrice(listedPrice(c)),
			status,
			formatDate(c.ExpiryDate),
		})
	}
	return t.Render()
}

func listedPrice(c market.Credit) *big.Int {
	if !c.IsForSale {
		return nil
	}
	return c.Price
}

// CreditDetail renders every field of one credit, plus its metadata when
// the token URI is inline.
func CreditDetail(c market.Credit, owner common.Address, now time.Time) string {
	pairs := [][2]string{
		{"Token", tokenLabel(c.TokenID)},
		{"Project", c.ProjectName},
		{"Location", c.Location},
		{"Amount", FormatTonnes(c.CarbonAmount)},
		{"Issued", formatDate(c.IssuanceDate)},
		{"Expires", formatDate(c.ExpiryDate)},
		{"Verifier", c.Verifier.Hex()},
		{"Status", CreditStatus(c, now)},
		{"Price", FormatPrice(listedPrice(c))},
	}
	if owner != (common.Address{}) {
		pairs = append(pairs, [2]string{"Owner", owner.Hex()})
	}
	if m, ok := c.Metadata(); ok {
		if m.Description != "" {
			pairs = append(pairs, [2]string{"Description", m.Description})
		}
		if m.Image != "" {
			pairs = append(pairs, [2]string{"Image", m.Image})
		}
	} else if c.TokenURI != "" {
		pairs = append(pairs, [2]string{"Token URI", c.TokenURI})
	}
	return KeyValueBlock("Carbon Credit "+tokenLabel(c.TokenID), pairs)
}

// StatsBlock renders aggregate market figures.
func StatsBlock(s market.Stats) string {
	avg := "-"
	if s.AveragePrice != nil && s.AveragePrice.Sign() > 0 {
		avg = FormatPrice(s.AveragePrice)
	}
	volume := "0 ETH"
	if s.ListedVolume != nil && s.ListedVolume.Sign() > 0 {
		volume = FormatPrice(s.ListedVolume)
	}
	return KeyValueBlock("Market", [][2]string{
		{"Credits", fmt.Sprint(s.Credits)},
		{"For sale", fmt.Sprint(s.ForSale)},
		{"Owned", fmt.Sprint(s.Owned)},
		{"Retired", fmt.Sprint(s.Retired)},
		{"Expired", fmt.Sprint(s.Expired)},
		{"CO2 offset", FormatTonnes(s.TotalTonnes)},
		{"Listed volume", volume},
		{"Average price", avg},
	})
}

// SessionBlock renders the connection state. network may be nil when the
// chain is not in the registry.
func SessionBlock(s session.Session, network *chain.Network) string {
	pairs := [][2]string{{"State", s.State.String()}}
	if s.Account != (common.Address{}) {
		pairs = append(pairs, [2]string{"Account", s.Account.Hex()})
	}
	if s.ChainID != 0 {
		name := fmt.Sprint(s.ChainID)
		if network != nil {
			name = fmt.Sprintf("%s (%d)", network.DisplayName, s.ChainID)
		}
		pairs = append(pairs, [2]string{"Network", name})
	}
	if s.Contract != nil {
		pairs = append(pairs, [2]string{"Contract", s.Contract.Address().Hex()})
		mode := "read/write"
		if s.ReadOnly() {
			mode = "read-only"
		}
		pairs = append(pairs, [2]string{"Mode", mode})
	}
	if s.Err != nil {
		pairs = append(pairs, [2]string{"Error", firstLine(s.Err.Error())})
	}
	return KeyValueBlock("Session", pairs)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
