package market

import (
	"math/big"
	"time"
)

// Stats are aggregates over a snapshot. Credits appearing in both halves
// are counted once.
type Stats struct {
	Credits      int
	ForSale      int
	Owned        int
	Retired      int
	Expired      int
	TotalTonnes  *big.Int
	ListedVolume *big.Int
	AveragePrice *big.Int
}

// ComputeStats derives Stats from s at now.
func ComputeStats(s Snapshot, now time.Time) Stats {
	st := Stats{
		ForSale:      len(s.ForSale),
		Owned:        len(s.Owned),
		TotalTonnes:  new(big.Int),
		ListedVolume: new(big.Int),
		AveragePrice: new(big.Int),
	}
	seen := make(map[string]bool)
	listed := 0
	for _, half := range [][]Credit{s.ForSale, s.Owned} {
		for _, c := range half {
			key := c.TokenID.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			st.Credits++
			if c.CarbonAmount != nil {
				st.TotalTonnes.Add(st.TotalTonnes, c.CarbonAmount)
			}
			if c.IsRetired {
				st.Retired++
			}
			if c.Expired(now) {
				st.Expired++
			}
			if c.IsForSale && c.Price != nil {
				st.ListedVolume.Add(st.ListedVolume, c.Price)
				listed++
			}
		}
	}
	if listed > 0 {
		st.AveragePrice.Quo(st.ListedVolume, big.NewInt(int64(listed)))
	}
	return st
}
