package pinning

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
)

// Pinner stores a JSON document and returns its CID.
type Pinner interface {
	PinJSON(ctx context.Context, v any, name string) (PinResult, error)
}

// Publisher turns credit metadata into the pointer stored on-chain.
type Publisher struct {
	pinner Pinner
	log    zerolog.Logger
}

// NewPublisher returns a Publisher. A nil pinner publishes inline data URIs.
func NewPublisher(p Pinner, log zerolog.Logger) *Publisher {
	return &Publisher{pinner: p, log: log}
}

// Publish returns ipfs://<cid> when pinning succeeds. Without a pinner, or
// when pinning fails, the document is embedded as a data URI instead.
func (p *Publisher) Publish(ctx context.Context, m carbon.Metadata) (string, error) {
	if p != nil && p.pinner != nil {
		name := "carbon-credit"
		if d, err := m.Digest(); err == nil {
			name = "carbon-credit-" + d[:16]
		}
		res, err := p.pinner.PinJSON(ctx, m, name)
		if err == nil {
			p.log.Info().Str("cid", res.CID).Bool("duplicate", res.IsDuplicate).Msg("metadata pinned")
			return "ipfs://" + res.CID, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.log.Warn().Err(err).Msg("pinning failed, embedding metadata inline")
	}
	return m.DataURI()
}
