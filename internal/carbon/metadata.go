package carbon

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// PlaceholderImage is the artwork used when a mint supplies none.
const PlaceholderImage = "https://via.placeholder.com/400x400/10b981/ffffff?text=Carbon+Credit"

const dataURIPrefix = "data:application/json;base64,"

// Attribute is one ERC-721 metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Metadata is the ERC-721 JSON document a token URI points to.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// NewMetadata builds the standard document for a credit. extra traits are
// appended after the fixed ones.
func NewMetadata(project, location, description string, tonnes *big.Int, expiry time.Time, extra ...Attribute) Metadata {
	attrs := []Attribute{
		{TraitType: "Carbon Amount", Value: tonnes.String() + " tonnes CO2"},
		{TraitType: "Project", Value: project},
		{TraitType: "Location", Value: location},
		{TraitType: "Type", Value: "Carbon Credit"},
	}
	if !expiry.IsZero() {
		attrs = append(attrs, Attribute{TraitType: "Expiry", Value: expiry.UTC().Format("2006-01-02")})
	}
	attrs = append(attrs, extra...)
	return Metadata{
		Name:        project + " Carbon Credit",
		Description: description,
		Image:       PlaceholderImage,
		Attributes:  attrs,
	}
}

// Attribute returns the value of a trait, or "".
func (m Metadata) Attribute(trait string) string {
	for _, a := range m.Attributes {
		if strings.EqualFold(a.TraitType, trait) {
			return a.Value
		}
	}
	return ""
}

// DataURI encodes the document inline as a base64 data URI.
func (m Metadata) DataURI() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(b), nil
}

// Digest is the keccak-256 of the canonical JSON encoding, hex encoded. It
// names pinned documents so identical metadata maps to one pin.
func (m Metadata) Digest() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsDataURI reports whether uri carries its document inline.
func IsDataURI(uri string) bool { return strings.HasPrefix(uri, dataURIPrefix) }

// DecodeDataURI parses an inline metadata URI.
func DecodeDataURI(uri string) (Metadata, error) {
	if !IsDataURI(uri) {
		return Metadata{}, fmt.Errorf("not an inline metadata uri")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, dataURIPrefix))
	if err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("parsing metadata: %w", err)
	}
	return m, nil
}
