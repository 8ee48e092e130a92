// Package pinning publishes token metadata to IPFS through Pinata.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is Pinata's API root.
const DefaultBaseURL = "https://api.pinata.cloud"

// DefaultGateway is the public gateway used to build HTTP links.
const DefaultGateway = "https://gateway.pinata.cloud/ipfs"

// ErrNoCredentials is returned when neither a JWT nor an API key is set.
var ErrNoCredentials = errors.New("pinata: no credentials configured")

// Config holds Pinata credentials. JWT wins over the key/secret pair.
type Config struct {
	BaseURL    string
	GatewayURL string
	JWT        string
	APIKey     string
	APISecret  string
}

// Configured reports whether any credentials are present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.JWT) != "" || (c.APIKey != "" && c.APISecret != "")
}

// PinResult is Pinata's response to a pin request.
type PinResult struct {
	CID         string `json:"IpfsHash"`
	Size        int64  `json:"PinSize"`
	Timestamp   string `json:"Timestamp"`
	IsDuplicate bool   `json:"isDuplicate"`
}

// PinataClient provides minimal operations against Pinata's pinning API.
type PinataClient struct {
	httpClient  *http.Client
	baseURL     string
	gatewayBase string
	authHeader  string
	apiKey      string
	apiSecret   string
}

// NewPinataClient builds a client from cfg, filling in default URLs.
func NewPinataClient(cfg Config) *PinataClient {
	jwt := strings.TrimSpace(cfg.JWT)
	var authHeader string
	if jwt != "" {
		if !strings.HasPrefix(strings.ToLower(jwt), "bearer ") {
			authHeader = "Bearer " + jwt
		} else {
			authHeader = jwt
		}
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	gw := cfg.GatewayURL
	if gw == "" {
		gw = DefaultGateway
	}
	return &PinataClient{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimRight(base, "/"),
		gatewayBase: strings.TrimRight(gw, "/"),
		authHeader:  authHeader,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
	}
}

// PinJSON pins v as a JSON document named name.
func (c *PinataClient) PinJSON(ctx context.Context, v any, name string) (PinResult, error) {
	var res PinResult
	if c.authHeader == "" && (c.apiKey == "" || c.apiSecret == "") {
		return res, ErrNoCredentials
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return res, err
	}

	payload := map[string]any{
		"pinataContent": json.RawMessage(bytes.TrimSpace(buf.Bytes())),
	}
	if name != "" {
		payload["pinataMetadata"] = map[string]string{"name": name}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return res, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	httpRes, err := c.httpClient.Do(req)
	if err != nil {
		return res, err
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		b, _ := io.ReadAll(httpRes.Body)
		return res, fmt.Errorf("pinata: pinJSONToIPFS failed: %s: %s", httpRes.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(httpRes.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("pinata: decoding response: %w", err)
	}
	if res.CID == "" {
		return res, errors.New("pinata: response has no IpfsHash")
	}
	return res, nil
}

// GatewayURL returns an HTTP link for a CID.
func (c *PinataClient) GatewayURL(cid string) string {
	return c.gatewayBase + "/" + cid
}

func (c *PinataClient) applyAuth(req *http.Request) {
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
		return
	}
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.apiSecret)
}
