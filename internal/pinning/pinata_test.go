package pinning

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
)

func TestPinJSONWithJWT(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody) //nolint:errcheck
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"IpfsHash":"QmTest","PinSize":120,"Timestamp":"2026-01-01T00:00:00Z"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewPinataClient(Config{BaseURL: srv.URL, JWT: "abc"})
	res, err := c.PinJSON(context.Background(), map[string]string{"name": "x"}, "doc")
	require.NoError(t, err)
	assert.Equal(t, "QmTest", res.CID)
	assert.Equal(t, int64(120), res.Size)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "/pinning/pinJSONToIPFS", gotPath)
	assert.JSONEq(t, `{"name":"x"}`, string(gotBody["pinataContent"]))
	assert.JSONEq(t, `{"name":"doc"}`, string(gotBody["pinataMetadata"]))
}

func TestPinJSONWithAPIKey(t *testing.T) {
	var key, secret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("pinata_api_key")
		secret = r.Header.Get("pinata_secret_api_key")
		w.Write([]byte(`{"IpfsHash":"QmKey"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewPinataClient(Config{BaseURL: srv.URL, APIKey: "k", APISecret: "s"}).PinJSON(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, "k", key)
	assert.Equal(t, "s", secret)
}

func TestPinJSONErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewPinataClient(Config{BaseURL: srv.URL, JWT: "bad"}).PinJSON(context.Background(), 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = NewPinataClient(Config{BaseURL: srv.URL}).PinJSON(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestConfigured(t *testing.T) {
	assert.False(t, Config{}.Configured())
	assert.False(t, Config{APIKey: "k"}.Configured())
	assert.True(t, Config{JWT: "j"}.Configured())
	assert.True(t, Config{APIKey: "k", APISecret: "s"}.Configured())
}

func TestGatewayURL(t *testing.T) {
	assert.Equal(t, DefaultGateway+"/QmX", NewPinataClient(Config{}).GatewayURL("QmX"))
}

type stubPinner struct {
	cid string
	err error
}

func (s stubPinner) PinJSON(context.Context, any, string) (PinResult, error) {
	return PinResult{CID: s.cid}, s.err
}

func sampleMetadata() carbon.Metadata {
	return carbon.NewMetadata("Wind Energy Project", "Denmark", "", big.NewInt(500), time.Time{})
}

func TestPublisherPins(t *testing.T) {
	uri, err := NewPublisher(stubPinner{cid: "QmPinned"}, zerolog.Nop()).Publish(context.Background(), sampleMetadata())
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmPinned", uri)
}

func TestPublisherFallsBackToDataURI(t *testing.T) {
	m := sampleMetadata()
	for _, p := range []*Publisher{
		NewPublisher(nil, zerolog.Nop()),
		NewPublisher(stubPinner{err: errors.New("down")}, zerolog.Nop()),
	} {
		uri, err := p.Publish(context.Background(), m)
		require.NoError(t, err)
		back, err := carbon.DecodeDataURI(uri)
		require.NoError(t, err)
		assert.Equal(t, m, back)
	}
}
