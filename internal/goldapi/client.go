// Package goldapi polls the market data provider for the spot gram-gold
// quote and the macro indicator set. The provider returns the price as text;
// cleaning and unit handling belong to the engine's normalizer.
package goldapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aurumlabs/goldwatch/internal/engine"
)

// quotePayload is the provider's spot quote response.
type quotePayload struct {
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Unit        string `json:"unit"`
	TimestampMs int64  `json:"ts"`
	MinorUnit   bool   `json:"minor_unit"`
}

// indicatorsPayload carries each macro series with its own timestamp.
type indicatorsPayload struct {
	Indicators map[string]struct {
		Value *float64 `json:"value"`
		Ts    *int64   `json:"ts"`
	} `json:"indicators"`
}

// Client implements engine.DataSource over the provider's HTTP API.
type Client struct {
	httpClient    *http.Client
	quoteURL      string
	indicatorsURL string
}

func NewClient(quoteURL, indicatorsURL string) *Client {
	return &Client{
		// Per-request deadlines come from the tick context; the transport
		// itself carries no extra timeout.
		httpClient:    &http.Client{},
		quoteURL:      quoteURL,
		indicatorsURL: indicatorsURL,
	}
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchQuote retrieves the primary price quote.
func (c *Client) FetchQuote(ctx context.Context) (engine.RawQuote, error) {
	var payload quotePayload
	if err := c.getJSON(ctx, c.quoteURL, &payload); err != nil {
		return engine.RawQuote{}, err
	}
	return engine.RawQuote{
		PriceText:   payload.Price,
		TimestampMs: payload.TimestampMs,
		MinorUnit:   payload.MinorUnit,
	}, nil
}

// FetchIndicators retrieves the auxiliary macro series. Unknown series names
// are ignored; missing ones surface as nil fields after normalization.
func (c *Client) FetchIndicators(ctx context.Context) (map[engine.FeatureKey]engine.RawIndicator, error) {
	var payload indicatorsPayload
	if err := c.getJSON(ctx, c.indicatorsURL, &payload); err != nil {
		return nil, err
	}
	out := make(map[engine.FeatureKey]engine.RawIndicator, len(engine.AuxKeys))
	for _, key := range engine.AuxKeys {
		if raw, ok := payload.Indicators[string(key)]; ok {
			out[key] = engine.RawIndicator{Value: raw.Value, TimestampMs: raw.Ts}
		}
	}
	return out, nil
}
