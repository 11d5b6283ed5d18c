// Package coinmeta looks up a coin's display name and URL for alert
// messages, caching results for 24 hours so a burst of novel symbols from
// the same listing event doesn't hammer the metadata API.
package coinmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"listing-sniper/internal/httpclient"
)

const cacheTTL = 24 * time.Hour

const listingsURL = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/map"

type entry struct {
	name     string
	url      string
	fetchedAt time.Time
}

// Lookup resolves coin codes to display metadata, non-fatal on miss.
type Lookup struct {
	apiKey string
	client *httpclient.Client

	mu    sync.Mutex
	cache map[string]entry
}

// New builds a Lookup. apiKey may be empty, in which case every lookup
// misses silently (the alert is emitted with code-only text).
func New(apiKey string) *Lookup {
	return &Lookup{
		apiKey: apiKey,
		client: httpclient.New(),
		cache:  make(map[string]entry),
	}
}

// Info is the display metadata for one coin.
type Info struct {
	Name string
	URL  string
}

// Get returns metadata for code, fetching and caching on a miss. Any
// failure is non-fatal: the caller gets ok=false and proceeds with the raw
// code.
func (l *Lookup) Get(ctx context.Context, code string) (Info, bool) {
	l.mu.Lock()
	if e, ok := l.cache[code]; ok && time.Since(e.fetchedAt) < cacheTTL {
		l.mu.Unlock()
		return Info{Name: e.name, URL: e.url}, true
	}
	l.mu.Unlock()

	if l.apiKey == "" {
		return Info{}, false
	}

	info, err := l.fetch(ctx, code)
	if err != nil {
		return Info{}, false
	}

	l.mu.Lock()
	l.cache[code] = entry{name: info.Name, url: info.URL, fetchedAt: time.Now()}
	l.mu.Unlock()

	return info, true
}

type mapResponse struct {
	Data []struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Slug   string `json:"slug"`
	} `json:"data"`
}

func (l *Lookup) fetch(ctx context.Context, code string) (Info, error) {
	headers := map[string]string{"X-CMC_PRO_API_KEY": l.apiKey}
	data, err := l.client.Get(ctx, fmt.Sprintf("%s?symbol=%s", listingsURL, code), httpclient.OutputJSON, headers)
	if err != nil {
		return Info{}, err
	}

	var resp mapResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Info{}, fmt.Errorf("coinmeta: decode response for %s: %w", code, err)
	}
	if len(resp.Data) == 0 {
		return Info{}, fmt.Errorf("coinmeta: no entry for %s", code)
	}

	d := resp.Data[0]
	return Info{
		Name: d.Name,
		URL:  fmt.Sprintf("https://coinmarketcap.com/currencies/%s/", d.Slug),
	}, nil
}
