package collyfetcher

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
	"github.com/JakeFAU/forum-archiver/internal/metrics"
)

// throttledTransport waits on the throttle before each round trip and
// tracks requests in flight.
type throttledTransport struct {
	base     http.RoundTripper
	throttle crawler.Throttle
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("throttled transport received nil request")
	}
	if t.throttle != nil {
		if err := t.throttle.Wait(req.Context(), req.URL.String()); err != nil {
			return nil, fmt.Errorf("throttle %s: %w", req.URL.Host, err)
		}
	}
	metrics.IncActiveFetches()
	defer metrics.DecActiveFetches()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("roundtrip %s: %w", req.URL.Host, err)
	}
	return resp, nil
}
