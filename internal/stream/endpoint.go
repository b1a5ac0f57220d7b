package stream

import (
	"errors"
	"net/url"
	"strings"

	"github.com/esshka/binance-stream-go/internal/config"
)

// Endpoints holds the two subscription bases.
type Endpoints struct {
	// Single receives one stream name appended verbatim, e.g. "bnbusdt@kline_1m".
	Single string
	// Multi receives stream names joined with "/"; its frames carry the
	// {"stream":...,"data":...} envelope.
	Multi string
}

// DefaultEndpoints returns the production Binance bases.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Single: config.DefaultBaseURL,
		Multi:  config.DefaultMultiBaseURL,
	}
}

// EndpointsFromConfig picks the bases out of the stream configuration.
func EndpointsFromConfig(cfg config.StreamConfig) Endpoints {
	e := DefaultEndpoints()
	if cfg.BaseURL != "" {
		e.Single = cfg.BaseURL
	}
	if cfg.MultiBaseURL != "" {
		e.Multi = cfg.MultiBaseURL
	}
	return e
}

// SingleURL builds the single-stream subscription URL.
func (e Endpoints) SingleURL(endpoint string) (string, error) {
	return checkURL(e.Single + endpoint)
}

// MultiURL builds the combined-stream subscription URL. Stream names are not
// validated.
func (e Endpoints) MultiURL(streams []string) (string, error) {
	return checkURL(e.Multi + strings.Join(streams, "/"))
}

func checkURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &EndpointError{URL: raw, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &EndpointError{URL: raw, Err: errors.New("not an absolute url")}
	}
	return raw, nil
}
