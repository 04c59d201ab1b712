package cloudflare

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

const defaultTimeout = 10 * time.Second

// NewAPI returns a token-authenticated client whose every request is bounded
// by timeout.
func NewAPI(token string, timeout time.Duration, opts ...cloudflare.Option) (*cloudflare.API, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts = append([]cloudflare.Option{cloudflare.HTTPClient(&http.Client{Timeout: timeout})}, opts...)
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloudflare client: %w", err)
	}
	return api, nil
}
