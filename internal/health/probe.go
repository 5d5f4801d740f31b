package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/balaji-balu/codeboard/internal/storeclient"
	"github.com/balaji-balu/codeboard/pkg/model"
)

// errUnhealthy marks an endpoint that answered, but not correctly.
var errUnhealthy = errors.New("endpoint unhealthy")

// Prober checks one endpoint. A nil error means healthy; an error wrapping
// errUnhealthy means the endpoint answered badly; anything else means it
// could not be reached.
type Prober interface {
	Probe(ctx context.Context) error
}

type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// LocalProbe polls the store from id 0 and expects a well formed answer.
func LocalProbe(c *storeclient.Client) Prober {
	return ProberFunc(func(ctx context.Context) error {
		_, err := c.Poll(ctx, 0)
		var se *storeclient.StatusError
		if errors.As(err, &se) || errors.Is(err, storeclient.ErrMalformed) {
			return fmt.Errorf("%w: %v", errUnhealthy, err)
		}
		return err
	})
}

// PeerProbe calls a peer's keepalive URL and expects {"status":"ok"}.
func PeerProbe(hc *http.Client, url string) Prober {
	if hc == nil {
		hc = http.DefaultClient
	}
	return ProberFunc(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d", errUnhealthy, resp.StatusCode)
		}
		var ka model.KeepaliveResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&ka); err != nil {
			return fmt.Errorf("%w: %v", errUnhealthy, err)
		}
		if ka.Status != "ok" {
			return fmt.Errorf("%w: status %q", errUnhealthy, ka.Status)
		}
		return nil
	})
}
