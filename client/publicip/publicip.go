package publicip

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxBody = 1 << 20

// Resolver asks one randomly chosen echo service for the caller's public
// address. It holds no state between calls.
type Resolver struct {
	client  *http.Client
	sources []string
	pick    func(n int) int
}

// New creates a Resolver over sources. A nil rnd is seeded from the clock.
func New(client *http.Client, sources []string, rnd *rand.Rand) *Resolver {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Resolver{
		client:  client,
		sources: sources,
		pick:    rnd.Intn,
	}
}

// Resolve performs a single GET against a random source and returns the
// trimmed response body. The body is not validated as an address.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if len(r.sources) == 0 {
		return "", errors.New("no address sources configured")
	}
	source := r.sources[r.pick(len(r.sources))]
	log.Debug().Msgf("Resolving public address via %s", source)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", errors.Wrapf(err, "build request for %s", source)
	}

	response, err := r.client.Do(request)
	if err != nil {
		return "", errors.Wrapf(err, "fetch %s", source)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", errors.Errorf("fetch %s: server response invalid: %s", source, response.Status)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBody))
	if err != nil {
		return "", errors.Wrapf(err, "read %s", source)
	}

	return strings.TrimSpace(string(body)), nil
}
