package notifier

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/pkg/errors"

	"ipwatch/client/provider"
)

// Change is a detected transition of the observed public address.
type Change struct {
	Old string
	New string
	At  time.Time
}

// Notifier delivers a Change to an external system. Delivery is best-effort;
// callers log and drop returned errors.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, change Change) error
}

// Reporter is told about every successful resolution, changed or not.
type Reporter interface {
	Name() string
	Report(ctx context.Context, addr string) error
}

// Provider adapts a DNS provider API client to a Notifier.
type Provider struct {
	name     string
	provider provider.DDNSProvider
}

func NewProvider(name string, p provider.DDNSProvider) *Provider {
	return &Provider{name: name, provider: p}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Notify(_ context.Context, change Change) error {
	addr, err := netip.ParseAddr(strings.TrimSpace(change.New))
	if err != nil {
		return errors.Wrapf(err, "%s: new address", p.name)
	}
	return errors.Wrap(p.provider.Update(addr.Unmap()), p.name)
}
