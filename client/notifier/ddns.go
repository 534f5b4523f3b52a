package notifier

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	maxBody = 1 << 20

	// Placeholder is replaced with the new address in DDNS URL templates.
	Placeholder = "{ip}"
)

// DDNS calls a dynamic-DNS update URL, one per managed hostname, e.g.
// https://www.duckdns.org/update?domains=home&token=T&ip={ip}
type DDNS struct {
	client   *http.Client
	template string
}

func NewDDNS(client *http.Client, template string) *DDNS {
	return &DDNS{client: client, template: template}
}

func (d *DDNS) Name() string {
	if u, err := url.Parse(d.template); err == nil && u.Host != "" {
		return "ddns " + u.Host
	}
	return "ddns"
}

// Notify issues the update GET. The plain-text answer is logged; any HTTP
// response counts as handled, only transport errors are returned.
func (d *DDNS) Notify(ctx context.Context, change Change) error {
	target, err := d.url(change.New)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "build ddns request")
	}

	response, err := d.client.Do(request)
	if err != nil {
		return errors.Wrapf(err, "%s: update", d.Name())
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBody))
	if err != nil {
		log.Warn().Err(err).Msgf("%s: could not read response", d.Name())
	}
	log.Info().Msgf("%s answered %s: %s", d.Name(), response.Status, strings.TrimSpace(string(body)))
	return nil
}

func (d *DDNS) url(addr string) (string, error) {
	if strings.Contains(d.template, Placeholder) {
		return strings.ReplaceAll(d.template, Placeholder, url.QueryEscape(addr)), nil
	}

	u, err := url.Parse(d.template)
	if err != nil {
		return "", errors.Wrap(err, "parse ddns url")
	}
	query := u.Query()
	query.Set("ip", addr)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
