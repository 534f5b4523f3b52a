package ros

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/go-routeros/routeros/v3"
	"github.com/go-routeros/routeros/v3/proto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"ipwatch/config"
)

const defaultTimeout = 20 * time.Second

// RouterOSClient reads the public address assigned to a RouterOS interface.
type RouterOSClient struct {
	host   string
	user   string
	pass   string
	iface  string
	family string
}

func NewClient(conf config.RouterOSClientConfig) *RouterOSClient {
	client := &RouterOSClient{
		host:   conf.Host,
		user:   conf.User,
		pass:   conf.Password,
		iface:  conf.Interface,
		family: conf.Family,
	}
	log.Info().Msgf("RouterOS client: %s@%s (interface %s, %s)", conf.User, conf.Host, conf.Interface, client.command())
	return client
}

// Resolve returns the interface's public address for the configured family.
func (r *RouterOSClient) Resolve(ctx context.Context) (string, error) {
	addr, err := r.get(ctx, r.command())
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func (r *RouterOSClient) command() string {
	if r.family == "ipv6" {
		return "/ipv6/address/print"
	}
	return "/ip/address/print"
}

func (r *RouterOSClient) get(ctx context.Context, command string) (netip.Addr, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	c, err := r.dial(ctx)
	if err != nil {
		return netip.Addr{}, err
	}

	// Run does not observe ctx; closing the connection unblocks it.
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = c.Close() }) }
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()
	defer closeConn()

	reply, err := c.Run(command, "?=interface="+r.iface)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return netip.Addr{}, errors.Wrapf(ctxErr, "query addresses of %s", r.iface)
		}
		return netip.Addr{}, errors.Wrapf(err, "query addresses of %s", r.iface)
	}

	log.Debug().Msgf("RouterOS returned %d addresses for %s", len(reply.Re), r.iface)
	return filterAddr(reply.Re)
}

// dial connects and logs in with the ctx deadline set on the connection, so
// neither the login nor later commands can outlive it.
func (r *RouterOSClient) dial(ctx context.Context) (*routeros.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", r.host)
	if err != nil {
		return nil, errors.Wrapf(err, "dial routeros %s", r.host)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "set routeros deadline")
		}
	}

	c, err := routeros.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "routeros client %s", r.host)
	}
	if err := c.Login(r.user, r.pass); err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "login to routeros %s", r.host)
	}
	return c, nil
}

func filterAddr(replies []*proto.Sentence) (netip.Addr, error) {
	replies = slices.DeleteFunc(slices.Clone(replies), func(sentence *proto.Sentence) bool {
		prefix, err := netip.ParsePrefix(sentence.Map["address"])
		if err != nil {
			log.Debug().Msgf("Skipping unparsable address %q", sentence.Map["address"])
			return true
		}
		addr := prefix.Addr()
		return addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLoopback()
	})

	if len(replies) == 0 {
		return netip.Addr{}, errors.New("no public address found")
	}
	if len(replies) > 1 {
		log.Warn().Msgf("Found %d public addresses, using the first", len(replies))
	}

	prefix, err := netip.ParsePrefix(replies[0].Map["address"])
	if err != nil {
		return netip.Addr{}, errors.Wrap(err, "parse address")
	}
	return prefix.Addr(), nil
}
