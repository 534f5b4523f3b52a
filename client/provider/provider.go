package provider

import (
	"net/netip"

	"github.com/pkg/errors"
)

type DDNSProvider interface {
	Update(ip netip.Addr) error
}

// RecordType returns the DNS record type that holds ip.
func RecordType(ip netip.Addr) string {
	if ip.Is6() && !ip.Is4In6() {
		return "AAAA"
	}
	return "A"
}

// Required reads a non-empty string option from a provider config block.
func Required(conf map[string]any, key string) (string, error) {
	v, ok := conf[key].(string)
	if !ok || v == "" {
		return "", errors.Errorf("provider option %q is required", key)
	}
	return v, nil
}

// Optional reads a string option, falling back to def when it is unset.
func Optional(conf map[string]any, key, def string) string {
	if v, ok := conf[key].(string); ok && v != "" {
		return v
	}
	return def
}
