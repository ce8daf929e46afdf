package entity

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// Kind classifies an indicator of compromise.
type Kind string

const (
	KindIPv4   Kind = "ipv4"
	KindIPv6   Kind = "ipv6"
	KindDomain Kind = "domain"
	KindURL    Kind = "url"
	KindMD5    Kind = "md5"
	KindSHA1   Kind = "sha1"
	KindSHA256 Kind = "sha256"
)

// IsHash reports whether the kind is a file hash.
func (k Kind) IsHash() bool {
	return k == KindMD5 || k == KindSHA1 || k == KindSHA256
}

// IsNetwork reports whether the kind is a network indicator (IP, domain or URL).
func (k Kind) IsNetwork() bool {
	return k == KindIPv4 || k == KindIPv6 || k == KindDomain || k == KindURL
}

// Indicator is a normalized IOC. Immutable once parsed.
type Indicator struct {
	Value string `json:"value"`
	Kind  Kind   `json:"kind"`
}

// ErrInvalidIndicator is returned when an input string maps to no known kind.
var ErrInvalidIndicator = errors.New("invalid indicator")

var (
	hexRe    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	domainRe = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,63}$`)
)

// ParseIndicator detects the kind of a raw IOC string and normalizes it.
// Domains and hashes are lowercased, IP addresses take their canonical
// textual form, URLs are kept as given. Normalization is idempotent:
// parsing an already-parsed value returns it unchanged.
func ParseIndicator(raw string) (Indicator, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Indicator{}, fmt.Errorf("%w: empty input", ErrInvalidIndicator)
	}

	if hexRe.MatchString(s) {
		switch len(s) {
		case 32:
			return Indicator{Value: strings.ToLower(s), Kind: KindMD5}, nil
		case 40:
			return Indicator{Value: strings.ToLower(s), Kind: KindSHA1}, nil
		case 64:
			return Indicator{Value: strings.ToLower(s), Kind: KindSHA256}, nil
		}
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		if addr.Is4() {
			return Indicator{Value: addr.String(), Kind: KindIPv4}, nil
		}
		return Indicator{Value: addr.String(), Kind: KindIPv6}, nil
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err == nil && u.Scheme != "" && u.Host != "" {
			return Indicator{Value: s, Kind: KindURL}, nil
		}
		return Indicator{}, fmt.Errorf("%w: malformed URL %q", ErrInvalidIndicator, raw)
	}

	if domainRe.MatchString(s) && len(s) <= 253 {
		return Indicator{Value: strings.ToLower(s), Kind: KindDomain}, nil
	}

	return Indicator{}, fmt.Errorf("%w: %q", ErrInvalidIndicator, raw)
}

// Host returns the hostname portion of the indicator: the value itself
// for IPs and domains, the parsed host for URLs, and "" for hashes.
func (i Indicator) Host() string {
	switch i.Kind {
	case KindURL:
		if u, err := url.Parse(i.Value); err == nil {
			return strings.ToLower(u.Hostname())
		}
		return ""
	case KindIPv4, KindIPv6, KindDomain:
		return i.Value
	default:
		return ""
	}
}
