// Package hostutil checks the host part of ingest and source URLs.
package hostutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// MaxHostnameLen is the DNS limit on a full name.
const MaxHostnameLen = 253

// ValidateHost accepts an IPv4 address, an IPv6 literal (bracketed or not)
// or an RFC 1123 hostname.
func ValidateHost(raw string) error {
	switch {
	case raw == "":
		return errors.New("empty host")
	case looksLikeIPv4(raw):
		if ip := net.ParseIP(raw); ip == nil || ip.To4() == nil {
			return fmt.Errorf("bad IP: '%s'", raw)
		}
	case strings.Contains(raw, ":") || strings.HasPrefix(raw, "["):
		lit := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
		if ip := net.ParseIP(lit); ip == nil || ip.To4() != nil {
			return fmt.Errorf("bad IPv6: '%s'", raw)
		}
	default:
		if !validHostname(raw) {
			return fmt.Errorf("bad hostname: '%s'", raw)
		}
	}
	return nil
}

// looksLikeIPv4 reports a dotted quad of digits, valid or not.
func looksLikeIPv4(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return false
		}
	}
	return true
}

func validHostname(raw string) bool {
	raw = strings.TrimSuffix(raw, ".") // fully qualified
	if raw == "" || len(raw) > MaxHostnameLen {
		return false
	}
	for _, label := range strings.Split(raw, ".") {
		if len(label) < 1 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			isAlnum := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
			if !isAlnum && r != '-' {
				return false
			}
		}
	}
	return true
}
