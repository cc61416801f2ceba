package connmgr

import "net"

// Whitelist is a set of endpoint or CIDR entries exempt from the IBD
// inbound-acceptance check (§4.5), matching settings.ConnMgrSettings.Whitelist
// (the "whitelist=<ep/cidr>" option).
type Whitelist []string

// Allows reports whether host (no port) matches any whitelist entry, either a
// bare IP/host:port endpoint or a CIDR range.
func (w Whitelist) Allows(host string) bool {
	if len(w) == 0 {
		return false
	}

	ip := net.ParseIP(host)
	for _, entry := range w {
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if ip != nil && cidr.Contains(ip) {
				return true
			}
			continue
		}

		entryHost := entry
		if h, _, err := net.SplitHostPort(entry); err == nil {
			entryHost = h
		}
		if entryHost == host {
			return true
		}
	}
	return false
}
