package netutil

import (
	"fmt"
	"net"
	"strings"
)

// SelectBindAddr returns preferred when it can be listened on. Otherwise, if
// autoFallback is set, it returns the first free candidate.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	tried := make([]string, 0, len(candidates)+1)
	if preferred != "" {
		if IsAddrAvailable(preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("netutil: bind address in use: %s", preferred)
		}
		tried = append(tried, preferred)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if IsAddrAvailable(addr) {
			return addr, nil
		}
		tried = append(tried, addr)
	}
	return "", fmt.Errorf("netutil: no free bind address (tried %s)", strings.Join(tried, ", "))
}

// IsAddrAvailable reports whether a TCP listener can be opened on addr.
func IsAddrAvailable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
