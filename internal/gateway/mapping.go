package gateway

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// urlMapping is the bidirectional association between synthetic
// custom-scheme URLs handed to the host player and the origin URLs they
// stand in for. Entries are appended during session setup and read-only
// during steady-state serving; the RWMutex is the minimum discipline for
// the few writes that happen after setup (materialized VTT resources).
type urlMapping struct {
	scheme string

	mu          sync.RWMutex
	toOrigin    map[string]string
	toSynthetic map[string]string
}

func newURLMapping(scheme string) *urlMapping {
	return &urlMapping{
		scheme:      scheme,
		toOrigin:    make(map[string]string),
		toSynthetic: make(map[string]string),
	}
}

// Prepare registers an origin URL for interception and returns the
// synthetic URL to hand to the host player: same authority, path and query
// with only the scheme swapped to the custom scheme.
func (m *urlMapping) Prepare(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin URL %q: %w", origin, err)
	}
	u.Scheme = m.scheme
	synthetic := u.String()

	m.Add(synthetic, origin)
	return synthetic, nil
}

// Add stores an explicit synthetic↔origin pair
func (m *urlMapping) Add(synthetic, origin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toOrigin[synthetic] = origin
	m.toSynthetic[origin] = synthetic
}

// Resolve maps an intercepted URL back to its origin. The explicit table
// wins; absent an entry, a URL bearing the custom scheme deterministically
// swaps back to https with the same authority, path and query.
func (m *urlMapping) Resolve(u *url.URL) (*url.URL, error) {
	m.mu.RLock()
	origin, ok := m.toOrigin[u.String()]
	m.mu.RUnlock()

	if ok {
		parsed, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("%w: stored origin %q is invalid: %v", ErrUnresolvableURL, origin, err)
		}
		return parsed, nil
	}

	if u.Scheme != m.scheme {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvableURL, u)
	}

	swapped := *u
	swapped.Scheme = "https"
	return &swapped, nil
}

// filePaths returns the local paths of all file-backed origins
// (materialized converted subtitles)
func (m *urlMapping) filePaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for _, origin := range m.toOrigin {
		if strings.HasPrefix(origin, "file://") {
			paths = append(paths, strings.TrimPrefix(origin, "file://"))
		}
	}
	return paths
}
