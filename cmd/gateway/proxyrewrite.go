package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/trinityhades/luna-gateway/internal/gateway"
)

var tagURIPattern = regexp.MustCompile(`URI="([^"]*)"`)

// proxyRewriter maps playlist URIs onto the /proxy/:id/load endpoint so
// that players speaking plain HTTP, with no custom-scheme interception,
// can follow child playlists and segments through this server.
type proxyRewriter struct {
	gw        *gateway.Gateway
	sessionID string
	// base is the origin URL of the playlist being served; relative URIs
	// resolve against it
	base *url.URL
}

func newProxyRewriter(gw *gateway.Gateway, sessionID string, served *url.URL) *proxyRewriter {
	base, err := gw.ResolveURL(served)
	if err != nil {
		base = nil
	}
	return &proxyRewriter{gw: gw, sessionID: sessionID, base: base}
}

// rewrite processes every URI line and URI="..." tag attribute in an HLS
// playlist
func (p *proxyRewriter) rewrite(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if strings.Contains(trimmed, `URI="`) {
				lines[i] = tagURIPattern.ReplaceAllStringFunc(line, func(m string) string {
					inner := tagURIPattern.FindStringSubmatch(m)[1]
					return `URI="` + p.proxyURI(inner) + `"`
				})
			}
			continue
		}
		lines[i] = p.proxyURI(trimmed)
	}
	return strings.Join(lines, "\n")
}

// proxyURI maps one playlist URI onto the load endpoint. Synthetic URIs
// pass through as-is, origin URIs are registered for interception first,
// and anything that cannot be registered is left alone.
func (p *proxyRewriter) proxyURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	var synthetic string
	switch {
	case p.gw.ShouldLoad(u):
		synthetic = raw
	case u.Scheme == "http" || u.Scheme == "https":
		s, err := p.gw.PrepareURL(raw)
		if err != nil {
			return raw
		}
		synthetic = s
	case u.IsAbs():
		return raw
	default:
		if p.base == nil {
			return raw
		}
		s, err := p.gw.PrepareURL(p.base.ResolveReference(u).String())
		if err != nil {
			return raw
		}
		synthetic = s
	}
	return fmt.Sprintf("/proxy/%s/load?u=%s", p.sessionID, url.QueryEscape(synthetic))
}
