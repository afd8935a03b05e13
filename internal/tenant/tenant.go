// Package tenant resolves which site a browsing context belongs to.
//
// Resolution never falls back to a default site: an action that needs a site
// and cannot get one fails with a resolution error.
package tenant

import (
	"net"
	"net/url"
	"strings"

	"github.com/conneroisu/devlens/internal/errors"
)

// Site is one configured tenant and the hostnames it is served under.
type Site struct {
	ID    string
	Hosts []string
}

// Resolver maps hostnames and explicit overrides to site ids. It is
// immutable after construction and safe for concurrent use.
type Resolver struct {
	sites map[string]bool
	hosts map[string]string
}

// NewResolver builds a resolver over sites. Hostnames are matched case
// insensitively.
func NewResolver(sites []Site) *Resolver {
	r := &Resolver{
		sites: make(map[string]bool, len(sites)),
		hosts: make(map[string]string),
	}
	for _, s := range sites {
		r.sites[s.ID] = true
		for _, h := range s.Hosts {
			r.hosts[strings.ToLower(h)] = s.ID
		}
	}
	return r
}

// Sites returns the number of configured sites.
func (r *Resolver) Sites() int {
	return len(r.sites)
}

// Resolve returns the site for a request. An explicit "site" query parameter
// wins when it names a configured site; otherwise the hostname, with any port
// stripped, is matched against the configured hosts.
func (r *Resolver) Resolve(host string, query url.Values) (string, error) {
	if override := strings.TrimSpace(query.Get("site")); override != "" {
		if r.sites[override] {
			return override, nil
		}
		return "", errors.NewResolutionError(errors.ErrCodeSiteUnresolved,
			"unknown site override: "+override).WithContext("host", host)
	}

	name := stripPort(host)
	if site, ok := r.hosts[strings.ToLower(name)]; ok {
		return site, nil
	}
	return "", errors.ErrSiteUnresolved(host)
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
