package tenant

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devlens/internal/errors"
)

func TestResolve(t *testing.T) {
	r := NewResolver([]Site{
		{ID: "example.com", Hosts: []string{"example.com", "WWW.example.com", "localhost"}},
		{ID: "acme", Hosts: []string{"acme.test", "::1"}},
	})
	assert.Equal(t, 2, r.Sites())

	tests := []struct {
		name    string
		host    string
		query   url.Values
		want    string
		wantErr bool
	}{
		{name: "exact host", host: "example.com", want: "example.com"},
		{name: "host with port", host: "localhost:4321", want: "example.com"},
		{name: "case insensitive", host: "www.EXAMPLE.com", want: "example.com"},
		{name: "ipv6 with port", host: "[::1]:4321", want: "acme"},
		{name: "override wins", host: "example.com", query: url.Values{"site": {"acme"}}, want: "acme"},
		{name: "override without host", host: "", query: url.Values{"site": {"acme"}}, want: "acme"},
		{name: "unknown override", host: "example.com", query: url.Values{"site": {"other"}}, wantErr: true},
		{name: "unknown host", host: "unknown.test", wantErr: true},
		{name: "empty host", host: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.host, tt.query)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeResolution))
				assert.Equal(t, errors.ErrCodeSiteUnresolved, errors.CodeOf(err))
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWithoutSites(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve("localhost:4321", nil)
	assert.Error(t, err)
}
