package server

import (
	"context"

	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/store"
)

// StoreClient implements editor.DataClient in process, so overlay sessions
// and the terminal editor can use the store without an HTTP round trip.
type StoreClient struct {
	Store *store.Store
	Pages *store.Pages
	// OnSave is called after a successful save.
	OnSave func(site, path string)
}

var _ editor.DataClient = (*StoreClient)(nil)

// Load implements editor.DataClient.
func (c *StoreClient) Load(ctx context.Context, site, path string) (string, error) {
	if c.Store == nil {
		return "", errors.NewIOError(errors.ErrCodeNotFound, "data store is not configured", nil)
	}
	data, err := c.Store.Load(ctx, site, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Save implements editor.DataClient.
func (c *StoreClient) Save(ctx context.Context, site, path, body string) error {
	if c.Store == nil {
		return errors.NewIOError(errors.ErrCodeNotFound, "data store is not configured", nil)
	}
	if err := c.Store.Replace(ctx, site, path, []byte(body)); err != nil {
		return err
	}
	if c.OnSave != nil {
		c.OnSave(site, path)
	}
	return nil
}

// Swap implements editor.DataClient.
func (c *StoreClient) Swap(ctx context.Context, req editor.SwapRequest) error {
	if c.Pages == nil {
		return errors.NewIOError(errors.ErrCodeNotFound, "page sources are not configured", nil)
	}
	return c.Pages.Swap(ctx, req.Page,
		store.SwapSide{Name: req.First.Name, Order: req.First.Order},
		store.SwapSide{Name: req.Second.Name, Order: req.Second.Order})
}
