package editor

import (
	"context"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/registry"
	"github.com/conneroisu/devlens/internal/types"
)

// Direction is a reorder direction.
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// String returns the string representation of the Direction
func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Reorderer swaps adjacent components through the persistence service.
type Reorderer struct {
	client DataClient
	reload func()
	logger logging.Logger
}

// NewReorderer creates a reorderer. reload is called after a successful swap
// in standalone mode.
func NewReorderer(client DataClient, reload func(), logger logging.Logger) *Reorderer {
	return &Reorderer{client: client, reload: reload, logger: logger.WithComponent("reorder")}
}

// Move swaps id with its neighbor in direction dir on page. In embedded mode
// the page is not reloaded and the displayed order stays stale until the next
// load.
func (r *Reorderer) Move(ctx context.Context, reg *registry.Registry, id string, dir Direction, page, site string) error {
	if site == "" {
		return errors.ErrSiteUnresolved("")
	}
	c, ok := reg.Get(id)
	if !ok {
		return errors.ErrComponentNotFound(id)
	}
	other, err := reg.Neighbor(id, int(dir))
	if err != nil {
		return err
	}

	first, second := c, other
	if dir == Up {
		first, second = other, c
	}
	if second.Order != first.Order+1 {
		return errors.NewValidationError(errors.ErrCodeNotAdjacent, "components are not adjacent")
	}

	req := SwapRequest{
		Page:   page,
		Site:   site,
		First:  SwapSide{Name: first.Name, Order: first.Order},
		Second: SwapSide{Name: second.Name, Order: second.Order},
	}
	if err := r.client.Swap(ctx, req); err != nil {
		r.logger.Error(ctx, err, "Swap failed", "id", id, "direction", dir.String(), "page", page)
		return err
	}

	if reg.Mode() == types.ModeEmbedded {
		r.logger.Info(ctx, "Swapped components; reload deferred", "first", first.ID, "second", second.ID, "page", page)
		return nil
	}
	r.logger.Info(ctx, "Swapped components", "first", first.ID, "second", second.ID, "page", page)
	if r.reload != nil {
		r.reload()
	}
	return nil
}
