package routeview

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"dispatchmap/internal/mapprovider"
	"dispatchmap/internal/metrics"
)

// Registry tracks the mounted views by id. Each view gets its own manager.
type Registry struct {
	deps Deps

	mu    sync.Mutex
	views map[string]*View
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, views: map[string]*View{}}
}

func (r *Registry) Mount(ctx context.Context, deliveryID string, backend mapprovider.Backend) (*View, error) {
	v, err := Mount(ctx, r.deps, deliveryID, backend)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.views[v.ID] = v
	r.mu.Unlock()
	metrics.ViewsMounted.Inc()
	log.Printf("op=routeview.mount view=%s delivery=%s provider=%s", v.ID, deliveryID, backend)
	return v, nil
}

func (r *Registry) Get(id string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	return v, ok
}

// Unmount closes and forgets the view. Unknown ids return false.
func (r *Registry) Unmount(id string) bool {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	v.Close()
	metrics.ViewsMounted.Dec()
	log.Printf("op=routeview.unmount view=%s delivery=%s", id, v.DeliveryID)
	return true
}

// ForDelivery returns the views showing deliveryID.
func (r *Registry) ForDelivery(deliveryID string) []*View {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*View
	for _, v := range r.views {
		if v.DeliveryID == deliveryID {
			out = append(out, v)
		}
	}
	return out
}

// RefreshDelivery refreshes every view of deliveryID in parallel.
func (r *Registry) RefreshDelivery(ctx context.Context, deliveryID string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range r.ForDelivery(deliveryID) {
		g.Go(func() error {
			if err := v.Refresh(gctx); err != nil && !errors.Is(err, ErrClosed) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// RefreshAll refreshes every mounted view, e.g. after an order changed.
func (r *Registry) RefreshAll(ctx context.Context) error {
	r.mu.Lock()
	ids := map[string]bool{}
	for _, v := range r.views {
		ids[v.DeliveryID] = true
	}
	r.mu.Unlock()
	var errs []error
	for id := range ids {
		if err := r.RefreshDelivery(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Close unmounts every view.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Unmount(id)
	}
}
