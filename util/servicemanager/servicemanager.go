// Package servicemanager owns the process-level startup/shutdown order for
// the node's components (SPEC_FULL.md §2.1): each registered service is
// Init'd then Started in registration order, and every registered service's
// Health feeds a single liveness/readiness HTTP surface. Grounded on the
// teacher main.go's servicemanager.NewServiceManager/AddService/HealthHandler/Wait
// call shape and the Init(ctx)/Start(ctx)/Stop(ctx)/Health(ctx) method set
// observed across the teacher's own services (e.g. services/coinbase/Coinbase.go,
// services/blockchain/Server.go).
package servicemanager

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bsv-blockchain/fullnode/ulogger"
)

// Service is the lifecycle contract every long-running component implements.
type Service interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (int, string, error)
}

type entry struct {
	name    string
	service Service
}

// ServiceManager runs every registered Service's Init then Start in
// registration order, and stops them in reverse order.
type ServiceManager struct {
	log ulogger.Logger

	mu       sync.Mutex
	entries  []entry
	started  []entry
	errCh    chan error
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewServiceManager constructs a manager and returns a context that Stop
// cancels; canceling that context does not itself stop any service.
func NewServiceManager(log ulogger.Logger) (*ServiceManager, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	sm := &ServiceManager{
		log:    log,
		errCh:  make(chan error, 1),
		cancel: cancel,
	}
	return sm, ctx
}

// AddService registers and immediately Inits then Starts a service. A
// failure at either stage is returned directly; the caller (main) is
// expected to treat it as fatal, matching the teacher's own
// "return err" propagation out of startServices.
func (sm *ServiceManager) AddService(name string, svc Service) error {
	ctx := context.Background()

	if err := svc.Init(ctx); err != nil {
		return fmt.Errorf("servicemanager: init %s: %w", name, err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("servicemanager: start %s: %w", name, err)
	}

	sm.mu.Lock()
	e := entry{name: name, service: svc}
	sm.entries = append(sm.entries, e)
	sm.started = append(sm.started, e)
	sm.mu.Unlock()

	sm.log.Infof("servicemanager: %s started", name)
	return nil
}

// HealthHandler aggregates every registered service's Health. liveness=true
// asks only whether the process itself is alive (always 200, even before
// any service has started); liveness=false additionally requires every
// service's own Health to report a non-error, 2xx status.
func (sm *ServiceManager) HealthHandler(ctx context.Context, liveness bool) (int, string, error) {
	sm.mu.Lock()
	entries := append([]entry(nil), sm.entries...)
	sm.mu.Unlock()

	if liveness {
		return http.StatusOK, "OK", nil
	}

	for _, e := range entries {
		status, details, err := e.service.Health(ctx)
		if err != nil || status >= 300 {
			return status, fmt.Sprintf("%s: %s", e.name, details), err
		}
	}
	return http.StatusOK, "OK", nil
}

// Wait blocks until a registered service reports a fatal error (none of the
// services in this tree currently push onto errCh; Wait exists so main's
// blocking shape matches the teacher's sm.Wait()).
func (sm *ServiceManager) Wait() error {
	return <-sm.errCh
}

// Stop stops every started service in reverse registration order.
func (sm *ServiceManager) Stop(ctx context.Context) {
	sm.stopOnce.Do(func() {
		if sm.cancel != nil {
			sm.cancel()
		}

		sm.mu.Lock()
		started := append([]entry(nil), sm.started...)
		sm.mu.Unlock()

		for i := len(started) - 1; i >= 0; i-- {
			e := started[i]
			if err := e.service.Stop(ctx); err != nil && sm.log != nil {
				sm.log.Errorf("servicemanager: stopping %s: %v", e.name, err)
			}
		}
	})
}
