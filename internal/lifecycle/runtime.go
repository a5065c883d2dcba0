package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Named components get their name into logs and errors.
type Named interface {
	Name() string
}

type Runtime struct {
	mu         sync.Mutex
	components []Component
	started    []Component
}

func NewRuntime(components ...Component) *Runtime {
	r := &Runtime{}
	for _, component := range components {
		r.Register(component)
	}
	return r
}

func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, component)
}

// Start starts components in registration order. On failure the already started
// ones are stopped in reverse order and the start error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := make([]Component, 0, len(r.components))
	for _, component := range r.components {
		entry := log.WithField("component", nameOf(component))
		if err := component.Start(ctx); err != nil {
			entry.WithError(err).Error("cant start component")
			_ = stopComponents(ctx, started)
			return fmt.Errorf("start component %s: %w", nameOf(component), err)
		}
		entry.Debug("component started")
		started = append(started, component)
	}
	r.started = started
	return nil
}

// Stop stops whatever Start brought up, in reverse order, joining all errors.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := stopComponents(ctx, r.started)
	r.started = nil
	return err
}

func stopComponents(ctx context.Context, components []Component) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		entry := log.WithField("component", nameOf(component))
		if err := component.Stop(ctx); err != nil {
			entry.WithError(err).Warn("cant stop component")
			stopErr = errors.Join(stopErr, fmt.Errorf("stop component %s: %w", nameOf(component), err))
			continue
		}
		entry.Debug("component stopped")
	}
	return stopErr
}

func nameOf(component Component) string {
	if named, ok := component.(Named); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", component)
}
