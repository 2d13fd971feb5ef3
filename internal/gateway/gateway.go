package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Gateway manages connection adapters and fans inbound UI events to a
// single handler.
type Gateway struct {
	adapters map[string]Adapter
	handler  EventHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// New creates a gateway manager.
func New(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetHandler sets the callback for all inbound events. Register captures the
// handler indirectly, so SetHandler may be called before or after Register.
func (g *Gateway) SetHandler(h EventHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

// Register adds an adapter and wires its event callback.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := adapter.Name()
	g.adapters[name] = adapter
	adapter.OnEvent(func(ev *Event) {
		ev.Adapter = name
		g.mu.RLock()
		h := g.handler
		g.mu.RUnlock()
		if h != nil {
			h(ev)
		}
	})
	g.logger.Info("registered gateway adapter", zap.String("adapter", name))
}

// StartAll starts every registered adapter.
func (g *Gateway) StartAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for name, adapter := range g.adapters {
		if err := adapter.Start(ctx); err != nil {
			g.logger.Error("adapter start failed",
				zap.String("adapter", name), zap.Error(err))
			return fmt.Errorf("start %s: %w", name, err)
		}
	}
	return nil
}

// Send delivers a reply over the adapter that produced the original event.
func (g *Gateway) Send(ctx context.Context, adapterName string, reply *Reply) error {
	g.mu.RLock()
	adapter, ok := g.adapters[adapterName]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no adapter: %s", adapterName)
	}
	return adapter.Send(ctx, reply)
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for name, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("adapter", name), zap.Error(err))
		}
	}
	return nil
}
