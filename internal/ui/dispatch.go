package ui

import (
	"context"
	"fmt"

	"github.com/kilnworks/kiln/internal/gateway"
	"go.uber.org/zap"
)

// Dispatcher routes inbound UI events to a component handler and guarantees
// exactly one correlated reply per event, success or failure.
type Dispatcher struct {
	dir    *Directory
	gw     *gateway.Gateway
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over the component directory.
func NewDispatcher(dir *Directory, gw *gateway.Gateway, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{dir: dir, gw: gw, logger: logger}
}

// Handle processes one inbound event. The handler runs on its own
// goroutine so a long-running tool invocation never blocks unrelated
// events. Every failure path, panics included, turns into a
// success=false reply; the connection is never left pending.
func (d *Dispatcher) Handle(ev *gateway.Event) {
	go d.dispatch(ev)
}

func (d *Dispatcher) dispatch(ev *gateway.Event) {
	ctx := context.Background()

	body, err := d.invoke(ctx, ev)
	if err != nil {
		d.logger.Error("ui dispatch failed",
			zap.String("component", ev.Component),
			zap.String("action", ev.Action),
			zap.Error(err))
		body = map[string]any{"success": false, "error": err.Error()}
	}

	reply := &gateway.Reply{
		ConnID:    ev.ConnID,
		Component: ev.Component,
		Action:    ev.Action,
		RequestID: ev.RequestID,
		Body:      body,
	}
	if sendErr := d.gw.Send(ctx, ev.Adapter, reply); sendErr != nil {
		d.logger.Error("ui reply send failed",
			zap.String("conn", ev.ConnID), zap.Error(sendErr))
	}
}

func (d *Dispatcher) invoke(ctx context.Context, ev *gateway.Event) (body map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			body = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	comp, ok := d.dir.Get(ev.Component)
	if !ok {
		return nil, fmt.Errorf("unknown component %q", ev.Component)
	}
	handler, ok := comp.Handler(ev.Action)
	if !ok {
		return nil, fmt.Errorf("component %s has no action %q", comp.ID, ev.Action)
	}
	return handler(ctx, ev.Payload)
}
