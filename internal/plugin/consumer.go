package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signbridge/internal/dispatch"
	"github.com/ayusman/signbridge/internal/store"
)

// ErrPluginRefused is returned when a plugin answers with success false.
var ErrPluginRefused = errors.New("plugin refused request")

// BindingSource looks up the binding for a sign. A nil binding with a nil
// error means the sign is unbound.
type BindingSource interface {
	GetBySignName(signName string) (*store.Binding, error)
}

// Consumer delivers recognized signs to the plugin bound to each sign. Signs
// without a binding fall back to the default binding, if one is set, and
// are otherwise ignored.
type Consumer struct {
	manager  *Manager
	executor *Executor
	bindings BindingSource
	fallback *store.Binding
	log      logrus.FieldLogger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithDefaultBinding routes unbound signs to plugin/action.
func WithDefaultBinding(pluginName, action string, config json.RawMessage) ConsumerOption {
	return func(c *Consumer) {
		if pluginName == "" {
			return
		}
		c.fallback = &store.Binding{PluginName: pluginName, ActionName: action, Config: config, Enabled: true}
	}
}

// NewConsumer creates a plugin consumer. bindings may be nil.
func NewConsumer(manager *Manager, executor *Executor, bindings BindingSource, log logrus.FieldLogger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{manager: manager, executor: executor, bindings: bindings, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements dispatch.Consumer.
func (c *Consumer) Name() string { return "plugin" }

// Deliver implements dispatch.Consumer.
func (c *Consumer) Deliver(ctx context.Context, e dispatch.Event) error {
	b, err := c.binding(e.SignName)
	if err != nil {
		return fmt.Errorf("lookup binding for %q: %w", e.SignName, err)
	}
	if b == nil || !b.Enabled {
		return nil
	}

	p, err := c.manager.Get(b.PluginName)
	if err != nil {
		return fmt.Errorf("%s: %w", b.PluginName, err)
	}

	config := b.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	req := &Request{
		Action:     b.ActionName,
		EventID:    e.ID,
		Sign:       e.SignName,
		Category:   e.Category,
		Confidence: e.Confidence,
		SessionID:  e.SessionID,
		Timestamp:  e.Timestamp.UnixMilli(),
		Config:     config,
	}

	resp, err := c.executor.Execute(ctx, p, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s: %s", ErrPluginRefused, p.Manifest.Name, resp.Error)
	}

	c.log.WithFields(logrus.Fields{
		"plugin": p.Manifest.Name,
		"action": b.ActionName,
		"sign":   e.SignName,
	}).Debug("plugin executed")
	return nil
}

func (c *Consumer) binding(sign string) (*store.Binding, error) {
	if c.bindings != nil {
		b, err := c.bindings.GetBySignName(sign)
		if err != nil || b != nil {
			return b, err
		}
	}
	return c.fallback, nil
}
