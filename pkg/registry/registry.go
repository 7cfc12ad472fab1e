// Package registry holds the table of installed action and trigger
// handlers, keyed by app and handler identifier. The table is populated at
// boot and frozen before any execution is dispatched.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/protocol"
)

var (
	ErrHandlerNotFound = errors.New("handler not registered")
	ErrRegistryFrozen  = errors.New("registry is frozen")
)

// ActionDescriptor registers one action handler under (AppID, ActionID).
// ConfigSchema, when present, is a JSON Schema document validated against
// the node's raw configuration at save time.
type ActionDescriptor struct {
	AppID        string
	ActionID     string
	ConfigSchema map[string]any
	Handler      protocol.ActionHandler
}

// TriggerDescriptor registers one trigger handler under (AppID, TriggerID).
type TriggerDescriptor struct {
	AppID        string
	TriggerID    string
	ConfigSchema map[string]any
	Handler      protocol.TriggerHandler
}

type actionEntry struct {
	handler protocol.ActionHandler
	schema  *gojsonschema.Schema
}

type triggerEntry struct {
	handler protocol.TriggerHandler
	schema  *gojsonschema.Schema
}

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	frozen   bool
	actions  map[string]*actionEntry
	triggers map[string]*triggerEntry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		actions:  make(map[string]*actionEntry),
		triggers: make(map[string]*triggerEntry),
	}
}

func (r *Registry) RegisterAction(desc ActionDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	schema, err := compileSchema(desc.ConfigSchema)
	if err != nil {
		return fmt.Errorf("action %s/%s schema: %w", desc.AppID, desc.ActionID, err)
	}

	r.actions[handlerKey(desc.AppID, desc.ActionID)] = &actionEntry{
		handler: desc.Handler,
		schema:  schema,
	}

	r.logger.Debug("Registered action handler", "app_id", desc.AppID, "action_id", desc.ActionID)

	return nil
}

func (r *Registry) RegisterTrigger(desc TriggerDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	schema, err := compileSchema(desc.ConfigSchema)
	if err != nil {
		return fmt.Errorf("trigger %s/%s schema: %w", desc.AppID, desc.TriggerID, err)
	}

	r.triggers[handlerKey(desc.AppID, desc.TriggerID)] = &triggerEntry{
		handler: desc.Handler,
		schema:  schema,
	}

	r.logger.Debug("Registered trigger handler", "app_id", desc.AppID, "trigger_id", desc.TriggerID)

	return nil
}

// Freeze makes the table immutable. Lookups after Freeze need no lock
// discipline from callers; registration attempts fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// nolint:ireturn // The handler contract is an interface by design.
func (r *Registry) ActionHandler(appID, actionID string) (protocol.ActionHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.actions[handlerKey(appID, actionID)]
	if !ok {
		return nil, fmt.Errorf("action %s/%s: %w", appID, actionID, ErrHandlerNotFound)
	}

	return entry.handler, nil
}

// nolint:ireturn // The handler contract is an interface by design.
func (r *Registry) TriggerHandler(appID, triggerID string) (protocol.TriggerHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.triggers[handlerKey(appID, triggerID)]
	if !ok {
		return nil, fmt.Errorf("trigger %s/%s: %w", appID, triggerID, ErrHandlerNotFound)
	}

	return entry.handler, nil
}

// ValidateNode checks that the node references a registered handler and
// that its configuration satisfies the handler's schema.
func (r *Registry) ValidateNode(node *models.Node) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var schema *gojsonschema.Schema

	switch {
	case node.IsTrigger():
		entry, ok := r.triggers[handlerKey(node.AppID, node.TriggerID)]
		if !ok {
			return NewNodeValidationError(node.ID, fmt.Sprintf("trigger %s/%s is not installed", node.AppID, node.TriggerID))
		}

		schema = entry.schema
	default:
		entry, ok := r.actions[handlerKey(node.AppID, node.ActionID)]
		if !ok {
			return NewNodeValidationError(node.ID, fmt.Sprintf("action %s/%s is not installed", node.AppID, node.ActionID))
		}

		schema = entry.schema
	}

	if schema == nil {
		return nil
	}

	value := node.Value
	if value == nil {
		value = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return fmt.Errorf("failed to validate node %s configuration: %w", node.ID, err)
	}

	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}

		return NewNodeValidationError(node.ID, issues...)
	}

	return nil
}

func compileSchema(document map[string]any) (*gojsonschema.Schema, error) {
	if document == nil {
		return nil, nil
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(document))
}

func handlerKey(appID, handlerID string) string {
	return appID + "/" + handlerID
}
