package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator compiles and caches JSON schemas for registered tools and
// validates call arguments against them before dispatch.
type Validator struct {
	mu      sync.RWMutex
	schemas map[Ident]*jsonschema.Schema
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{schemas: make(map[Ident]*jsonschema.Schema)}
}

// Register compiles spec.InputSchema and stores it under spec.Name. A tool
// with no schema (nil InputSchema) is registered as always-valid.
func (v *Validator) Register(spec Spec) error {
	if len(spec.InputSchema) == 0 {
		v.mu.Lock()
		delete(v.schemas, spec.Name)
		v.mu.Unlock()
		return nil
	}

	resourceID := "mem://tools/" + string(spec.Name) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(spec.InputSchema)); err != nil {
		return fmt.Errorf("tools: compiling schema for %q: %w", spec.Name, err)
	}
	schema, err := compiler.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("tools: resolving schema for %q: %w", spec.Name, err)
	}

	v.mu.Lock()
	v.schemas[spec.Name] = schema
	v.mu.Unlock()
	return nil
}

// Validate checks args against the schema registered for name. A tool
// with no registered schema validates successfully; ValidateKnown is the
// variant that returns ErrUnknownTool for such a tool.
func (v *Validator) Validate(name Ident, args map[string]any) error {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	// jsonschema validates against decoded JSON values (map[string]any,
	// []any, float64, ...), so round-trip through encoding/json to
	// normalize Go-native types (e.g. int, time.Time) the same way the
	// wire payload would have been decoded.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tools: marshaling args for %q: %w", name, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("tools: unmarshaling args for %q: %w", name, err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("tools: invalid arguments for %q: %w", name, err)
	}
	return nil
}

// ValidateKnown behaves like Validate but additionally requires that name
// has a registered schema.
func (v *Validator) ValidateKnown(name Ident, args map[string]any) error {
	v.mu.RLock()
	_, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return &ErrUnknownTool{Name: name}
	}
	return v.Validate(name, args)
}
