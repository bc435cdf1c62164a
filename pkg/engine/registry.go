package engine

import (
	"fmt"
	"sort"

	enginerrors "github.com/krishnasabbu/abinitio-backend-sub000/pkg/errors"
	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/workflow"
)

// Registry maps node types to behavior constructors. It is built once at
// startup and read-only afterwards; duplicate registration is a startup
// configuration error, not a runtime condition.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register binds a node type to a constructor. Registering a type twice
// is an error.
func (r *Registry) Register(nodeType string, ctor Constructor) error {
	if nodeType == "" {
		return enginerrors.NewConfigurationError("", "type", "node type cannot be empty")
	}
	if ctor == nil {
		return enginerrors.NewConfigurationError("", "type", fmt.Sprintf("constructor for %q cannot be nil", nodeType))
	}
	if _, exists := r.constructors[nodeType]; exists {
		return enginerrors.NewConfigurationError("", "type", fmt.Sprintf("node type %q registered twice", nodeType))
	}
	r.constructors[nodeType] = ctor
	return nil
}

// MustRegister registers and panics on error. For static startup wiring.
func (r *Registry) MustRegister(nodeType string, ctor Constructor) {
	if err := r.Register(nodeType, ctor); err != nil {
		panic(err)
	}
}

// Has reports whether a constructor exists for a node type.
func (r *Registry) Has(nodeType string) bool {
	_, ok := r.constructors[nodeType]
	return ok
}

// Types returns the registered node types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create builds the behavior for a node definition.
func (r *Registry) Create(def workflow.NodeDefinition) (Behavior, error) {
	ctor, ok := r.constructors[def.Type]
	if !ok {
		return nil, fmt.Errorf("node %s: type %q: %w", def.Id, def.Type, enginerrors.ErrUnknownNodeType)
	}
	return ctor(def)
}
