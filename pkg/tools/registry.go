package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CycleError reports a dependency cycle among registered tools.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	sort.Strings(e.Members)
	return fmt.Sprintf("tool dependency cycle involving: %s", strings.Join(e.Members, ", "))
}

type registration struct {
	tool   Tool
	def    Definition
	schema *jsonschema.Schema
}

// Registry owns the set of callable tools and their dependency graph.
// The graph is a DAG; a registration that would introduce a cycle is
// rejected and leaves the registry unchanged. Reads dominate after startup.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registration
	order   []string // registration order, for stable listings
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registration)}
}

// Register inserts a tool and rebuilds the dependency graph. Dependencies on
// not-yet-registered tools are allowed; they surface from
// ValidateDependencies at dispatch time.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool has empty name")
	}

	var schema *jsonschema.Schema
	if len(def.Parameters) > 0 {
		var err error
		schema, err = compileSchema(def.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s has invalid parameter schema: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cycle := r.wouldCycle(def); cycle != nil {
		return cycle
	}

	if _, exists := r.entries[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.entries[def.Name] = &registration{tool: t, def: def, schema: schema}
	return nil
}

// Get returns the tool registered under name, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.entries[name]; ok {
		return reg.tool
	}
	return nil
}

// Definitions returns all registered definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].def)
	}
	return out
}

// ValidateDependencies returns whether every tool in the transitive
// dependency closure of name is registered, plus the missing names.
func (r *Registry) ValidateDependencies(name string) (bool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	seen := map[string]bool{}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true

		reg, ok := r.entries[cur]
		if !ok {
			if cur != name {
				missing = append(missing, cur)
			}
			continue
		}
		queue = append(queue, reg.def.RequiredTools...)
	}
	sort.Strings(missing)
	return len(missing) == 0, missing
}

// ExecutionOrder returns the tool names topologically sorted so that every
// tool appears after its dependencies. Only registered tools participate.
func (r *Registry) ExecutionOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topoSort(nil)
}

// wouldCycle checks whether adding def creates a cycle. Caller holds the lock.
func (r *Registry) wouldCycle(def Definition) *CycleError {
	_, err := r.topoSort(&def)
	var cyc *CycleError
	if err != nil {
		// topoSort only fails with *CycleError
		if ce, ok := err.(*CycleError); ok {
			cyc = ce
		}
	}
	return cyc
}

// topoSort runs Kahn's algorithm over the registered tools, optionally with
// one extra (pending) definition layered in. Edges run dependency → dependent.
func (r *Registry) topoSort(pending *Definition) ([]string, error) {
	deps := make(map[string][]string, len(r.entries)+1)
	for name, reg := range r.entries {
		deps[name] = reg.def.RequiredTools
	}
	if pending != nil {
		deps[pending.Name] = pending.RequiredTools
	}

	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for name, required := range deps {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range required {
			if _, known := deps[dep]; !known {
				// Unregistered dependency: not part of the graph yet.
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(indegree))
	for name, d := range indegree {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		next := dependents[cur]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(indegree) {
		var members []string
		for name, d := range indegree {
			if d > 0 {
				members = append(members, name)
			}
		}
		return nil, &CycleError{Members: members}
	}
	return order, nil
}

func (r *Registry) schemaFor(name string) *jsonschema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.entries[name]; ok {
		return reg.schema
	}
	return nil
}

func (r *Registry) definitionFor(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.entries[name]; ok {
		return reg.def, true
	}
	return Definition{}, false
}
