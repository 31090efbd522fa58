// Package registry catalogs the processors available for orchestration.
// Registration is append-friendly: administrators install processors into
// priority buckets, and the orchestrator resolves them by name in stable
// registration order.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evmfactory/paygate/types"
)

// Descriptor describes one installed processor. Immutable after
// registration except for replacement by a new registration with the same
// name, which is treated as an upgrade.
type Descriptor struct {
	Name           string
	Processor      types.Processor
	PriorityBucket uint8
	// seq is the registration order used for deterministic iteration.
	seq uint64
}

// ProcessorRegistry owns the installed-processor catalog.
type ProcessorRegistry struct {
	mu      sync.RWMutex
	byName  map[string]*Descriptor
	nextSeq uint64
}

// New creates an empty registry.
func New() *ProcessorRegistry {
	return &ProcessorRegistry{byName: make(map[string]*Descriptor)}
}

// Register installs a processor into a priority bucket. A nil processor,
// empty name or already-registered name is rejected; upgrades go through
// Replace instead.
func (r *ProcessorRegistry) Register(p types.Processor, bucket uint8) error {
	if p == nil {
		return types.NewError(types.ErrZeroAddress, "processor must not be nil")
	}
	name := p.Name()
	if name == "" {
		return types.NewError(types.ErrInvalidConfig, "processor name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return &types.Error{
			Code:    types.ErrDuplicateProcessor,
			Message: fmt.Sprintf("processor %q is already registered", name),
		}
	}
	r.byName[name] = &Descriptor{
		Name:           name,
		Processor:      p,
		PriorityBucket: bucket,
		seq:            r.nextSeq,
	}
	r.nextSeq++
	return nil
}

// Replace upgrades an installed processor in place. The descriptor keeps
// its original ordering slot so module behavior does not silently reorder.
func (r *ProcessorRegistry) Replace(p types.Processor, bucket uint8) error {
	if p == nil {
		return types.NewError(types.ErrZeroAddress, "processor must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.byName[p.Name()]
	if !ok {
		return &types.Error{
			Code:    types.ErrUnknownProcessor,
			Message: fmt.Sprintf("processor %q is not registered", p.Name()),
		}
	}
	prev.Processor = p
	prev.PriorityBucket = bucket
	return nil
}

// Lookup resolves a processor by name.
func (r *ProcessorRegistry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return nil, &types.Error{
			Code:    types.ErrUnknownProcessor,
			Message: fmt.Sprintf("processor %q is not registered", name),
		}
	}
	return d, nil
}

// ProcessorsByBucket returns the processors installed in one priority
// bucket, in registration order.
func (r *ProcessorRegistry) ProcessorsByBucket(bucket uint8) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, d := range r.byName {
		if d.PriorityBucket == bucket {
			out = append(out, d)
		}
	}
	sortDescriptors(out)
	return out
}

// Ordered returns every installed processor sorted by priority bucket, then
// registration order. This is the execution order the orchestrator follows,
// independent of configuration call ordering.
func (r *ProcessorRegistry) Ordered() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sortDescriptors(out)
	return out
}

func sortDescriptors(ds []*Descriptor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].PriorityBucket != ds[j].PriorityBucket {
			return ds[i].PriorityBucket < ds[j].PriorityBucket
		}
		return ds[i].seq < ds[j].seq
	})
}
