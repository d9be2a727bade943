package runner

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/notargets/MLNodeKernel/runner/builder"
)

// ActionFlags represents the memory operations to perform for a parameter
type ActionFlags int

const (
	NoAction ActionFlags = 0
	// Copy from host to device before kernel execution
	CopyTo ActionFlags = 1 << iota
	// Copy from device to host after kernel execution
	CopyBack
	Copy = CopyTo | CopyBack
)

// DeviceBinding represents a host↔device data binding
type DeviceBinding struct {
	Name        string
	HostBinding interface{} // [][]T, []T or scalar

	HostType   builder.DataType
	DeviceType builder.DataType

	IsScalar bool
	IsTemp   bool
	IsOutput bool

	// Values per partition, len NumPartitions for arrays
	PartitionSizes []int

	Alignment builder.AlignmentType
	ParamSpec *builder.ParamSpec
}

// ParameterUsage represents how a binding is used in a specific kernel or copy operation
type ParameterUsage struct {
	Binding *DeviceBinding
	Actions ActionFlags
}

// HasAction checks if a specific action is set
func (pu *ParameterUsage) HasAction(action ActionFlags) bool {
	return pu.Actions&action != 0
}

// DefineBindings establishes host↔device data relationships, once per runner
func (kr *Runner) DefineBindings(params ...*builder.ParamBuilder) error {
	if kr.IsAllocated {
		return fmt.Errorf("bindings cannot be defined after AllocateDevice has been called")
	}

	for i, p := range params {
		spec := p.Spec
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		binding, err := kr.createBindingFromParam(&spec)
		if err != nil {
			return fmt.Errorf("failed to create binding for %s: %w", spec.Name, err)
		}
		kr.Bindings[spec.Name] = binding
	}
	return nil
}

// createBindingFromParam converts a ParamSpec into a DeviceBinding
func (kr *Runner) createBindingFromParam(spec *builder.ParamSpec) (*DeviceBinding, error) {
	binding := &DeviceBinding{
		Name:        spec.Name,
		HostBinding: spec.HostBinding,
		HostType:    spec.DataType,
		DeviceType:  spec.GetEffectiveType(),
		IsOutput:    !spec.IsConst(),
		Alignment:   spec.Alignment,
		ParamSpec:   spec,
	}

	switch spec.Direction {
	case builder.DirectionScalar:
		binding.IsScalar = true
		binding.DeviceType = spec.DataType
		return binding, nil

	case builder.DirectionTemp:
		// K-proportional: Size values spread as Size/sum(K) per node
		binding.IsTemp = true
		total := kr.GetTotalNodes()
		if total == 0 || spec.Size%int64(total) != 0 {
			return nil, fmt.Errorf("temp size %d is not a multiple of the %d partition nodes",
				spec.Size, total)
		}
		perNode := int(spec.Size / int64(total))
		binding.PartitionSizes = make([]int, kr.NumPartitions)
		for p, k := range kr.K {
			binding.PartitionSizes[p] = k * perNode
		}
		return binding, nil
	}

	if spec.HostBinding == nil {
		return nil, fmt.Errorf("array %s has no host binding", spec.Name)
	}
	v := reflect.ValueOf(spec.HostBinding)
	switch {
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Slice:
		if v.Len() != kr.NumPartitions {
			return nil, fmt.Errorf("partition count mismatch for %s: expected %d, got %d",
				spec.Name, kr.NumPartitions, v.Len())
		}
		binding.PartitionSizes = make([]int, v.Len())
		for p := 0; p < v.Len(); p++ {
			binding.PartitionSizes[p] = v.Index(p).Len()
		}
	case v.Kind() == reflect.Slice:
		if kr.NumPartitions != 1 {
			return nil, fmt.Errorf("non-partitioned array %s provided to %d partitions",
				spec.Name, kr.NumPartitions)
		}
		binding.PartitionSizes = []int{v.Len()}
	default:
		return nil, fmt.Errorf("array %s bound to %T", spec.Name, spec.HostBinding)
	}
	return binding, nil
}

// GetBinding returns a binding by name
func (kr *Runner) GetBinding(name string) *DeviceBinding {
	return kr.Bindings[name]
}

// AllocateDevice allocates device memory for all defined bindings, in name
// order so the partition macros are generated deterministically
func (kr *Runner) AllocateDevice() error {
	if kr.IsAllocated {
		return fmt.Errorf("device memory already allocated")
	}
	if len(kr.Bindings) == 0 {
		return fmt.Errorf("no bindings defined - call DefineBindings first")
	}

	names := make([]string, 0, len(kr.Bindings))
	for name := range kr.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		binding := kr.Bindings[name]
		if binding.IsScalar {
			continue
		}
		spec := builder.ArraySpec{
			Name:           binding.Name,
			PartitionSizes: binding.PartitionSizes,
			Alignment:      binding.Alignment,
			DataType:       binding.DeviceType,
			IsOutput:       binding.IsOutput,
		}
		if err := kr.allocateSingleArray(spec); err != nil {
			return fmt.Errorf("failed to allocate array %s: %w", name, err)
		}
	}

	kr.IsAllocated = true
	return nil
}
