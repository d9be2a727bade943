package builder

import (
	"fmt"
	"reflect"
)

// Direction indicates parameter data flow
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInOut
	DirectionTemp
	DirectionScalar
)

// ParamBuilder provides a fluent interface for building kernel parameters
type ParamBuilder struct {
	Spec ParamSpec
}

// ParamSpec holds the complete specification for a kernel parameter
type ParamSpec struct {
	Name        string
	Direction   Direction
	HostBinding interface{} // [][]T, []T for a single partition, or a scalar

	// Type and size (inferred or explicit)
	DataType DataType
	Size     int64 // total values; for Temp, values per node times sum(K)

	// Data movement
	DoCopyTo    bool
	DoCopyBack  bool
	ConvertType DataType // 0 means no conversion

	// Memory attributes
	Alignment AlignmentType
}

func newParam(name string, dir Direction) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: name, Direction: dir}}
}

// Input creates a parameter specification for a const input
func Input(deviceName string) *ParamBuilder { return newParam(deviceName, DirectionInput) }

// Output creates a parameter specification for a non-const output
func Output(deviceName string) *ParamBuilder { return newParam(deviceName, DirectionOutput) }

// InOut creates a parameter specification for a non-const input/output
func InOut(deviceName string) *ParamBuilder { return newParam(deviceName, DirectionInOut) }

// Scalar creates a parameter specification for a scalar value
func Scalar(deviceName string) *ParamBuilder { return newParam(deviceName, DirectionScalar) }

// Temp creates a parameter specification for a device-only temporary array
func Temp(deviceName string) *ParamBuilder { return newParam(deviceName, DirectionTemp) }

// Bind associates a host variable with this parameter
func (p *ParamBuilder) Bind(hostVar interface{}) *ParamBuilder {
	p.Spec.HostBinding = hostVar
	p.inferFromBinding()
	return p
}

// Copy sets bidirectional copy (host→device before, device→host after)
func (p *ParamBuilder) Copy() *ParamBuilder {
	p.Spec.DoCopyTo = true
	p.Spec.DoCopyBack = true
	return p
}

// CopyTo sets host→device copy before kernel execution
func (p *ParamBuilder) CopyTo() *ParamBuilder {
	p.Spec.DoCopyTo = true
	return p
}

// CopyBack sets device→host copy after kernel execution
func (p *ParamBuilder) CopyBack() *ParamBuilder {
	p.Spec.DoCopyBack = true
	return p
}

// Convert sets type conversion during copy operations
func (p *ParamBuilder) Convert(toType DataType) *ParamBuilder {
	p.Spec.ConvertType = toType
	return p
}

// Type sets explicit type (mainly for Temp arrays)
func (p *ParamBuilder) Type(dataType DataType) *ParamBuilder {
	p.Spec.DataType = dataType
	return p
}

// Size sets explicit size (mainly for Temp arrays)
func (p *ParamBuilder) Size(elements int) *ParamBuilder {
	p.Spec.Size = int64(elements)
	return p
}

// Align sets memory alignment requirements
func (p *ParamBuilder) Align(alignment AlignmentType) *ParamBuilder {
	p.Spec.Alignment = alignment
	return p
}

func dataTypeOfKind(kind reflect.Kind) DataType {
	switch kind {
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.Int32:
		return INT32
	case reflect.Int, reflect.Int64:
		return INT64
	default:
		return 0
	}
}

// inferFromBinding extracts type and size information from the host binding
func (p *ParamBuilder) inferFromBinding() {
	if p.Spec.HostBinding == nil {
		return
	}
	v := reflect.ValueOf(p.Spec.HostBinding)
	t := v.Type()

	switch {
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Slice:
		total := 0
		for i := 0; i < v.Len(); i++ {
			total += v.Index(i).Len()
		}
		p.Spec.Size = int64(total)
		p.Spec.DataType = dataTypeOfKind(t.Elem().Elem().Kind())
	case t.Kind() == reflect.Slice:
		p.Spec.Size = int64(v.Len())
		p.Spec.DataType = dataTypeOfKind(t.Elem().Kind())
	default:
		p.Spec.Size = 1
		p.Spec.DataType = dataTypeOfKind(t.Kind())
	}
}

// Validate checks if the parameter specification is complete and valid
func (p *ParamSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}

	if p.Direction == DirectionScalar {
		if p.DataType == 0 {
			return fmt.Errorf("scalar %s needs a numeric type or binding", p.Name)
		}
		return nil
	}

	if p.Size == 0 {
		return fmt.Errorf("array %s needs size", p.Name)
	}
	if p.DataType == 0 {
		return fmt.Errorf("array %s needs type", p.Name)
	}

	if p.Direction == DirectionTemp {
		if p.HostBinding != nil {
			return fmt.Errorf("temp array %s cannot have host binding", p.Name)
		}
		if p.DoCopyTo || p.DoCopyBack {
			return fmt.Errorf("temp array %s cannot have copy operations", p.Name)
		}
	}
	return nil
}

// IsConst returns whether this parameter should be const in the kernel signature
func (p *ParamSpec) IsConst() bool {
	switch p.Direction {
	case DirectionOutput, DirectionInOut, DirectionTemp:
		return false
	default:
		return true
	}
}

// GetEffectiveType returns the type to use on device (considering conversion)
func (p *ParamSpec) GetEffectiveType() DataType {
	if p.ConvertType != 0 {
		return p.ConvertType
	}
	return p.DataType
}
