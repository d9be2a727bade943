package runner

import (
	"fmt"
	"strings"

	"github.com/notargets/MLNodeKernel/runner/builder"
)

// KernelConfig is the parameter list of one kernel, in signature order, with
// the copies to perform around each execution
type KernelConfig struct {
	Name       string
	Parameters []ParameterUsage
}

// CopyConfig represents a standalone memory copy operation configuration
type CopyConfig struct {
	Parameters []ParameterUsage
}

// ParamConfig is a lightweight builder for configuring parameter actions
type ParamConfig struct {
	name    string
	binding *DeviceBinding
	actions ActionFlags
}

// Param creates a parameter configuration for a named binding
func (kr *Runner) Param(name string) *ParamConfig {
	return &ParamConfig{name: name, binding: kr.GetBinding(name)}
}

// CopyTo sets the parameter to copy from host to device
func (pc *ParamConfig) CopyTo() *ParamConfig {
	pc.actions |= CopyTo
	return pc
}

// CopyBack sets the parameter to copy from device to host
func (pc *ParamConfig) CopyBack() *ParamConfig {
	pc.actions |= CopyBack
	return pc
}

// Copy sets the parameter for bidirectional copy
func (pc *ParamConfig) Copy() *ParamConfig {
	pc.actions |= Copy
	return pc
}

func (kr *Runner) usages(params []*ParamConfig) ([]ParameterUsage, error) {
	usages := make([]ParameterUsage, 0, len(params))
	for _, param := range params {
		if param == nil {
			continue
		}
		if param.binding == nil {
			return nil, fmt.Errorf("parameter %s has no binding", param.name)
		}
		if param.actions != NoAction && (param.binding.IsScalar || param.binding.IsTemp) {
			return nil, fmt.Errorf("parameter %s cannot be copied", param.name)
		}
		usages = append(usages, ParameterUsage{Binding: param.binding, Actions: param.actions})
	}
	return usages, nil
}

// ConfigureKernel creates a kernel-specific parameter configuration
func (kr *Runner) ConfigureKernel(name string, params ...*ParamConfig) (*KernelConfig, error) {
	if !kr.IsAllocated {
		return nil, fmt.Errorf("device memory not allocated - call AllocateDevice first")
	}
	usages, err := kr.usages(params)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", name, err)
	}
	config := &KernelConfig{Name: name, Parameters: usages}
	kr.KernelConfigs[name] = config
	return config, nil
}

// ConfigureCopy creates a configuration for standalone memory operations
func (kr *Runner) ConfigureCopy(params ...*ParamConfig) (*CopyConfig, error) {
	if !kr.IsAllocated {
		return nil, fmt.Errorf("device memory not allocated - call AllocateDevice first")
	}
	usages, err := kr.usages(params)
	if err != nil {
		return nil, err
	}
	return &CopyConfig{Parameters: usages}, nil
}

// ExecuteCopy executes a copy configuration
func (kr *Runner) ExecuteCopy(config *CopyConfig) error {
	if config == nil {
		return fmt.Errorf("copy configuration is nil")
	}
	return kr.executeCopyActions(config.Parameters)
}

// KernelArgument represents a single kernel argument with metadata
type KernelArgument struct {
	Name      string
	Type      string
	MemoryKey string // Key in PooledMemory, empty for scalars
	IsConst   bool
	Category  string // "system", "array_data", "array_offset", "scalar"
	Binding   *DeviceBinding
}

// pointerType maps a device type to its typedef when it matches
func (kr *Runner) pointerType(dt builder.DataType) string {
	switch dt {
	case kr.FloatType:
		return "real_t"
	case kr.IntType:
		return "int_t"
	default:
		return dt.CName()
	}
}

// GetKernelArguments returns the ordered argument list of a configuration:
// K, then for each array its data and offsets, then scalars
func (kr *Runner) GetKernelArguments(config *KernelConfig) []KernelArgument {
	args := []KernelArgument{{
		Name: "K", Type: "int_t*", MemoryKey: "K", IsConst: true, Category: "system",
	}}

	for _, usage := range config.Parameters {
		b := usage.Binding
		if b.IsScalar {
			continue
		}
		args = append(args,
			KernelArgument{
				Name:      b.Name + "_global",
				Type:      kr.pointerType(b.DeviceType) + "*",
				MemoryKey: b.Name + "_global",
				IsConst:   !b.IsOutput,
				Category:  "array_data",
				Binding:   b,
			},
			KernelArgument{
				Name:      b.Name + "_offsets",
				Type:      "int_t*",
				MemoryKey: b.Name + "_offsets",
				IsConst:   true,
				Category:  "array_offset",
				Binding:   b,
			})
	}

	for _, usage := range config.Parameters {
		b := usage.Binding
		if b.IsScalar {
			args = append(args, KernelArgument{
				Name:     b.Name,
				Type:     kr.pointerType(b.DeviceType),
				IsConst:  true,
				Category: "scalar",
				Binding:  b,
			})
		}
	}
	return args
}

// GetSignature generates the kernel parameter list for a configuration
func (kc *KernelConfig) GetSignature(kr *Runner) (string, error) {
	if kc == nil {
		return "", fmt.Errorf("kernel configuration is nil")
	}
	args := kr.GetKernelArguments(kc)
	params := make([]string, 0, len(args))
	for _, karg := range args {
		constStr := ""
		if karg.IsConst {
			constStr = "const "
		}
		params = append(params, fmt.Sprintf("%s%s %s", constStr, karg.Type, karg.Name))
	}
	return strings.Join(params, ",\n\t"), nil
}
