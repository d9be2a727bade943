package runner

import (
	"fmt"

	"github.com/notargets/MLNodeKernel/runner/builder"
)

// SetScalar replaces the bound value of a scalar parameter
func (kr *Runner) SetScalar(name string, value interface{}) error {
	b := kr.GetBinding(name)
	if b == nil || !b.IsScalar {
		return fmt.Errorf("scalar %s not defined", name)
	}
	v, err := scalarAs(value, b.DeviceType)
	if err != nil {
		return fmt.Errorf("scalar %s: %w", name, err)
	}
	b.HostBinding = v
	return nil
}

// scalarAs converts a Go number to the exact type the kernel expects
func scalarAs(value interface{}, dt builder.DataType) (interface{}, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return nil, fmt.Errorf("unsupported scalar value %T", value)
	}
	switch dt {
	case builder.Float32:
		return float32(f), nil
	case builder.Float64:
		return f, nil
	case builder.INT32:
		return int32(f), nil
	case builder.INT64:
		return int64(f), nil
	}
	return nil, fmt.Errorf("unsupported scalar type %v", dt)
}

// ExecuteKernel copies inputs, runs the kernel and copies outputs back.
// Scalar values passed here override the bound values in parameter order.
func (kr *Runner) ExecuteKernel(name string, scalarValues ...interface{}) error {
	config, exists := kr.KernelConfigs[name]
	if !exists {
		return fmt.Errorf("kernel %s not configured - use ConfigureKernel first", name)
	}
	kernel, exists := kr.Kernels[name]
	if !exists {
		return fmt.Errorf("kernel %s not compiled - use BuildKernel first", name)
	}

	pre := make([]ParameterUsage, 0, len(config.Parameters))
	post := make([]ParameterUsage, 0, len(config.Parameters))
	for _, param := range config.Parameters {
		if param.HasAction(CopyTo) {
			pre = append(pre, ParameterUsage{Binding: param.Binding, Actions: CopyTo})
		}
		if param.HasAction(CopyBack) {
			post = append(post, ParameterUsage{Binding: param.Binding, Actions: CopyBack})
		}
	}
	if err := kr.executeCopyActions(pre); err != nil {
		return fmt.Errorf("pre-kernel copy failed: %w", err)
	}

	args, err := kr.buildKernelArguments(config, scalarValues)
	if err != nil {
		return fmt.Errorf("failed to build arguments: %w", err)
	}
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	kr.Device.Finish()

	if err := kr.executeCopyActions(post); err != nil {
		return fmt.Errorf("post-kernel copy failed: %w", err)
	}
	return nil
}

// buildKernelArguments resolves a configuration to memory handles and values
func (kr *Runner) buildKernelArguments(config *KernelConfig, scalarValues []interface{}) ([]interface{}, error) {
	kernelArgs := kr.GetKernelArguments(config)
	args := make([]interface{}, 0, len(kernelArgs))

	scalarIdx := 0
	for _, karg := range kernelArgs {
		if karg.Category != "scalar" {
			mem, exists := kr.PooledMemory[karg.MemoryKey]
			if !exists {
				return nil, fmt.Errorf("memory %s not found", karg.MemoryKey)
			}
			args = append(args, mem)
			continue
		}

		if scalarIdx < len(scalarValues) {
			v, err := scalarAs(scalarValues[scalarIdx], karg.Binding.DeviceType)
			if err != nil {
				return nil, fmt.Errorf("scalar %s: %w", karg.Name, err)
			}
			args = append(args, v)
			scalarIdx++
			continue
		}
		if karg.Binding.HostBinding == nil {
			return nil, fmt.Errorf("scalar %s not provided", karg.Name)
		}
		v, err := scalarAs(karg.Binding.HostBinding, karg.Binding.DeviceType)
		if err != nil {
			return nil, fmt.Errorf("scalar %s: %w", karg.Name, err)
		}
		args = append(args, v)
	}
	return args, nil
}
