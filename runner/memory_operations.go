package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/MLNodeKernel/runner/builder"
	"github.com/notargets/gocca"
)

type hostValue interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// executeCopyActions is the single path for all host↔device transfers
func (kr *Runner) executeCopyActions(actions []ParameterUsage) error {
	for _, param := range actions {
		if param.HasAction(CopyTo) {
			if err := kr.copyToDevice(param.Binding); err != nil {
				return fmt.Errorf("failed to copy %s to device: %w", param.Binding.Name, err)
			}
		}
		if param.HasAction(CopyBack) {
			if err := kr.copyFromDevice(param.Binding); err != nil {
				return fmt.Errorf("failed to copy %s from device: %w", param.Binding.Name, err)
			}
		}
	}
	return nil
}

// CopyToDevice copies a single parameter from host to device
func (kr *Runner) CopyToDevice(name string) error {
	binding := kr.GetBinding(name)
	if binding == nil {
		return fmt.Errorf("binding %s not found", name)
	}
	return kr.executeCopyActions([]ParameterUsage{{Binding: binding, Actions: CopyTo}})
}

// CopyFromDevice copies a single parameter from device to host
func (kr *Runner) CopyFromDevice(name string) error {
	binding := kr.GetBinding(name)
	if binding == nil {
		return fmt.Errorf("binding %s not found", name)
	}
	return kr.executeCopyActions([]ParameterUsage{{Binding: binding, Actions: CopyBack}})
}

func (kr *Runner) deviceArray(binding *DeviceBinding) (*gocca.OCCAMemory, []int64, error) {
	if binding.IsScalar || binding.IsTemp || binding.HostBinding == nil {
		return nil, nil, fmt.Errorf("%s has no host array", binding.Name)
	}
	mem := kr.GetMemory(binding.Name)
	offsets, ok := kr.hostOffsets[binding.Name]
	if mem == nil || !ok {
		return nil, nil, fmt.Errorf("no device memory allocated for %s", binding.Name)
	}
	return mem, offsets, nil
}

// hostParts views a host binding as per-partition slices
func hostParts[T hostValue](host interface{}) ([][]T, bool) {
	switch h := host.(type) {
	case [][]T:
		return h, true
	case []T:
		return [][]T{h}, true
	}
	return nil, false
}

// copyToDevice uploads every partition at its offset, converting if needed
func (kr *Runner) copyToDevice(binding *DeviceBinding) error {
	mem, offsets, err := kr.deviceArray(binding)
	if err != nil {
		return err
	}
	switch binding.HostType {
	case builder.Float64:
		return uploadAs[float64](mem, offsets, binding)
	case builder.Float32:
		return uploadAs[float32](mem, offsets, binding)
	case builder.INT32:
		return uploadAs[int32](mem, offsets, binding)
	case builder.INT64:
		return uploadAs[int64](mem, offsets, binding)
	}
	return fmt.Errorf("unsupported host type %v", binding.HostType)
}

func uploadAs[H hostValue](mem *gocca.OCCAMemory, offsets []int64, binding *DeviceBinding) error {
	parts, ok := hostParts[H](binding.HostBinding)
	if !ok {
		return fmt.Errorf("host binding %T is not %v", binding.HostBinding, binding.HostType)
	}
	switch binding.DeviceType {
	case builder.Float64:
		uploadParts[H, float64](mem, offsets, parts)
	case builder.Float32:
		uploadParts[H, float32](mem, offsets, parts)
	case builder.INT32:
		uploadParts[H, int32](mem, offsets, parts)
	case builder.INT64:
		uploadParts[H, int64](mem, offsets, parts)
	default:
		return fmt.Errorf("unsupported device type %v", binding.DeviceType)
	}
	return nil
}

func uploadParts[H, D hostValue](mem *gocca.OCCAMemory, offsets []int64, parts [][]H) {
	var d D
	size := int64(unsafe.Sizeof(d))
	for p, part := range parts {
		if len(part) == 0 {
			continue
		}
		buf := make([]D, len(part))
		for i, v := range part {
			buf[i] = D(v)
		}
		mem.CopyFromWithOffset(unsafe.Pointer(&buf[0]), int64(len(buf))*size, offsets[p]*size)
	}
}

// copyFromDevice downloads every partition into the host binding
func (kr *Runner) copyFromDevice(binding *DeviceBinding) error {
	mem, offsets, err := kr.deviceArray(binding)
	if err != nil {
		return err
	}
	switch binding.HostType {
	case builder.Float64:
		return downloadAs[float64](mem, offsets, binding)
	case builder.Float32:
		return downloadAs[float32](mem, offsets, binding)
	case builder.INT32:
		return downloadAs[int32](mem, offsets, binding)
	case builder.INT64:
		return downloadAs[int64](mem, offsets, binding)
	}
	return fmt.Errorf("unsupported host type %v", binding.HostType)
}

func downloadAs[H hostValue](mem *gocca.OCCAMemory, offsets []int64, binding *DeviceBinding) error {
	parts, ok := hostParts[H](binding.HostBinding)
	if !ok {
		return fmt.Errorf("host binding %T is not %v", binding.HostBinding, binding.HostType)
	}
	switch binding.DeviceType {
	case builder.Float64:
		downloadParts[H, float64](mem, offsets, parts)
	case builder.Float32:
		downloadParts[H, float32](mem, offsets, parts)
	case builder.INT32:
		downloadParts[H, int32](mem, offsets, parts)
	case builder.INT64:
		downloadParts[H, int64](mem, offsets, parts)
	default:
		return fmt.Errorf("unsupported device type %v", binding.DeviceType)
	}
	return nil
}

func downloadParts[H, D hostValue](mem *gocca.OCCAMemory, offsets []int64, parts [][]H) {
	var d D
	size := int64(unsafe.Sizeof(d))
	for p, part := range parts {
		if len(part) == 0 {
			continue
		}
		buf := make([]D, len(part))
		mem.CopyToWithOffset(unsafe.Pointer(&buf[0]), int64(len(buf))*size, offsets[p]*size)
		for i, v := range buf {
			part[i] = H(v)
		}
	}
}
