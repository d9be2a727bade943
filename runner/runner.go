package runner

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/notargets/MLNodeKernel/runner/builder"
	"github.com/notargets/gocca"
)

// ArrayMetadata stores information about allocated arrays
type ArrayMetadata struct {
	spec     builder.ArraySpec
	dataType builder.DataType
	isOutput bool
}

// Runner orchestrates kernel compilation and execution over box partitions.
// Lifecycle: DefineBindings, AllocateDevice, ConfigureKernel, BuildKernel,
// ExecuteKernel, Free.
type Runner struct {
	*builder.Builder
	Device        *gocca.OCCADevice
	Kernels       map[string]*gocca.OCCAKernel
	PooledMemory  map[string]*gocca.OCCAMemory
	Bindings      map[string]*DeviceBinding
	KernelConfigs map[string]*KernelConfig
	IsAllocated   bool

	arrayMetadata map[string]ArrayMetadata
	hostOffsets   map[string][]int64
}

// NewRunner creates a new Runner instance and uploads K
func NewRunner(device *gocca.OCCADevice, cfg builder.Config) (kr *Runner) {
	if device == nil {
		panic("runner needs a device")
	}
	bld := builder.NewBuilder(cfg)

	if bld.KpartMax > 1<<20 {
		panic(fmt.Sprintf("KpartMax exceeds 2^20 (1048576), usually caused by unbalanced boxes.\n"+
			"Found KpartMax=%d, K=%v. Split large boxes.", bld.KpartMax, bld.K))
	}

	kr = &Runner{
		Builder:       bld,
		Device:        device,
		Kernels:       make(map[string]*gocca.OCCAKernel),
		PooledMemory:  make(map[string]*gocca.OCCAMemory),
		Bindings:      make(map[string]*DeviceBinding),
		KernelConfigs: make(map[string]*KernelConfig),
		arrayMetadata: make(map[string]ArrayMetadata),
		hostOffsets:   make(map[string][]int64),
	}

	k64 := make([]int64, len(bld.K))
	for i, k := range bld.K {
		k64[i] = int64(k)
	}
	kr.PooledMemory["K"] = kr.mallocInts(k64)
	return
}

// mallocInts allocates and fills an int_t array
func (kr *Runner) mallocInts(v []int64) *gocca.OCCAMemory {
	if kr.IntType == builder.INT32 {
		v32 := make([]int32, len(v))
		for i, x := range v {
			v32[i] = int32(x)
		}
		return kr.Device.Malloc(int64(len(v32)*4), unsafe.Pointer(&v32[0]), nil)
	}
	return kr.Device.Malloc(int64(len(v)*8), unsafe.Pointer(&v[0]), nil)
}

// BuildKernel compiles and registers a kernel with the program
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	kr.GeneratePreamble()
	fullSource := kr.KernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error

	if kr.Device.Mode() == "OpenMP" {
		// OpenMP does not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	if old, exists := kr.Kernels[kernelName]; exists {
		old.Free()
	}
	kr.Kernels[kernelName] = kernel
	return kernel, nil
}

// GetMemory returns the device memory for a named array
func (kr *Runner) GetMemory(arrayName string) *gocca.OCCAMemory {
	return kr.PooledMemory[arrayName+"_global"]
}

// GetOffsets returns the offset memory for a named array
func (kr *Runner) GetOffsets(arrayName string) *gocca.OCCAMemory {
	return kr.PooledMemory[arrayName+"_offsets"]
}

// GetHostOffsets returns the host copy of an array's partition offsets
func (kr *Runner) GetHostOffsets(arrayName string) ([]int64, bool) {
	o, ok := kr.hostOffsets[arrayName]
	return o, ok
}

// GetAllocatedArrays returns a sorted list of allocated array names
func (kr *Runner) GetAllocatedArrays() []string {
	arrays := make([]string, 0, len(kr.arrayMetadata))
	for name := range kr.arrayMetadata {
		arrays = append(arrays, name)
	}
	sort.Strings(arrays)
	return arrays
}

// GetArrayType returns the device data type of an allocated array
func (kr *Runner) GetArrayType(name string) (builder.DataType, error) {
	metadata, exists := kr.arrayMetadata[name]
	if !exists {
		return 0, fmt.Errorf("array %s not found", name)
	}
	return metadata.dataType, nil
}

// Free releases all resources
func (kr *Runner) Free() {
	for _, kernel := range kr.Kernels {
		kernel.Free()
	}
	for _, mem := range kr.PooledMemory {
		mem.Free()
	}
	kr.Kernels = make(map[string]*gocca.OCCAKernel)
	kr.PooledMemory = make(map[string]*gocca.OCCAMemory)
}

// allocateSingleArray allocates <name>_global and <name>_offsets
func (kr *Runner) allocateSingleArray(spec builder.ArraySpec) error {
	offsets, totalSize := kr.CalculateAlignedOffsetsAndSize(spec)
	if totalSize == 0 {
		return fmt.Errorf("array %s has no values", spec.Name)
	}

	kr.PooledMemory[spec.Name+"_global"] = kr.Device.Malloc(totalSize, nil, nil)
	kr.PooledMemory[spec.Name+"_offsets"] = kr.mallocInts(offsets)
	kr.hostOffsets[spec.Name] = offsets

	kr.AllocatedArrays = append(kr.AllocatedArrays, spec.Name)
	kr.arrayMetadata[spec.Name] = ArrayMetadata{
		spec:     spec,
		dataType: spec.DataType,
		isOutput: spec.IsOutput,
	}
	return nil
}
