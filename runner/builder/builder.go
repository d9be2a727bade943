package builder

import (
	"fmt"
	"strings"

	"github.com/notargets/MLNodeKernel/amr"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// Size returns the width of one value in bytes
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// CName returns the C spelling of the type
func (dt DataType) CName() string {
	switch dt {
	case Float32:
		return "float"
	case Float64:
		return "double"
	case INT32:
		return "int"
	case INT64:
		return "long"
	default:
		return "double"
	}
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	case INT32:
		return "INT32"
	case INT64:
		return "INT64"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// AlignmentType specifies memory alignment requirements
type AlignmentType int

const (
	NoAlignment    AlignmentType = 1
	CacheLineAlign AlignmentType = 64
	WarpAlign      AlignmentType = 128
	PageAlign      AlignmentType = 4096
)

// MaxInnerSize caps the @inner loop width; larger boxes are strided over it
const MaxInnerSize = 256

// ArraySpec defines the allocation of one partitioned array
type ArraySpec struct {
	Name           string
	PartitionSizes []int // values per partition
	Alignment      AlignmentType
	DataType       DataType
	IsOutput       bool
}

// BoxTable is a per-partition box list emitted as constant index tables
type BoxTable struct {
	Name  string
	Boxes []amr.Box
}

// Builder generates the kernel preamble for box-parallel kernels: one
// partition per node box, K[p] nodes iterated in partition p.
type Builder struct {
	// Partition configuration
	NumPartitions int
	K             []int
	KpartMax      int // Maximum K value across all partitions
	InnerSize     int // @inner loop width, min(KpartMax, MaxInnerSize)

	// Type configuration
	FloatType DataType
	IntType   DataType

	// Index tables, in registration order
	BoxTables []BoxTable

	// Array tracking for macro generation
	AllocatedArrays []string

	// Generated code
	KernelPreamble string
}

// Config holds configuration for creating a Builder
type Config struct {
	K         []int
	FloatType DataType
	IntType   DataType
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	if len(cfg.K) == 0 {
		panic("K array cannot be empty")
	}
	kpartMax := 0
	for _, k := range cfg.K {
		if k < 0 {
			panic(fmt.Sprintf("negative partition size in K: %v", cfg.K))
		}
		if k > kpartMax {
			kpartMax = k
		}
	}
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}
	inner := kpartMax
	if inner > MaxInnerSize {
		inner = MaxInnerSize
	}
	if inner < 1 {
		inner = 1
	}
	kb := &Builder{
		NumPartitions:   len(cfg.K),
		K:               make([]int, len(cfg.K)),
		KpartMax:        kpartMax,
		InnerSize:       inner,
		FloatType:       floatType,
		IntType:         intType,
		AllocatedArrays: []string{},
	}
	copy(kb.K, cfg.K)
	return kb
}

// AddBoxTable registers per-partition boxes emitted as <name>_LO and <name>_HI
// tables with index macros. Registering a name again replaces its boxes.
func (kb *Builder) AddBoxTable(name string, boxes []amr.Box) error {
	if len(boxes) != kb.NumPartitions {
		return fmt.Errorf("box table %s: %d boxes for %d partitions",
			name, len(boxes), kb.NumPartitions)
	}
	bt := BoxTable{Name: name, Boxes: make([]amr.Box, len(boxes))}
	copy(bt.Boxes, boxes)
	for i := range kb.BoxTables {
		if kb.BoxTables[i].Name == name {
			kb.BoxTables[i] = bt
			return nil
		}
	}
	kb.BoxTables = append(kb.BoxTables, bt)
	return nil
}

// GetTotalNodes returns sum of all K values
func (kb *Builder) GetTotalNodes() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// GetIntSize returns the size of the integer type in bytes
func (kb *Builder) GetIntSize() int {
	return int(kb.IntType.Size())
}

// CalculateAlignedOffsetsAndSize computes partition offsets in values, with
// every partition start aligned, and the total allocation in bytes. The last
// offset bounds the final partition.
func (kb *Builder) CalculateAlignedOffsetsAndSize(spec ArraySpec) ([]int64, int64) {
	valueSize := spec.DataType.Size()
	alignment := int64(spec.Alignment)
	if alignment < int64(valueSize) {
		alignment = valueSize
	}

	offsets := make([]int64, len(spec.PartitionSizes)+1)
	current := int64(0)
	align := func() {
		if current%alignment != 0 {
			current = ((current + alignment - 1) / alignment) * alignment
		}
	}
	for i, n := range spec.PartitionSizes {
		align()
		offsets[i] = current / valueSize
		current += int64(n) * valueSize
	}
	align()
	offsets[len(spec.PartitionSizes)] = current / valueSize
	return offsets, current
}

// GeneratePreamble generates the kernel preamble with types, index tables and
// partition access macros
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	sb.WriteString(kb.generateTypeDefinitions())
	sb.WriteString(kb.generateBoxTables())
	sb.WriteString(kb.generatePartitionMacros())

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// generateTypeDefinitions creates type definitions based on precision settings
func (kb *Builder) generateTypeDefinitions() string {
	var sb strings.Builder

	floatSuffix := ""
	if kb.FloatType == Float32 {
		floatSuffix = "f"
	}

	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", kb.FloatType.CName()))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", kb.IntType.CName()))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString(fmt.Sprintf("#define REAL_ONE 1.0%s\n", floatSuffix))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))
	sb.WriteString(fmt.Sprintf("#define NINNER %d\n", kb.InnerSize))
	sb.WriteString("\n")

	return sb.String()
}

// generateBoxTables writes the LO/HI tables of every box table and the
// macros mapping (i,j,k) to a flat offset within the partition's box, and a
// flat node number n back to (i,j,k), i fastest
func (kb *Builder) generateBoxTables() string {
	if len(kb.BoxTables) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("// Box tables\n")
	for _, bt := range kb.BoxTables {
		for _, side := range []string{"LO", "HI"} {
			sb.WriteString(fmt.Sprintf("const int_t %s_%s[NPART][3] = {", bt.Name, side))
			for p, b := range bt.Boxes {
				v := b.Lo
				if side == "HI" {
					v = b.Hi
				}
				if p > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(fmt.Sprintf("{%d, %d, %d}", v[0], v[1], v[2]))
			}
			sb.WriteString("};\n")
		}
		n := bt.Name
		sb.WriteString(fmt.Sprintf("#define %s_NX(p) (%s_HI[p][0] - %s_LO[p][0] + 1)\n", n, n, n))
		sb.WriteString(fmt.Sprintf("#define %s_NY(p) (%s_HI[p][1] - %s_LO[p][1] + 1)\n", n, n, n))
		sb.WriteString(fmt.Sprintf("#define %s_IDX(p, i, j, k) "+
			"(((i) - %s_LO[p][0]) + %s_NX(p) * (((j) - %s_LO[p][1]) + %s_NY(p) * ((k) - %s_LO[p][2])))\n",
			n, n, n, n, n, n))
		sb.WriteString(fmt.Sprintf("#define %s_I(p, n) (%s_LO[p][0] + (n) %% %s_NX(p))\n", n, n, n))
		sb.WriteString(fmt.Sprintf("#define %s_J(p, n) (%s_LO[p][1] + ((n) / %s_NX(p)) %% %s_NY(p))\n",
			n, n, n, n))
		sb.WriteString(fmt.Sprintf("#define %s_K(p, n) (%s_LO[p][2] + (n) / (%s_NX(p) * %s_NY(p)))\n",
			n, n, n, n))
	}
	sb.WriteString("\n")
	return sb.String()
}

// generatePartitionMacros creates macros for partition data access
func (kb *Builder) generatePartitionMacros() string {
	var sb strings.Builder

	sb.WriteString("// Partition access macros\n")
	for _, arrayName := range kb.AllocatedArrays {
		sb.WriteString(fmt.Sprintf("#define %s_PART(part) (%s_global + %s_offsets[part])\n",
			arrayName, arrayName, arrayName))
	}
	if len(kb.AllocatedArrays) > 0 {
		sb.WriteString("\n")
	}

	return sb.String()
}
