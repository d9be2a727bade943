package tensorlap

import (
	"fmt"
	"strings"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/runner"
	"github.com/notargets/MLNodeKernel/runner/builder"
	"github.com/notargets/MLNodeKernel/stencil"
	"github.com/notargets/gocca"
)

// DeviceFields are the per-box host fields a DeviceLap operates on. Every
// fine field and mask covers its valid box grown by one node in i and j.
// Crse is optional and only needed by InterpAdd.
type DeviceFields[T amr.Real] struct {
	Sol, Rhs, Ax []*amr.Array4[T]
	Msk          []*amr.Mask
	Crse         []*amr.Array4[T]
}

// DeviceLap runs the level kernels on an OCCA device, one @outer partition
// per box. Host fields stay authoritative: each call uploads its inputs and
// downloads its outputs.
type DeviceLap[T amr.Real] struct {
	kr     *runner.Runner
	Valid  []amr.Box
	fields DeviceFields[T]
}

// Kernel names
const (
	KernelAdotx       = "tlAdotx"
	KernelNormalize   = "tlNormalize"
	KernelGaussSeidel = "tlGaussSeidel"
	KernelInterpAdd   = "tlInterpAdd"
)

// stencilHeader computes the nine weights from the scalar coefficients on
// every call and applies the stencil through the ABOX index table
const stencilHeader = `
#define TL_WEIGHTS \
	const real_t h00 = dxinv0 * dxinv0; \
	const real_t h01 = dxinv0 * dxinv1; \
	const real_t h11 = dxinv1 * dxinv1; \
	const real_t third = REAL_ONE / 3; \
	const real_t sixth = REAL_ONE / 6; \
	const real_t half = REAL_ONE / 2; \
	const real_t wc = -4 * third * h00 * s0 - 4 * third * h11 * s2; \
	const real_t wx = 2 * third * h00 * s0 - third * h11 * s2; \
	const real_t wy = -third * h00 * s0 + 2 * third * h11 * s2; \
	const real_t wpp = sixth * h00 * s0 + half * h01 * s1 + sixth * h11 * s2; \
	const real_t wpm = sixth * h00 * s0 - half * h01 * s1 + sixth * h11 * s2

#define TL_AT(x, p, i, j, k) (x)[ABOX_IDX(p, i, j, k)]

#define TL_APPLY(x, p, i, j, k) ( \
	TL_AT(x, p, (i) - 1, (j) - 1, k) * wpp + \
	TL_AT(x, p, (i) - 1, (j), k) * wx + \
	TL_AT(x, p, (i) - 1, (j) + 1, k) * wpm + \
	TL_AT(x, p, (i), (j) - 1, k) * wy + \
	TL_AT(x, p, (i), (j), k) * wc + \
	TL_AT(x, p, (i), (j) + 1, k) * wy + \
	TL_AT(x, p, (i) + 1, (j) - 1, k) * wpm + \
	TL_AT(x, p, (i) + 1, (j), k) * wx + \
	TL_AT(x, p, (i) + 1, (j) + 1, k) * wpp)

#define TL_CRSN(i) ((i) >= 0 ? (i) / 2 : ((i) - 1) / 2)
`

const adotxSource = `
@kernel void tlAdotx(%s) {
	for (int part = 0; part < NPART; ++part; @outer) {
		real_t* y = Ax_PART(part);
		const real_t* x = Sol_PART(part);
		for (int blk = 0; blk < KpartMax; blk += NINNER) {
			for (int t = 0; t < NINNER; ++t; @inner) {
				int n = blk + t;
				if (n < K[part]) {
					TL_WEIGHTS;
					const int_t i = VBOX_I(part, n);
					const int_t j = VBOX_J(part, n);
					const int_t k = VBOX_K(part, n);
					TL_AT(y, part, i, j, k) = TL_APPLY(x, part, i, j, k);
				}
			}
		}
	}
}
`

const normalizeSource = `
@kernel void tlNormalize(%s) {
	for (int part = 0; part < NPART; ++part; @outer) {
		real_t* x = Sol_PART(part);
		const int_t* msk = Msk_PART(part);
		for (int blk = 0; blk < KpartMax; blk += NINNER) {
			for (int t = 0; t < NINNER; ++t; @inner) {
				int n = blk + t;
				if (n < K[part]) {
					TL_WEIGHTS;
					const int_t idx = ABOX_IDX(part, VBOX_I(part, n), VBOX_J(part, n), VBOX_K(part, n));
					if (msk[idx] == 0) {
						x[idx] /= wc;
					}
				}
			}
		}
	}
}
`

// The sweep is lexicographic within a box, so each box runs on one lane
const gaussSeidelSource = `
@kernel void tlGaussSeidel(%s) {
	for (int part = 0; part < NPART; ++part; @outer) {
		for (int t = 0; t < 1; ++t; @inner) {
			real_t* sol = Sol_PART(part);
			const real_t* rhs = Rhs_PART(part);
			const int_t* msk = Msk_PART(part);
			TL_WEIGHTS;
			for (int n = 0; n < K[part]; ++n) {
				const int_t i = VBOX_I(part, n);
				const int_t j = VBOX_J(part, n);
				const int_t k = VBOX_K(part, n);
				const int_t idx = ABOX_IDX(part, i, j, k);
				if (msk[idx] != 0) {
					sol[idx] = REAL_ZERO;
				} else {
					const real_t Ax = TL_APPLY(sol, part, i, j, k);
					sol[idx] += (rhs[idx] - Ax) / wc;
				}
			}
		}
	}
}
`

const interpAddSource = `
@kernel void tlInterpAdd(%s) {
	for (int part = 0; part < NPART; ++part; @outer) {
		real_t* fine = Sol_PART(part);
		const real_t* crse = Crse_PART(part);
		const int_t* msk = Msk_PART(part);
		for (int blk = 0; blk < KpartMax; blk += NINNER) {
			for (int t = 0; t < NINNER; ++t; @inner) {
				int n = blk + t;
				if (n < K[part]) {
					const int_t i = VBOX_I(part, n);
					const int_t j = VBOX_J(part, n);
					const int_t k = VBOX_K(part, n);
					const int_t idx = ABOX_IDX(part, i, j, k);
					if (msk[idx] == 0) {
						const int_t ic = TL_CRSN(i);
						const int_t jc = TL_CRSN(j);
						const real_t c00 = crse[CBOX_IDX(part, ic, jc, k)];
						real_t v;
						if (ic * 2 != i && jc * 2 != j) {
							const real_t c10 = crse[CBOX_IDX(part, ic + 1, jc, k)];
							const real_t c01 = crse[CBOX_IDX(part, ic, jc + 1, k)];
							const real_t c11 = crse[CBOX_IDX(part, ic + 1, jc + 1, k)];
							v = ((c00 + c01) / 2 + (c10 + c11) / 2 + (c00 + c10) / 2 + (c01 + c11) / 2) / 4;
						} else if (ic * 2 != i) {
							v = (c00 + crse[CBOX_IDX(part, ic + 1, jc, k)]) / 2;
						} else if (jc * 2 != j) {
							v = (c00 + crse[CBOX_IDX(part, ic, jc + 1, k)]) / 2;
						} else {
							v = c00;
						}
						fine[idx] += v;
					}
				}
			}
		}
	}
}
`

func floatTypeOf[T amr.Real]() builder.DataType {
	var z T
	if _, ok := any(z).(float32); ok {
		return builder.Float32
	}
	return builder.Float64
}

func partsOf[E amr.Element](fields []*amr.Array4[E]) [][]E {
	parts := make([][]E, len(fields))
	for p, f := range fields {
		parts[p] = f.Data
	}
	return parts
}

func checkCover[E amr.Element](name string, fields []*amr.Array4[E], boxes []amr.Box) error {
	if len(fields) != len(boxes) {
		return fmt.Errorf("%s: %d fields for %d boxes", name, len(fields), len(boxes))
	}
	for p, f := range fields {
		if f == nil || f.Box != boxes[p] {
			return fmt.Errorf("%s[%d] must be allocated over %v", name, p, boxes[p])
		}
	}
	return nil
}

// NewDeviceLap allocates the fields on device and builds the kernels
func NewDeviceLap[T amr.Real](device *gocca.OCCADevice, valid []amr.Box, f DeviceFields[T]) (*DeviceLap[T], error) {
	if len(valid) == 0 {
		return nil, fmt.Errorf("tensorlap: no boxes")
	}
	alloc := make([]amr.Box, len(valid))
	k := make([]int, len(valid))
	for p, b := range valid {
		alloc[p] = b.GrowXY(1)
		k[p] = b.NumPts()
	}
	for name, fs := range map[string][]*amr.Array4[T]{"Sol": f.Sol, "Rhs": f.Rhs, "Ax": f.Ax} {
		if err := checkCover(name, fs, alloc); err != nil {
			return nil, fmt.Errorf("tensorlap: %w", err)
		}
	}
	if err := checkCover("Msk", f.Msk, alloc); err != nil {
		return nil, fmt.Errorf("tensorlap: %w", err)
	}

	ft := floatTypeOf[T]()
	kr := runner.NewRunner(device, builder.Config{K: k, FloatType: ft, IntType: builder.INT32})
	dl := &DeviceLap[T]{kr: kr, Valid: valid, fields: f}
	if err := dl.setup(alloc); err != nil {
		kr.Free()
		return nil, fmt.Errorf("tensorlap: %w", err)
	}
	return dl, nil
}

var coefficientNames = []string{"s0", "s1", "s2", "dxinv0", "dxinv1"}

func (dl *DeviceLap[T]) setup(alloc []amr.Box) error {
	kr := dl.kr
	f := dl.fields
	if err := kr.AddBoxTable("VBOX", dl.Valid); err != nil {
		return err
	}
	if err := kr.AddBoxTable("ABOX", alloc); err != nil {
		return err
	}

	params := []*builder.ParamBuilder{
		builder.InOut("Sol").Bind(partsOf(f.Sol)).Align(builder.CacheLineAlign),
		builder.Input("Rhs").Bind(partsOf(f.Rhs)).Align(builder.CacheLineAlign),
		builder.Output("Ax").Bind(partsOf(f.Ax)).Align(builder.CacheLineAlign),
		builder.Input("Msk").Bind(partsOf(f.Msk)),
	}
	if f.Crse != nil {
		if len(f.Crse) != len(dl.Valid) {
			return fmt.Errorf("Crse: %d fields for %d boxes", len(f.Crse), len(dl.Valid))
		}
		crseBoxes := make([]amr.Box, len(f.Crse))
		for p, c := range f.Crse {
			if c == nil {
				return fmt.Errorf("Crse[%d] is nil", p)
			}
			if need := CoarseCover(dl.Valid[p]); !c.Box.ContainsBox(need) {
				return fmt.Errorf("Crse[%d] box %v does not cover %v", p, c.Box, need)
			}
			crseBoxes[p] = c.Box
		}
		if err := kr.AddBoxTable("CBOX", crseBoxes); err != nil {
			return err
		}
		params = append(params, builder.Input("Crse").Bind(partsOf(f.Crse)).Align(builder.CacheLineAlign))
	}
	var zero T
	for _, name := range coefficientNames {
		params = append(params, builder.Scalar(name).Bind(zero))
	}
	if err := kr.DefineBindings(params...); err != nil {
		return err
	}
	if err := kr.AllocateDevice(); err != nil {
		return err
	}

	coeffs := make([]*runner.ParamConfig, 0, len(coefficientNames))
	for _, name := range coefficientNames {
		coeffs = append(coeffs, kr.Param(name))
	}
	kernels := []struct {
		name, src string
		arrays    []*runner.ParamConfig
	}{
		{KernelAdotx, adotxSource, []*runner.ParamConfig{
			kr.Param("Ax").CopyBack(), kr.Param("Sol").CopyTo()}},
		{KernelNormalize, normalizeSource, []*runner.ParamConfig{
			kr.Param("Sol").Copy(), kr.Param("Msk").CopyTo()}},
		{KernelGaussSeidel, gaussSeidelSource, []*runner.ParamConfig{
			kr.Param("Sol").Copy(), kr.Param("Rhs").CopyTo(), kr.Param("Msk").CopyTo()}},
	}
	if f.Crse != nil {
		kernels = append(kernels, struct {
			name, src string
			arrays    []*runner.ParamConfig
		}{KernelInterpAdd, interpAddSource, []*runner.ParamConfig{
			kr.Param("Sol").Copy(), kr.Param("Crse").CopyTo(), kr.Param("Msk").CopyTo()}})
	}

	for _, kd := range kernels {
		params := kd.arrays
		if kd.name != KernelInterpAdd {
			params = append(params, coeffs...)
		}
		config, err := kr.ConfigureKernel(kd.name, params...)
		if err != nil {
			return err
		}
		sig, err := config.GetSignature(kr)
		if err != nil {
			return err
		}
		src := stencilHeader + strings.Replace(kd.src, "%s", sig, 1)
		if _, err := kr.BuildKernel(src, kd.name); err != nil {
			return err
		}
	}
	return nil
}

func (dl *DeviceLap[T]) run(name string, c stencil.Coefficients) error {
	if err := dl.kr.ExecuteKernel(name, c.S[0], c.S[1], c.S[2], c.DxInv[0], c.DxInv[1]); err != nil {
		return fmt.Errorf("tensorlap: %w", err)
	}
	return nil
}

// Adotx sets Ax = A Sol on every valid box
func (dl *DeviceLap[T]) Adotx(c stencil.Coefficients) error {
	return dl.run(KernelAdotx, c)
}

// Normalize divides Sol by the diagonal at active nodes
func (dl *DeviceLap[T]) Normalize(c stencil.Coefficients) error {
	return dl.run(KernelNormalize, c)
}

// GaussSeidel performs one lexicographic sweep per box
func (dl *DeviceLap[T]) GaussSeidel(c stencil.Coefficients) error {
	return dl.run(KernelGaussSeidel, c)
}

// InterpAdd adds the bilinear prolongation of Crse to Sol at active nodes
func (dl *DeviceLap[T]) InterpAdd() error {
	if dl.fields.Crse == nil {
		return fmt.Errorf("tensorlap: InterpAdd needs coarse fields")
	}
	if err := dl.kr.ExecuteKernel(KernelInterpAdd); err != nil {
		return fmt.Errorf("tensorlap: %w", err)
	}
	return nil
}

// Free releases the device memory and kernels
func (dl *DeviceLap[T]) Free() {
	dl.kr.Free()
}
