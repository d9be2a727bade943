package stencil

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Coefficients are the anisotropy scalars and inverse node spacings of one
// tensor-Laplacian invocation. S[0] and S[2] scale the xx and yy second
// derivatives, S[1] the cross derivative.
type Coefficients struct {
	S     [3]float64
	DxInv [3]float64
}

// Offset is a neighbor position relative to the center node
type Offset struct {
	Di, Dj int
}

// Neighbors is the fixed enumeration order of the eight off-center stencil
// points. Adotx, the device kernels and FillIJMatrix all walk this order.
var Neighbors = [8]Offset{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Weights are the nine stencil weights of the node tensor Laplacian
type Weights struct {
	H00, H01, H11 float64

	Center float64 // (i, j)
	X      float64 // (i±1, j)
	Y      float64 // (i, j±1)
	Dpp    float64 // (i-1, j-1) and (i+1, j+1)
	Dpm    float64 // (i-1, j+1) and (i+1, j-1)
}

// Weights derives h00, h01, h11 and the stencil weights. It is recomputed on
// every kernel call so it always follows the current spacing.
func (c Coefficients) Weights() Weights {
	var (
		s   = c.S
		h00 = c.DxInv[0] * c.DxInv[0]
		h01 = c.DxInv[0] * c.DxInv[1]
		h11 = c.DxInv[1] * c.DxInv[1]
	)
	return Weights{
		H00:    h00,
		H01:    h01,
		H11:    h11,
		Center: (-4./3.)*h00*s[0] + (-4./3.)*h11*s[2],
		X:      (2./3.)*h00*s[0] - (1./3.)*h11*s[2],
		Y:      (-1./3.)*h00*s[0] + (2./3.)*h11*s[2],
		Dpp:    (1./6.)*h00*s[0] + 0.5*h01*s[1] + (1./6.)*h11*s[2],
		Dpm:    (1./6.)*h00*s[0] - 0.5*h01*s[1] + (1./6.)*h11*s[2],
	}
}

// Diagonal returns the center weight, the divisor of the smoother and Normalize
func (c Coefficients) Diagonal() float64 {
	h00 := c.DxInv[0] * c.DxInv[0]
	h11 := c.DxInv[1] * c.DxInv[1]
	return (-4./3.)*h00*c.S[0] + (-4./3.)*h11*c.S[2]
}

// At returns the weight of the stencil point at offset (di, dj), di, dj in {-1,0,1}
func (w Weights) At(di, dj int) float64 {
	switch {
	case di == 0 && dj == 0:
		return w.Center
	case dj == 0:
		return w.X
	case di == 0:
		return w.Y
	case di == dj:
		return w.Dpp
	default:
		return w.Dpm
	}
}

// Neighbor returns the weight of the n-th entry of Neighbors
func (w Weights) Neighbor(n int) float64 {
	o := Neighbors[n]
	return w.At(o.Di, o.Dj)
}

// Sum adds the nine weights, zero up to rounding for any coefficients
func (w Weights) Sum() float64 {
	return w.Center + 2*w.X + 2*w.Y + 2*w.Dpp + 2*w.Dpm
}

// Matrix lays the stencil out as a 3x3 matrix with entry (di+1, dj+1)
func (w Weights) Matrix() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			m.Set(di+1, dj+1, w.At(di, dj))
		}
	}
	return m
}

// Validate checks the coefficients once at setup, off the kernel path: every
// weight finite, a negative center weight so the smoother can divide by it,
// and stencil rows that sum to zero.
func (c Coefficients) Validate() error {
	m := c.Weights().Matrix()
	var scale float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("stencil: weight (%d,%d) is %v for %+v", i-1, j-1, v, c)
			}
			scale += math.Abs(v)
		}
	}
	if center := m.At(1, 1); !(center < 0) {
		return fmt.Errorf("stencil: center weight %v must be negative for %+v", center, c)
	}
	if sum := mat.Sum(m); math.Abs(sum) > 1e-12*scale {
		return fmt.Errorf("stencil: weights sum to %v for %+v", sum, c)
	}
	return nil
}
