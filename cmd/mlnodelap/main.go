// Command mlnodelap runs a two-level smoke test of the nodal tensor Laplacian:
// Gauss-Seidel smoothing on a row of fine boxes, a CG solve of the coarse
// correction through the assembled sparse system, bilinear prolongation and
// post-smoothing.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/bottom"
	"github.com/notargets/MLNodeKernel/ijmatrix"
	"github.com/notargets/MLNodeKernel/numbering"
	"github.com/notargets/MLNodeKernel/parallel"
	"github.com/notargets/MLNodeKernel/partitions"
	"github.com/notargets/MLNodeKernel/stencil"
	"github.com/notargets/MLNodeKernel/tensorlap"
	"github.com/notargets/MLNodeKernel/utils"
	"gonum.org/v1/gonum/mat"
)

func main() {
	var (
		nboxes   = flag.Int("boxes", 3, "number of fine boxes along i")
		nx       = flag.Int("nx", 17, "fine nodes per box along i (odd)")
		ny       = flag.Int("ny", 17, "fine nodes per box along j (odd)")
		ranks    = flag.Int("ranks", 2, "ranks the coarse system is numbered over")
		strategy = flag.String("strategy", "block", "box distribution: block, roundrobin or balanced")
		exName   = flag.String("executor", "serial", "smoother backend: serial, pool or device")
		devMode  = flag.String("device", "serial", "OCCA mode for -executor=device")
		sweeps   = flag.Int("sweeps", 4, "pre and post smoothing sweeps")
		sigmaXY  = flag.Float64("sxy", 0.3, "cross coefficient of the tensor")
	)
	flag.Parse()

	if *nx%2 == 0 || *ny%2 == 0 || *nx < 3 || *ny < 3 {
		log.Fatalf("nx and ny must be odd and at least 3, got %d x %d", *nx, *ny)
	}
	strat, err := partitions.ParseStrategy(*strategy)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fineCoef := stencil.Coefficients{
		S:     [3]float64{1, *sigmaXY, 1},
		DxInv: [3]float64{float64(*nboxes * (*nx - 1)), float64(*ny - 1), 1},
	}
	crseCoef := fineCoef
	for d := range crseCoef.DxInv[:2] {
		crseCoef.DxInv[d] /= 2
	}
	for _, c := range []stencil.Coefficients{fineCoef, crseCoef} {
		if err := c.Validate(); err != nil {
			log.Fatalf("%v", err)
		}
	}
	log.Printf("fine stencil:\n%v", mat.Formatted(fineCoef.Weights().Matrix(), mat.Prefix(""), mat.Squeeze()))

	fine := newLevel(rowOfBoxes(*nboxes, *nx, *ny))
	fine.rhs.fill(1)

	sm, err := newSmoother(*exName, *devMode, fine)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer sm.free()

	report := func(stage string) {
		inf := fine.residual(fineCoef)
		log.Printf("%-14s |r|inf = %.6e", stage, inf)
	}
	report("initial")

	for s := 0; s < *sweeps; s++ {
		if err := sm.sweep(fineCoef); err != nil {
			log.Fatalf("smoothing: %v", err)
		}
		fine.sync(fine.sol)
	}
	report("pre-smoothed")

	crse := newLevel(coarsenAll(fine.boxes))
	inject(crse.rhs, fine.res)

	nb, err := numbering.Number(crse.boxes, crse.msk, *ranks, strat)
	if err != nil {
		log.Fatalf("numbering: %v", err)
	}
	log.Printf("coarse system: %d nodes over %d ranks (%s), KpartMax %d boxes",
		nb.NumNodes, *ranks, strat, nb.Layout.KpartMax)

	t := ijmatrix.NewTriplets(0)
	for r := 0; r < *ranks; r++ {
		for _, b := range nb.RankBoxes(r) {
			t.Append(tensorlap.AssembleIJMatrix(crse.boxes[b], nb.IDs[b], nb.Owners[b], crseCoef))
		}
	}
	if err := t.Validate(); err != nil {
		log.Fatalf("assembly: %v", err)
	}

	rhs, err := numbering.Gather(nb, crse.rhs.f)
	if err != nil {
		log.Fatalf("gather: %v", err)
	}

	cg := bottom.NewCG(bottom.Settings{Tol: 1e-10})
	if err := cg.Setup(t); err != nil {
		log.Fatalf("bottom setup: %v", err)
	}
	x := make([]float64, nb.NumNodes)
	if err := cg.Solve(x, rhs); err != nil {
		log.Fatalf("bottom solve: %v", err)
	}
	log.Printf("bottom CG: %d iterations, |r| = %.3e", cg.Stats.Iterations, cg.Stats.ResidualNorm)

	if err := numbering.Scatter(nb, x, crse.sol.f); err != nil {
		log.Fatalf("scatter: %v", err)
	}

	if err := sm.interpAdd(crse.sol); err != nil {
		log.Fatalf("prolongation: %v", err)
	}
	fine.sync(fine.sol)
	report("corrected")

	for s := 0; s < *sweeps; s++ {
		if err := sm.sweep(fineCoef); err != nil {
			log.Fatalf("smoothing: %v", err)
		}
		fine.sync(fine.sol)
	}
	report("post-smoothed")
}

// rowOfBoxes lays out n node boxes along i sharing their boundary columns
func rowOfBoxes(n, nx, ny int) []amr.Box {
	boxes := make([]amr.Box, n)
	for b := range boxes {
		lo := b * (nx - 1)
		boxes[b] = amr.NewBox(amr.IntVect{lo, 0, 0}, amr.IntVect{lo + nx - 1, ny - 1, 0})
	}
	return boxes
}

func coarsenAll(boxes []amr.Box) []amr.Box {
	out := make([]amr.Box, len(boxes))
	for b, box := range boxes {
		out[b] = box.Coarsen(2)
	}
	return out
}

// multiField is one field per box, allocated over the box grown by one node
type multiField struct {
	f []*amr.Array4[float64]
}

func (m multiField) fill(v float64) {
	for _, a := range m.f {
		a.Fill(v)
	}
}

type level struct {
	boxes         []amr.Box
	domain        amr.Box
	sol, rhs, res multiField
	ax            multiField
	msk           []*amr.Mask
	nc            *utils.NodeConnector
}

func newLevel(boxes []amr.Box) *level {
	nc, err := utils.NewNodeConnector(boxes, 1)
	if err != nil {
		log.Fatalf("connector: %v", err)
	}
	l := &level{boxes: boxes, domain: boxes[0], nc: nc}
	for _, b := range boxes[1:] {
		l.domain.Lo[0] = min(l.domain.Lo[0], b.Lo[0])
		l.domain.Lo[1] = min(l.domain.Lo[1], b.Lo[1])
		l.domain.Hi[0] = max(l.domain.Hi[0], b.Hi[0])
		l.domain.Hi[1] = max(l.domain.Hi[1], b.Hi[1])
	}
	interior := l.domain.GrowXY(-1)
	for _, b := range boxes {
		grown := b.GrowXY(1)
		l.sol.f = append(l.sol.f, amr.NewArray4[float64](grown))
		l.rhs.f = append(l.rhs.f, amr.NewArray4[float64](grown))
		l.res.f = append(l.res.f, amr.NewArray4[float64](grown))
		l.ax.f = append(l.ax.f, amr.NewArray4[float64](grown))

		// Dirichlet on the domain boundary and outside it
		msk := amr.NewArray4[int32](grown)
		grown.ForEach(func(i, j, k int) {
			if !interior.Contains(amr.IntVect{i, j, k}) {
				msk.Set(i, j, k, 1)
			}
		})
		l.msk = append(l.msk, msk)
	}
	return l
}

// sync copies every node held by another box from its owner
func (l *level) sync(m multiField) {
	if err := utils.Exchange(l.nc, m.f); err != nil {
		log.Fatalf("exchange: %v", err)
	}
}

// residual fills res and returns its max norm over active nodes
func (l *level) residual(c stencil.Coefficients) float64 {
	var inf float64
	for b, box := range l.boxes {
		tensorlap.Residual[float64](parallel.Serial{}, box, l.res.f[b], l.rhs.f[b], l.sol.f[b], l.msk[b], c)
		box.ForEach(func(i, j, k int) {
			inf = math.Max(inf, math.Abs(l.res.f[b].At(i, j, k)))
		})
	}
	return inf
}

// inject restricts a fine field onto the coincident coarse nodes
func inject(crse, fine multiField) {
	for b, c := range crse.f {
		c.Fill(0)
		c.Box.Intersect(fine.f[b].Box.Coarsen(2)).ForEach(func(i, j, k int) {
			if fine.f[b].Box.Contains(amr.IntVect{2 * i, 2 * j, k}) {
				c.Set(i, j, k, fine.f[b].At(2*i, 2*j, k))
			}
		})
	}
}

// smoother runs the fine-level kernels on the host or on an OCCA device
type smoother struct {
	l    *level
	ex   parallel.Executor
	dev  *tensorlap.DeviceLap[float64]
	free func()
	crse []*amr.Array4[float64]
}

func newSmoother(name, mode string, l *level) (*smoother, error) {
	sm := &smoother{l: l, free: func() {}}
	switch strings.ToLower(name) {
	case "serial":
		sm.ex = parallel.Serial{}
	case "pool":
		sm.ex = parallel.NewPoolFromEnv()
	case "device":
		device, err := utils.CreateDevice(mode)
		if err != nil {
			return nil, err
		}
		// coarse fields are bound now and filled before prolongation
		for _, b := range l.boxes {
			sm.crse = append(sm.crse, amr.NewArray4[float64](b.Coarsen(2).GrowXY(1)))
		}
		dev, err := tensorlap.NewDeviceLap(device, l.boxes, tensorlap.DeviceFields[float64]{
			Sol: l.sol.f, Rhs: l.rhs.f, Ax: l.ax.f, Msk: l.msk, Crse: sm.crse,
		})
		if err != nil {
			device.Free()
			return nil, err
		}
		log.Printf("smoothing on %s device", device.Mode())
		sm.dev = dev
		sm.free = func() {
			dev.Free()
			device.Free()
		}
	default:
		return nil, fmt.Errorf("unknown executor %q", name)
	}
	return sm, nil
}

func (sm *smoother) sweep(c stencil.Coefficients) error {
	if sm.dev != nil {
		return sm.dev.GaussSeidel(c)
	}
	for b, box := range sm.l.boxes {
		tensorlap.GaussSeidel[float64](sm.ex, box, sm.l.sol.f[b], sm.l.rhs.f[b], sm.l.msk[b], c)
	}
	return nil
}

func (sm *smoother) interpAdd(crse multiField) error {
	if sm.dev != nil {
		for b, c := range crse.f {
			copy(sm.crse[b].Data, c.Data)
		}
		return sm.dev.InterpAdd()
	}
	for b, box := range sm.l.boxes {
		tensorlap.InterpAdd[float64](sm.ex, box, sm.l.sol.f[b], crse.f[b], sm.l.msk[b])
	}
	return nil
}
