package codegen

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Register allocation — linear scan over the flattened instruction order
//
// Virtual registers are mapped onto the callee-saved registers x19..x26 so
// that temporaries survive calls without caller-side spilling. Lowering
// never lets a virtual register live across a loop back-edge (variables are
// rematerialised from their frame slots), so liveness over the linear
// instruction order is exact. When more temporaries are live than there
// are registers, the interval that ends furthest away is spilled to a
// frame slot (Poletto & Sarkar style).
// ---------------------------------------------------------------------------

// allocatable callee-saved registers, in assignment order.
var allocatableRegs = []int{19, 20, 21, 22, 23, 24, 25, 26}

// AllocationError reports an internal inconsistency found while assigning
// registers, such as a virtual register that is used but never defined.
type AllocationError struct {
	Func    string
	Message string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("register allocation failed in %q: %s", e.Func, e.Message)
}

// interval is the live range of one virtual register in linear order.
type interval struct {
	vreg  int
	start int
	end   int
}

// Allocation is the result of register allocation for a single function.
type Allocation struct {
	Reg       map[int]int   // vreg -> physical register number (x<N>)
	SpillOff  map[int]int64 // vreg -> frame offset of its spill slot
	UsedRegs  []int         // callee-saved registers in use, ascending
	FrameSize int           // locals plus spill slots, in bytes
}

// SpillCount returns how many virtual registers were spilled.
func (a *Allocation) SpillCount() int {
	return len(a.SpillOff)
}

// allocateRegisters assigns every virtual register in fn to a physical
// register or a spill slot.
func allocateRegisters(fn *IRFunc) (*Allocation, error) {
	intervals, err := buildIntervals(fn)
	if err != nil {
		return nil, err
	}

	alloc := &Allocation{
		Reg:      make(map[int]int),
		SpillOff: make(map[int]int64),
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].start < intervals[j].start
	})

	free := append([]int(nil), allocatableRegs...)
	var active []*interval // sorted by increasing end

	expire := func(pos int) {
		n := 0
		freed := false
		for _, a := range active {
			if a.end >= pos {
				active[n] = a
				n++
				continue
			}
			free = append(free, alloc.Reg[a.vreg])
			freed = true
		}
		active = active[:n]
		// Keep the free list ascending so expired registers are reused
		// lowest-first.
		if freed {
			sort.Ints(free)
		}
	}

	spillOff := int64(fn.LocalBytes)
	spill := func(iv *interval) {
		spillOff += 8
		alloc.SpillOff[iv.vreg] = spillOff
	}

	for i := range intervals {
		iv := &intervals[i]
		expire(iv.start)

		if len(free) == 0 {
			// Spill whichever live range ends last.
			last := active[len(active)-1]
			if last.end > iv.end {
				alloc.Reg[iv.vreg] = alloc.Reg[last.vreg]
				delete(alloc.Reg, last.vreg)
				spill(last)
				active[len(active)-1] = iv
				sortActive(active)
			} else {
				spill(iv)
			}
			continue
		}

		alloc.Reg[iv.vreg] = free[0]
		free = free[1:]
		active = append(active, iv)
		sortActive(active)
	}

	used := make(map[int]bool)
	for _, r := range alloc.Reg {
		used[r] = true
	}
	for r := range used {
		alloc.UsedRegs = append(alloc.UsedRegs, r)
	}
	sort.Ints(alloc.UsedRegs)
	alloc.FrameSize = int(spillOff)
	return alloc, nil
}

func sortActive(active []*interval) {
	sort.Slice(active, func(i, j int) bool {
		return active[i].end < active[j].end
	})
}

// buildIntervals computes, per virtual register, the first definition and
// the last use over the flattened block order.
func buildIntervals(fn *IRFunc) ([]interval, error) {
	start := make(map[int]int)
	end := make(map[int]int)

	def := func(op Operand, pos int) {
		if op.Kind != OpVirtReg {
			return
		}
		if _, seen := start[op.Reg]; !seen {
			start[op.Reg] = pos
		}
		if pos > end[op.Reg] {
			end[op.Reg] = pos
		}
	}
	use := func(op Operand, pos int) error {
		var reg int
		switch op.Kind {
		case OpVirtReg:
			reg = op.Reg
		case OpAddr:
			reg = op.Reg
		default:
			return nil
		}
		if _, seen := start[reg]; !seen {
			return &AllocationError{
				Func:    fn.Name,
				Message: fmt.Sprintf("v%d used before definition", reg),
			}
		}
		if pos > end[reg] {
			end[reg] = pos
		}
		return nil
	}

	pos := 0
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			// Sources first: a same-position use must not shorten the
			// destination's range.
			srcs := []Operand{instr.Src1, instr.Src2}
			srcs = append(srcs, instr.Args...)
			if instr.Op == IRStore {
				srcs = append(srcs, instr.Dst) // memory destination is a use
			}
			for _, s := range srcs {
				if err := use(s, pos); err != nil {
					return nil, err
				}
			}
			if instr.Op != IRStore && instr.Op != IRJmp && instr.Op != IRBr {
				def(instr.Dst, pos)
			}
			pos++
		}
	}

	out := make([]interval, 0, len(start))
	for v, s := range start {
		out = append(out, interval{vreg: v, start: s, end: end[v]})
	}
	return out, nil
}
