package state

import (
	"symex/ga"
	"symex/smt"
)

// Memory is the hybrid store described in §3: a concrete byte overlay for
// ELF-backed regions (.text/.rodata/initialized .data) plus an append-only
// symbolic array for everything else (stack, heap, and any address the
// concrete overlay doesn't cover). It mirrors memory.Bank's Read/Write
// shape but, unlike a 6502 Bank, a single Memory owns both representations
// and arbitrates between them per access rather than delegating to a
// parent chain.
//
// The symbolic array is a log of Store expressions over a shared base; two
// states produced by Fork share the same base array handle and diverge
// only by appending further Stores, which is what keeps forking cheap
// (§9 "State forking without cycles").
type Memory struct {
	g smt.Gateway

	// concrete holds bytes readable/writable without going through the
	// solver: ELF-backed regions plus any address a prior concrete write
	// established. mapped[addr] gates whether concrete[addr] is valid;
	// writable[addr] gates whether a concrete write is permitted (ELF
	// .rodata and .text are mapped but not writable).
	concrete map[uint32]uint8
	mapped   map[uint32]bool
	writable map[uint32]bool

	// array is the current head of the symbolic-memory Store log: an
	// smt.Expr of array sort (index width 32, element width 8).
	array smt.Expr
}

// NewMemory constructs an empty hybrid memory backed by solver gateway g.
// base, if non-nil, seeds the symbolic array (used when adapting an image
// loader's ArrayConst as the memory's initial state); if nil, a fresh
// ArrayConst named "mem" is created.
func NewMemory(g smt.Gateway, base smt.Expr) *Memory {
	if base == nil {
		base = g.ArrayConst("mem", 32, 8)
	}
	return &Memory{
		g:        g,
		concrete: make(map[uint32]uint8),
		mapped:   make(map[uint32]bool),
		writable: make(map[uint32]bool),
		array:    base,
	}
}

// MapConcrete installs data at addr as a concrete region. writable governs
// whether later concrete writes to this address are accepted (true for
// .data/stack-backing pages, false for .text/.rodata).
func (m *Memory) MapConcrete(addr uint32, data []uint8, writable bool) {
	for i, b := range data {
		a := addr + uint32(i)
		m.concrete[a] = b
		m.mapped[a] = true
		m.writable[a] = writable
	}
}

// ReadByte reads one byte at addr. If addr is concrete and mapped, the
// concrete overlay answers directly; otherwise the read materializes a
// symbolic Select against the array, which — per the McCarthy array axioms
// the reference solver evaluates structurally — is idempotent for a given
// address within this Memory (§4.C "fresh symbolic cell ... idempotent").
func (m *Memory) ReadByte(addr ga.Value) ga.Value {
	if !addr.IsSymbolic() {
		a := uint32(addr.Conc)
		if m.mapped[a] {
			return ga.Concrete(ga.Width8, uint64(m.concrete[a]))
		}
	}
	idx := toExpr32(m.g, addr)
	sel := m.g.Select(m.array, idx)
	return ga.Symbolic(ga.Width8, sel)
}

// WriteByte writes val at addr. A concrete value at a concrete address that
// is writable or not yet mapped updates the overlay in place (an unmapped
// address becomes a writable overlay byte); any other write appends a Store
// to the symbolic array log, which is what lets Fork share history cheaply.
func (m *Memory) WriteByte(addr, val ga.Value) {
	if !addr.IsSymbolic() {
		a := uint32(addr.Conc)
		if !m.mapped[a] || m.writable[a] {
			if val.IsSymbolic() {
				// A symbolic value can't live in the byte overlay; unmap
				// the address so future reads fall through to the array
				// instead of finding a stale concrete byte.
				m.mapped[a] = false
			} else {
				m.concrete[a] = uint8(val.Conc)
				m.mapped[a] = true
				m.writable[a] = true
				return
			}
		}
	}
	idx := toExpr32(m.g, addr)
	v := toExpr8(m.g, val)
	m.array = m.g.Store(m.array, idx, v)
}

// ReadWidth reads a little-endian multi-byte value (matches §3: "Endianness
// is per-architecture (little-endian for all supported ISAs)").
func (m *Memory) ReadWidth(addr ga.Value, width ga.Width) ga.Value {
	n := int(width) / 8
	bytes := make([]ga.Value, n)
	for i := 0; i < n; i++ {
		bytes[i] = m.ReadByte(offset(m.g, addr, uint32(i)))
	}
	return concatLE(m.g, bytes, width)
}

// WriteWidth writes a little-endian multi-byte value.
func (m *Memory) WriteWidth(addr, val ga.Value, width ga.Width) {
	n := int(width) / 8
	for i := 0; i < n; i++ {
		b := extractByte(m.g, val, width, i)
		m.WriteByte(offset(m.g, addr, uint32(i)), b)
	}
}

// Clone returns an independent copy for Fork: the concrete overlay is
// copied (it is small and per-state, so a shallow map copy is cheap and
// correct), while the symbolic array handle is shared by value — Store
// nodes are immutable, so sharing the head is safe until one child
// appends its own Store, which naturally produces a new head without
// touching the sibling's.
func (m *Memory) Clone() *Memory {
	concrete := make(map[uint32]uint8, len(m.concrete))
	for k, v := range m.concrete {
		concrete[k] = v
	}
	mapped := make(map[uint32]bool, len(m.mapped))
	for k, v := range m.mapped {
		mapped[k] = v
	}
	writable := make(map[uint32]bool, len(m.writable))
	for k, v := range m.writable {
		writable[k] = v
	}
	return &Memory{g: m.g, concrete: concrete, mapped: mapped, writable: writable, array: m.array}
}

func offset(g smt.Gateway, addr ga.Value, n uint32) ga.Value {
	if !addr.IsSymbolic() {
		return ga.Concrete(ga.Width32, uint64(uint32(addr.Conc)+n))
	}
	return ga.Symbolic(ga.Width32, g.Add(toExpr32(g, addr), g.Literal(32, uint64(n))))
}

func toExpr32(g smt.Gateway, v ga.Value) smt.Expr {
	if v.IsSymbolic() {
		return v.Sym
	}
	return g.Literal(32, v.Conc)
}

func toExpr8(g smt.Gateway, v ga.Value) smt.Expr {
	if v.IsSymbolic() {
		return v.Sym
	}
	return g.Literal(8, v.Conc)
}

func concatLE(g smt.Gateway, bytes []ga.Value, width ga.Width) ga.Value {
	allConcrete := true
	for _, b := range bytes {
		if b.IsSymbolic() {
			allConcrete = false
			break
		}
	}
	if allConcrete {
		var acc uint64
		for i, b := range bytes {
			acc |= b.Conc << (8 * uint(i))
		}
		return ga.Concrete(width, acc)
	}
	// bytes[0] is least significant; Concat takes (hi, lo), so fold from
	// the most-significant byte down.
	acc := toExpr8(g, bytes[len(bytes)-1])
	for i := len(bytes) - 2; i >= 0; i-- {
		acc = g.Concat(acc, toExpr8(g, bytes[i]))
	}
	return ga.Symbolic(width, acc)
}

func extractByte(g smt.Gateway, val ga.Value, width ga.Width, i int) ga.Value {
	if !val.IsSymbolic() {
		return ga.Concrete(ga.Width8, (val.Conc>>(8*uint(i)))&0xFF)
	}
	hi := 8*i + 7
	lo := 8 * i
	return ga.Symbolic(ga.Width8, g.Extract(val.Sym, hi, lo))
}
