// Package elfimage loads a statically-linked ELF32 embedded binary into the
// byte-addressable image the decoders and symbolic memory need (§4.H). It
// is pure plumbing: a read-only collaborator the rest of the engine treats
// as an opaque Image, mirroring how memory.Bank is a read/write collaborator
// the 6502 core treats as an opaque interface rather than reaching into its
// internals.
package elfimage

import (
	"debug/elf"
	"fmt"
	"sort"
)

// Region is one loadable ELF segment's footprint in the image: its base
// address, raw bytes, and whether the segment is writable (data/bss) or not
// (text/rodata). Bss-only regions carry zero-filled Data of the segment's
// memory size even though the file contains no bytes for them.
type Region struct {
	Addr     uint32
	Data     []byte
	Writable bool
	Execute  bool
}

// Image is a byte-addressable view of a loaded ELF32 binary: the union of
// its loadable segments plus a name->address symbol table. It implements
// decoder.Image's ReadCode method directly so a Decoder never needs to know
// it's looking at an ELF file rather than some other byte source.
type Image struct {
	Entry   uint32
	Regions []Region
	Symbols map[string]uint32
	// ByAddr is the inverse of Symbols, built once at load time for exec's
	// intrinsic/panic-symbol recognition (§4.G).
	ByAddr map[uint32]string
}

// Load parses path as a 32-bit ELF file and builds an Image from its
// loadable (PT_LOAD) segments and symbol table. Only statically-linked,
// fully-resolved binaries are supported — relocation processing is out of
// scope (§Non-goals): a binary still carrying unresolved relocations reads
// back whatever placeholder bytes the linker left in those slots.
func Load(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfimage: open %s: %w", path, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("elfimage: %s is not a 32-bit ELF (class %v)", path, f.Class)
	}

	img := &Image{
		Entry:   uint32(f.Entry),
		Symbols: make(map[string]uint32),
		ByAddr:  make(map[uint32]string),
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		data := make([]byte, prog.Memsz)
		n, err := prog.ReadAt(data[:prog.Filesz], 0)
		if err != nil && uint64(n) != prog.Filesz {
			return nil, fmt.Errorf("elfimage: reading segment at %#x: %w", prog.Vaddr, err)
		}
		img.Regions = append(img.Regions, Region{
			Addr:     uint32(prog.Vaddr),
			Data:     data,
			Writable: prog.Flags&elf.PF_W != 0,
			Execute:  prog.Flags&elf.PF_X != 0,
		})
	}
	sort.Slice(img.Regions, func(i, j int) bool { return img.Regions[i].Addr < img.Regions[j].Addr })

	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("elfimage: reading symbol table: %w", err)
	}
	for _, sym := range syms {
		if sym.Name == "" {
			continue
		}
		addr := uint32(sym.Value)
		img.Symbols[sym.Name] = addr
		img.ByAddr[addr] = sym.Name
	}

	return img, nil
}

// regionFor returns the region containing addr, if any.
func (img *Image) regionFor(addr uint32) (Region, bool) {
	for _, r := range img.Regions {
		if addr >= r.Addr && addr < r.Addr+uint32(len(r.Data)) {
			return r, true
		}
	}
	return Region{}, false
}

// ReadCode implements decoder.Image: it returns n raw bytes at addr,
// failing if any byte of the requested range falls outside every loaded
// segment (an out-of-bounds fetch is always a decode-time Error, never a
// forked outcome, since code addresses are never symbolic at fetch time in
// this engine — only data addresses are).
func (img *Image) ReadCode(addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		r, ok := img.regionFor(addr + uint32(len(out)))
		if !ok {
			return nil, fmt.Errorf("elfimage: address %#x not mapped", addr+uint32(len(out)))
		}
		off := addr + uint32(len(out)) - r.Addr
		avail := uint32(len(r.Data)) - off
		take := uint32(n - len(out))
		if take > avail {
			take = avail
		}
		out = append(out, r.Data[off:off+take]...)
	}
	return out, nil
}

// SymbolAddr looks up a symbol by name, for resolving an analysis entry
// point given as a function name rather than a raw address.
func (img *Image) SymbolAddr(name string) (uint32, bool) {
	addr, ok := img.Symbols[name]
	return addr, ok
}
