package exec

import "fmt"

// MemoryFault is raised for an access outside mapped regions or a
// forbidden unaligned access (§7).
type MemoryFault struct {
	Addr  uint32
	Width uint
	Op    string
	Cause string
}

func (e MemoryFault) Error() string {
	return fmt.Sprintf("memory fault: %s width=%d at addr=0x%08X: %s", e.Op, e.Width, e.Addr, e.Cause)
}

// DivideByZero is a semantic fault raised by SDIV/UDIV-style ops when the
// divisor is a provably-zero concrete value (a symbolic zero divisor is
// instead handled by forking: the zero branch faults, the nonzero branch
// proceeds, per §4.E "Divisions by zero ... produce Error").
type DivideByZero struct {
	PC uint32
}

func (e DivideByZero) Error() string {
	return fmt.Sprintf("divide by zero at pc=0x%08X", e.PC)
}

// UnknownIntrinsic is raised when the executor crosses into a symbol whose
// name matches no known hook in the runtime intrinsics library (§4.G).
type UnknownIntrinsic struct {
	Name string
}

func (e UnknownIntrinsic) Error() string {
	return fmt.Sprintf("unrecognized intrinsic symbol %q", e.Name)
}
