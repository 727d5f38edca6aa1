package forkjoin

// PinStrategy selects how worker goroutines are bound to CPUs. Binding is a
// hook, not a placement policy: the runtime makes no topology decisions
// beyond the mapping below, and strategies other than PinNone lock each
// worker goroutine to an OS thread so the affinity mask means something.
type PinStrategy uint8

const (
	// PinNone leaves scheduling to the Go runtime and the OS. Default.
	PinNone PinStrategy = iota

	// PinSequential binds worker i to CPU i (mod NumCPU), packing workers
	// onto adjacent CPUs.
	PinSequential

	// PinScatter strides workers across the CPU range, approximating a fan
	// across packages on multi-socket machines without consulting topology.
	PinScatter
)

// String returns a human-readable representation of the strategy.
func (p PinStrategy) String() string {
	switch p {
	case PinNone:
		return "none"
	case PinSequential:
		return "sequential"
	case PinScatter:
		return "scatter"
	default:
		return "unknown"
	}
}
