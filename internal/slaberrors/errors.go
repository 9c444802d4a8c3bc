// Package slaberrors defines the structured error taxonomy shared by every
// layer of the allocator: block, block list, sized slab, tagged pointer,
// ring queue and the untyped malloc/free facade.
package slaberrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy. Comparisons should use errors.Is
// against the sentinel values below, never string matching on Error().
type Kind int

const (
	// OutOfMemory is raised when a trie's node slab cannot serve a
	// branch or leaf allocation. Block construction does not raise it.
	OutOfMemory Kind = iota + 1
	// InvalidValueSize is raised when a block is constructed with
	// value_size == 0.
	InvalidValueSize
	// InvalidAlignmentRequest is raised when the requested alignment
	// exceeds the total block storage.
	InvalidAlignmentRequest
	// OutOfMemoryForAlignment is raised when aligning the storage buffer
	// upward leaves fewer usable slots than requested.
	OutOfMemoryForAlignment
	// MisalignedFreePointer is raised when Free is called with a pointer
	// that does not land on a slot boundary.
	MisalignedFreePointer
	// PointerNotInBlock is raised when Free is called with a pointer
	// outside the block's storage range.
	PointerNotInBlock
	// UnalignedTaggedPointer is raised when constructing a tagged pointer
	// from a pointer whose low bits are non-zero.
	UnalignedTaggedPointer
	// InvalidDereference is raised when dereferencing an end-sentinel
	// iterator.
	InvalidDereference
	// HandleExhausted is raised when the ring queue's producer/consumer
	// handle ceiling has been reached.
	HandleExhausted
	// CapacityArgumentInvalid is raised when a capacity argument is
	// internally inconsistent (e.g. max < initial).
	CapacityArgumentInvalid
	// SlabFull names the failure where no bucket serves the requested
	// size. MakeUnique reports it as the MakeSlabFull result, not as an
	// Error of this kind.
	SlabFull
)

func (k Kind) String() string {
	switch k {
	case OutOfMemory:
		return "out_of_memory"
	case InvalidValueSize:
		return "invalid_value_size"
	case InvalidAlignmentRequest:
		return "invalid_alignment_request"
	case OutOfMemoryForAlignment:
		return "out_of_memory_for_alignment"
	case MisalignedFreePointer:
		return "misaligned_free_pointer"
	case PointerNotInBlock:
		return "pointer_not_in_block"
	case UnalignedTaggedPointer:
		return "unaligned_tagged_pointer"
	case InvalidDereference:
		return "invalid_dereference"
	case HandleExhausted:
		return "handle_exhausted"
	case CapacityArgumentInvalid:
		return "capacity_argument_invalid"
	case SlabFull:
		return "slab_full"
	default:
		return "unknown"
	}
}

// Error is the concrete structured error type every layer raises. It
// carries enough context (the offending size/alignment/pointer) to be
// useful in a log line without string-parsing Error().
type Error struct {
	Kind      Kind
	Op        string // the operation that failed, e.g. "block.New"
	Size      uint64
	Alignment uint64
	Pointer   uintptr
	Message   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("slabmem: %s: %s (kind=%s size=%d alignment=%d ptr=0x%x)",
			e.Op, e.Message, e.Kind, e.Size, e.Alignment, e.Pointer)
	}
	return fmt.Sprintf("slabmem: %s: %s (size=%d alignment=%d ptr=0x%x)",
		e.Op, e.Kind, e.Size, e.Alignment, e.Pointer)
}

// Is allows errors.Is(err, slaberrors.New(kind, "", "")) style matching by
// kind alone: two *Error values compare equal under errors.Is iff their
// Kind fields match.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs a structured error for the given kind and operation.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WithSize returns a copy of e annotated with a size value.
func (e *Error) WithSize(size uint64) *Error {
	c := *e
	c.Size = size
	return &c
}

// WithAlignment returns a copy of e annotated with an alignment value.
func (e *Error) WithAlignment(alignment uint64) *Error {
	c := *e
	c.Alignment = alignment
	return &c
}

// WithPointer returns a copy of e annotated with a pointer value.
func (e *Error) WithPointer(ptr uintptr) *Error {
	c := *e
	c.Pointer = ptr
	return &c
}

// KindOf reports the Kind of err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
