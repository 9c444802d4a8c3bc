// Package tagged implements the tagged-pointer component (§4.2): a
// machine pointer with a 2-bit tag packed into its low bits, requiring
// the pointee be at least 4-byte aligned. Used by the bitwise trie to
// discriminate {empty, branch, leaf} children without a separate
// discriminant word, and to make child links CAS-friendly (pointer +
// discriminant updated together in one atomic word).
package tagged

import (
	"sync/atomic"
	"unsafe"

	"github.com/arcaflux/slabmem/internal/slaberrors"
)

// Tag is the 2-bit discriminant packed into a pointer's low bits.
type Tag uint8

const (
	tagMask = uintptr(3)
	ptrMask = ^tagMask
)

// MaxTag is the largest representable tag value (2 bits).
const MaxTag = Tag(3)

// Pointer is an immutable aligned-pointer-plus-tag value. The zero value
// represents a nil pointer with tag 0.
type Pointer[T any] struct {
	raw uintptr
}

// New packs ptr and tag into a Pointer. ptr must be nil or 4-byte
// aligned; otherwise New returns UnalignedTaggedPointer.
func New[T any](ptr *T, tag Tag) (Pointer[T], error) {
	addr := uintptr(unsafe.Pointer(ptr))
	if addr&tagMask != 0 {
		return Pointer[T]{}, slaberrors.New(slaberrors.UnalignedTaggedPointer, "tagged.New",
			"pointer low 2 bits must be zero").WithPointer(addr)
	}
	return Pointer[T]{raw: addr | (uintptr(tag) & tagMask)}, nil
}

// FromRaw reconstructs a Pointer from a previously observed raw word
// (e.g. the result of a successful CAS on an Atomic[T]). The caller is
// responsible for raw having come from a valid Pointer[T].
func FromRaw[T any](raw uintptr) Pointer[T] {
	return Pointer[T]{raw: raw}
}

// Ptr returns the pointer component with the tag bits masked off.
func (p Pointer[T]) Ptr() *T {
	return (*T)(unsafe.Pointer(p.raw & ptrMask))
}

// Tag returns the 2-bit tag component.
func (p Pointer[T]) Tag() Tag {
	return Tag(p.raw & tagMask)
}

// WithTag returns a new Pointer with the same address and a replaced
// tag, mirroring the original's operator| recomposition used to build a
// CAS candidate value without re-validating alignment.
func (p Pointer[T]) WithTag(tag Tag) Pointer[T] {
	return Pointer[T]{raw: (p.raw & ptrMask) | (uintptr(tag) & tagMask)}
}

// Raw returns the packed word, suitable for storing in an Atomic[T] or
// comparing directly.
func (p Pointer[T]) Raw() uintptr {
	return p.raw
}

// Equal reports whether two tagged pointers carry the same address and
// tag.
func (p Pointer[T]) Equal(other Pointer[T]) bool {
	return p.raw == other.raw
}

// IsNil reports whether the pointer component is nil, regardless of tag.
func (p Pointer[T]) IsNil() bool {
	return p.raw&ptrMask == 0
}

// Atomic is a lock-free, CAS-friendly tagged pointer cell, as used for
// branch children in the bitwise trie: a single machine word carries
// both the child pointer and its kind, so a CAS never observes a torn
// pointer/tag pair.
type Atomic[T any] struct {
	word atomic.Uintptr
}

// Load returns the currently stored tagged pointer.
func (a *Atomic[T]) Load() Pointer[T] {
	return FromRaw[T](a.word.Load())
}

// Store unconditionally replaces the stored tagged pointer.
func (a *Atomic[T]) Store(p Pointer[T]) {
	a.word.Store(p.raw)
}

// CompareAndSwap atomically replaces the stored pointer with newP iff it
// currently equals oldP, returning whether the swap happened.
func (a *Atomic[T]) CompareAndSwap(oldP, newP Pointer[T]) bool {
	return a.word.CompareAndSwap(oldP.raw, newP.raw)
}
