package slab

import "unsafe"

// Owner is a scoped, single-ownership handle to one slab-backed value of
// type T, mirroring the original's make_unique/slab_unique_ptr pair:
// Release returns the slot to the slab it came from; no destructor or
// finalizer runs on the value. Go has no placement-new, so
// MakeUnique takes a pre-built T and copies it into slab storage rather
// than constructing in place.
type Owner[T any] struct {
	slab *Slab
	ptr  *T
}

// MakeUnique allocates one slot sized for T from s, copies value into it,
// and returns an Owner. Fails with MakeSlabFull if no bucket serves
// sizeof(T).
func MakeUnique[T any](s *Slab, value T) (MakeResult, *Owner[T]) {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	align := uint64(unsafe.Alignof(zero))
	p := s.Allocate(size, align, 1)
	if p == nil {
		return MakeSlabFull, nil
	}
	typed := (*T)(p)
	*typed = value
	return MakeSuccess, &Owner[T]{slab: s, ptr: typed}
}

// Get returns the owned value's pointer. Calling Get after Release is
// undefined, matching a use-after-free on the original's raw pointer.
func (o *Owner[T]) Get() *T { return o.ptr }

// Release returns the slot to the owning slab. Calling Release more than
// once double-frees, same as the original's unique_ptr semantics: the
// caller is responsible for calling it exactly once.
func (o *Owner[T]) Release() error {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	align := uint64(unsafe.Alignof(zero))
	return o.slab.Deallocate(size, align, unsafe.Pointer(o.ptr), 1)
}
