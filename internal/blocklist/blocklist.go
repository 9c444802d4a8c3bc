// Package blocklist implements the Block list component (§4.4): an
// append-only, CAS-linked singly linked chain of same-value-size Blocks.
// Growth only ever happens at the tail, and a node, once linked, is never
// unlinked while the list is alive.
package blocklist

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/arcaflux/slabmem/internal/block"
	"github.com/arcaflux/slabmem/internal/slaberrors"
)

// AppendResult reports the outcome of Iterator.TryAppend.
type AppendResult int

const (
	// AppendSuccess means the successor was linked.
	AppendSuccess AppendResult = iota
	// AppendBeaten means another goroutine linked a successor first; the
	// caller keeps ownership of its own node and should retry from the
	// (now non-last) iterator position.
	AppendBeaten
)

// Node owns one Block and an atomically-swapped pointer to its successor.
// A Node is heap-owned by its predecessor; there is no explicit Node
// destructor in Go; the GC reclaims the chain once the List itself is
// unreachable, mirroring the original's recursive-destructor intent
// without needing one.
type Node struct {
	blk  *block.Block
	next atomic.Pointer[Node]
}

// Block returns the node's block.
func (n *Node) Block() *block.Block { return n.blk }

// List is the append-only chain itself: a value size shared by every
// block in the chain, and an eagerly-constructed head node.
type List struct {
	valueSize uint64
	alignment uint64
	head      *Node
	log       *zap.Logger
}

// New constructs a List whose head block has the given capacity.
func New(valueSize uint64, capacity uint32, alignment uint64, logger *zap.Logger) (*List, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	head, err := newNode(valueSize, capacity, alignment, logger)
	if err != nil {
		return nil, err
	}
	return &List{
		valueSize: valueSize,
		alignment: alignment,
		head:      head,
		log:       logger,
	}, nil
}

func newNode(valueSize uint64, capacity uint32, alignment uint64, logger *zap.Logger) (*Node, error) {
	b, err := block.New(valueSize, capacity, alignment, logger)
	if err != nil {
		return nil, err
	}
	return &Node{blk: b}, nil
}

// ValueSize is the value size shared by every block in the list.
func (l *List) ValueSize() uint64 { return l.valueSize }

// CreateNode constructs an un-linked node whose block has the given
// capacity and the list's value size/alignment; the caller links it via
// Iterator.TryAppend.
func (l *List) CreateNode(capacity uint32) (*Node, error) {
	return newNode(l.valueSize, capacity, l.alignment, l.log)
}

// Begin returns an iterator positioned at the head node. The head is
// constructed eagerly, so Begin is always valid.
func (l *List) Begin() *Iterator {
	return &Iterator{ptr: l.head}
}

// Iterator walks the chain from a starting node to the end sentinel (a
// nil pointer).
type Iterator struct {
	ptr *Node
}

// IsValid reports whether the iterator refers to a real node.
func (it *Iterator) IsValid() bool { return it.ptr != nil }

// IsLast reports whether the current node has no successor yet.
func (it *Iterator) IsLast() bool {
	return it.IsValid() && it.ptr.next.Load() == nil
}

// Next advances past the current node, loading its successor with
// acquire semantics so a concurrent TryAppend's writes are visible.
func (it *Iterator) Next() {
	if !it.IsValid() {
		return
	}
	it.ptr = it.ptr.next.Load()
}

// Node dereferences the iterator, returning the current node.
// Dereferencing the end sentinel reports InvalidDereference.
func (it *Iterator) Node() (*Node, error) {
	if !it.IsValid() {
		return nil, slaberrors.New(slaberrors.InvalidDereference, "blocklist.Iterator.Node",
			"cannot dereference end-of-list iterator")
	}
	return it.ptr, nil
}

// TryAppend links successor as the current node's next pointer via CAS,
// succeeding only if the current node has no successor yet. On success
// ownership of successor transfers to the list. On AppendBeaten the
// caller retains successor and should re-read Next()/IsLast() before
// retrying, since another goroutine has already grown the list past this
// position.
func (it *Iterator) TryAppend(successor *Node) (AppendResult, error) {
	if !it.IsValid() {
		return AppendBeaten, slaberrors.New(slaberrors.InvalidDereference, "blocklist.Iterator.TryAppend",
			"cannot append past end-of-list iterator")
	}
	successor.next.Store(nil)
	if it.ptr.next.CompareAndSwap(nil, successor) {
		return AppendSuccess, nil
	}
	return AppendBeaten, nil
}
