// Package hamt implements a 32-way persistent Hash Array Mapped Trie keyed
// by value.Value, used by the VM to back string interning, compile-time
// lexical scopes, and chunk constant pools.
package hamt

import (
	"errors"

	"github.com/wisplang/wisp/internal/value"
)

// MaxDepth is ⌈64/5⌉ = 13, the deepest level a trie may descend to. Hashes
// are 32 bits wide, so levels 0..6 consume every 5-bit slice; from level 7
// on every slice reads as 0, and two distinct keys with equal hashes keep
// splitting until MaxDepth is passed.
const MaxDepth = 13

// ErrDepthExceeded is returned when two keys collide all the way to
// MaxDepth; spec.md leaves rehashing as an open, unimplemented option, so
// this implementation simply fails the call.
var ErrDepthExceeded = errors.New("hamt: hash collision exceeds maximum trie depth")

// node is either a leaf (holding one key/value entry) or an interior
// bitmap node (holding one child per set bit, in popcount order).
type node struct {
	refcount int32
	leaf     bool

	key, val value.Value // valid when leaf

	bitmap   uint32
	children []*node // valid when !leaf, len == popcount(bitmap)
}

// HAMT is an immutable-friendly trie: Set mutates in place (dropping the
// old structure), With returns a new HAMT sharing unaffected structure with
// the receiver.
type HAMT struct {
	count int
	root  *node
}

// New returns an empty HAMT.
func New() *HAMT {
	return &HAMT{root: &node{refcount: 1, bitmap: 0}}
}

// Count reports the number of entries.
func (h *HAMT) Count() int { return h.count }

// Clone returns a new HAMT sharing h's entire structure (bumping its
// root's refcount), with no change in content. Used to fork a new lexical
// scope from a parent before any declarations are made in it.
func (h *HAMT) Clone() *HAMT {
	h.root.refcount++
	return &HAMT{root: h.root, count: h.count}
}

func slice(hash uint32, level int) uint32 {
	return (hash >> uint(5*level)) & 0x1f
}

// Get looks up key, returning value.None() if absent.
func (h *HAMT) Get(r value.Resolver, key value.Value) value.Value {
	return get(h.root, key, value.Hash(r, key), 0)
}

func get(n *node, key value.Value, hash uint32, level int) value.Value {
	for {
		bit := uint32(1) << slice(hash, level)
		if n.bitmap&bit == 0 {
			return value.None()
		}
		pos := value.PopCount(n.bitmap & (bit - 1))
		child := n.children[pos]
		if child.leaf {
			if value.Equal(child.key, key) {
				return child.val
			}
			return value.None()
		}
		n = child
		level++
	}
}

// GetString looks up a not-yet-interned string by content, used to
// discover an existing canonical instance before the caller commits to
// allocating a new heap String.
func (h *HAMT) GetString(r value.Resolver, s *value.String) (value.Value, bool) {
	hash := s.Hash
	n := h.root
	level := 0
	for {
		bit := uint32(1) << slice(hash, level)
		if n.bitmap&bit == 0 {
			return value.None(), false
		}
		pos := value.PopCount(n.bitmap & (bit - 1))
		child := n.children[pos]
		if child.leaf {
			if child.key.IsHeapString() && r.String(child.key).SameContent(s) {
				return child.key, true
			}
			return value.None(), false
		}
		n = child
		level++
	}
}

// With returns a new HAMT with key bound to val, sharing any structure
// unaffected by the change with the receiver (which remains valid and
// unchanged).
func (h *HAMT) With(r value.Resolver, key, val value.Value) (*HAMT, error) {
	newRoot, inserted, err := with(r, h.root, key, val, value.Hash(r, key), 0)
	if err != nil {
		return nil, err
	}
	count := h.count
	if inserted {
		count++
	}
	return &HAMT{root: newRoot, count: count}, nil
}

// Set destructively rebinds key to val in place: the receiver's old
// structure is discarded (freed) once the new structure is installed.
func (h *HAMT) Set(r value.Resolver, key, val value.Value) error {
	old := h.root
	newRoot, inserted, err := with(r, old, key, val, value.Hash(r, key), 0)
	if err != nil {
		return err
	}
	h.root = newRoot
	if inserted {
		h.count++
	}
	free(old)
	return nil
}

// Free releases the HAMT's ownership of its structure, decrementing
// refcounts and recursing into children that drop to zero references.
func Free(h *HAMT) {
	if h == nil {
		return
	}
	free(h.root)
}

func free(n *node) {
	if n == nil {
		return
	}
	n.refcount--
	if n.refcount > 0 {
		return
	}
	if !n.leaf {
		for _, c := range n.children {
			free(c)
		}
	}
}

func cloneChildren(children []*node) []*node {
	cp := make([]*node, len(children))
	copy(cp, children)
	return cp
}

// bumpOthers increments the refcount of every child except the one at pos,
// whose slot is about to be overwritten: every other child is now
// referenced both by n (until n is freed) and by the new node being built.
func bumpOthers(children []*node, pos int) {
	for i, c := range children {
		if i != pos {
			c.refcount++
		}
	}
}

func with(r value.Resolver, n *node, key, val value.Value, hash uint32, level int) (*node, bool, error) {
	if level > MaxDepth {
		return nil, false, ErrDepthExceeded
	}
	bit := uint32(1) << slice(hash, level)
	pos := value.PopCount(n.bitmap & (bit - 1))

	if n.bitmap&bit == 0 {
		newChildren := make([]*node, len(n.children)+1)
		copy(newChildren, n.children[:pos])
		newChildren[pos] = &node{leaf: true, key: key, val: val, refcount: 1}
		copy(newChildren[pos+1:], n.children[pos:])
		for _, c := range n.children {
			c.refcount++
		}
		return &node{bitmap: n.bitmap | bit, children: newChildren, refcount: 1}, true, nil
	}

	child := n.children[pos]
	if child.leaf {
		if value.Equal(child.key, key) {
			newChildren := cloneChildren(n.children)
			newChildren[pos] = &node{leaf: true, key: key, val: val, refcount: 1}
			bumpOthers(newChildren, pos)
			return &node{bitmap: n.bitmap, children: newChildren, refcount: 1}, false, nil
		}
		sub, err := split(child.key, child.val, value.Hash(r, child.key), key, val, hash, level+1)
		if err != nil {
			return nil, false, err
		}
		newChildren := cloneChildren(n.children)
		newChildren[pos] = sub
		bumpOthers(newChildren, pos)
		return &node{bitmap: n.bitmap, children: newChildren, refcount: 1}, true, nil
	}

	sub, inserted, err := with(r, child, key, val, hash, level+1)
	if err != nil {
		return nil, false, err
	}
	newChildren := cloneChildren(n.children)
	newChildren[pos] = sub
	bumpOthers(newChildren, pos)
	return &node{bitmap: n.bitmap, children: newChildren, refcount: 1}, inserted, nil
}

func split(key1, val1 value.Value, hash1 uint32, key2, val2 value.Value, hash2 uint32, level int) (*node, error) {
	if level > MaxDepth {
		return nil, ErrDepthExceeded
	}
	idx1, idx2 := slice(hash1, level), slice(hash2, level)
	if idx1 == idx2 {
		sub, err := split(key1, val1, hash1, key2, val2, hash2, level+1)
		if err != nil {
			return nil, err
		}
		return &node{bitmap: uint32(1) << idx1, children: []*node{sub}, refcount: 1}, nil
	}
	leaf1 := &node{leaf: true, key: key1, val: val1, refcount: 1}
	leaf2 := &node{leaf: true, key: key2, val: val2, refcount: 1}
	bit1, bit2 := uint32(1)<<idx1, uint32(1)<<idx2
	children := []*node{leaf1, leaf2}
	if idx1 > idx2 {
		children = []*node{leaf2, leaf1}
	}
	return &node{bitmap: bit1 | bit2, children: children, refcount: 1}, nil
}
