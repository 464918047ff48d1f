// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

// Package merkle provides an implementation of a merkle tree used to commit
// a block header to the ordered list of its transactions.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
)

// ErrNoData is returned when a tree is built from an empty list.
var ErrNoData = errors.New("can't construct tree with no data")

// Hashable represents the data that is stored and verified by the tree. A
// type that implements this interface can be used as an item in the tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) (bool, error)
}

// =============================================================================

// Tree is the container for the tree. It holds a pointer to the root of
// the tree, a list of pointers to the leaf nodes, and the merkle root.
type Tree[T Hashable[T]] struct {
	Root         *Node[T]
	MerkleRoot   []byte
	Leaves       []*Node[T]
	hashStrategy func() hash.Hash
}

// WithHashStrategy allows configuration of a different hash strategy than
// the default single SHA-256.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree over the data, preserving its order.
func NewTree[T Hashable[T]](data []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.GenerateTree(data); err != nil {
		return nil, err
	}

	return &t, nil
}

// GenerateTree replaces the content of the tree and does a complete rebuild.
func (t *Tree[T]) GenerateTree(data []T) error {
	root, leaves, err := buildWithData(data, t)
	if err != nil {
		return err
	}

	t.Root = root
	t.Leaves = leaves
	t.MerkleRoot = root.Hash

	return nil
}

// RebuildTree rebuilds the tree reusing only the data held in the leaves.
func (t *Tree[T]) RebuildTree() error {
	return t.GenerateTree(t.Values())
}

// Values returns the data of the tree in order, without the duplicate leaf
// added to balance an odd count.
func (t *Tree[T]) Values() []T {
	values := make([]T, 0, len(t.Leaves))
	for _, node := range t.Leaves {
		if node.dup {
			continue
		}
		values = append(values, node.Value)
	}

	return values
}

// RootHex returns the merkle root as a hex string.
func (t *Tree[T]) RootHex() string {
	return fmt.Sprintf("0x%x", t.MerkleRoot)
}

// MerklePath returns the sibling hashes from the leaf holding the data up to
// the root, with 1 marking a right sibling and 0 a left one.
func (t *Tree[T]) MerklePath(data T) ([][]byte, []int64, error) {
	for _, node := range t.Leaves {
		ok, err := node.Value.Equals(data)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}

		nodeParent := node.Parent
		var merklePath [][]byte
		var index []int64
		for nodeParent != nil {
			if bytes.Equal(nodeParent.Left.Hash, node.Hash) {
				merklePath = append(merklePath, nodeParent.Right.Hash)
				index = append(index, 1)
			} else {
				merklePath = append(merklePath, nodeParent.Left.Hash)
				index = append(index, 0)
			}
			node = nodeParent
			nodeParent = nodeParent.Parent
		}

		return merklePath, index, nil
	}

	return nil, nil, nil
}

// VerifyTree recalculates the hashes at each level of the tree and reports
// whether the result matches the stored merkle root.
func (t *Tree[T]) VerifyTree() (bool, error) {
	calculatedMerkleRoot, err := t.Root.verifyNode()
	if err != nil {
		return false, err
	}

	return bytes.Equal(t.MerkleRoot, calculatedMerkleRoot), nil
}

// VerifyData indicates whether the data is in the tree and the hashes on
// its path to the root are still valid.
func (t *Tree[T]) VerifyData(data T) (bool, error) {
	for _, node := range t.Leaves {
		ok, err := node.Value.Equals(data)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		currentParent := node.Parent
		for currentParent != nil {
			rightBytes, err := currentParent.Right.CalculateNodeHash()
			if err != nil {
				return false, err
			}

			leftBytes, err := currentParent.Left.CalculateNodeHash()
			if err != nil {
				return false, err
			}

			h := t.hashStrategy()
			if _, err := h.Write(append(leftBytes, rightBytes...)); err != nil {
				return false, err
			}

			if !bytes.Equal(h.Sum(nil), currentParent.Hash) {
				return false, nil
			}

			currentParent = currentParent.Parent
		}

		return true, nil
	}

	return false, nil
}

// String returns a string representation of the tree. Only leaf nodes are
// included in the output.
func (t *Tree[T]) String() string {
	var b bytes.Buffer
	for _, l := range t.Leaves {
		b.WriteString(l.String())
		b.WriteString("\n")
	}

	return b.String()
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to
// its immediate relationships, a hash, and the data if it's a leaf.
type Node[T Hashable[T]] struct {
	Tree   *Tree[T]
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   []byte
	Value  T
	leaf   bool
	dup    bool
}

// verifyNode walks down the tree until hitting a leaf, calculating the
// hash at each level and returning the resulting hash of the node.
func (n *Node[T]) verifyNode() ([]byte, error) {
	if n.leaf {
		return n.Value.Hash()
	}

	rightBytes, err := n.Right.verifyNode()
	if err != nil {
		return nil, err
	}

	leftBytes, err := n.Left.verifyNode()
	if err != nil {
		return nil, err
	}

	h := n.Tree.hashStrategy()
	if _, err := h.Write(append(leftBytes, rightBytes...)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// CalculateNodeHash calculates the hash of the node from its children, or
// from its data for a leaf.
func (n *Node[T]) CalculateNodeHash() ([]byte, error) {
	if n.leaf {
		return n.Value.Hash()
	}

	h := n.Tree.hashStrategy()
	if _, err := h.Write(append(n.Left.Hash, n.Right.Hash...)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// String returns a string representation of the node.
func (n *Node[T]) String() string {
	return fmt.Sprintf("%t %t %x %v", n.leaf, n.dup, n.Hash, n.Value)
}

// =============================================================================

// buildWithData builds the leaves for the data and the levels above them.
// An odd leaf count is balanced by duplicating the last leaf.
func buildWithData[T Hashable[T]](data []T, t *Tree[T]) (*Node[T], []*Node[T], error) {
	if len(data) == 0 {
		return nil, nil, ErrNoData
	}

	leaves := make([]*Node[T], 0, len(data)+1)
	for _, value := range data {
		hash, err := value.Hash()
		if err != nil {
			return nil, nil, err
		}

		leaves = append(leaves, &Node[T]{
			Hash:  hash,
			Value: value,
			leaf:  true,
			Tree:  t,
		})
	}

	if len(leaves)%2 == 1 {
		last := leaves[len(leaves)-1]
		leaves = append(leaves, &Node[T]{
			Hash:  last.Hash,
			Value: last.Value,
			leaf:  true,
			dup:   true,
			Tree:  t,
		})
	}

	root, err := buildIntermediate(leaves, t)
	if err != nil {
		return nil, nil, err
	}

	return root, leaves, nil
}

// buildIntermediate constructs the intermediate and root levels above the
// nodes and returns the root.
func buildIntermediate[T Hashable[T]](nl []*Node[T], t *Tree[T]) (*Node[T], error) {
	var nodes []*Node[T]

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if i+1 == len(nl) {
			right = i
		}

		h := t.hashStrategy()
		chash := append(append([]byte{}, nl[left].Hash...), nl[right].Hash...)
		if _, err := h.Write(chash); err != nil {
			return nil, err
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  h.Sum(nil),
			Tree:  t,
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n

		if len(nl) == 2 {
			return &n, nil
		}
	}

	return buildIntermediate(nodes, t)
}

// =============================================================================

// doubleSHA256 hashes the SHA-256 digest of the written data again.
type doubleSHA256 struct {
	hash.Hash
}

// DoubleSHA256 is a hash strategy matching the chain hash of the ledger.
func DoubleSHA256() hash.Hash {
	return doubleSHA256{sha256.New()}
}

func (d doubleSHA256) Sum(b []byte) []byte {
	first := d.Hash.Sum(nil)
	second := sha256.Sum256(first)
	return append(b, second[:]...)
}
