// Package tree implements timed phylogenetic trees: Newick input and
// output, node heights, sampled ancestors and simulation of
// transmission trees from epidemic trajectories.
package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("tree")

// ZeroLength is the branch length below which a leaf is treated as a
// sampled ancestor.
const ZeroLength = 1e-10

type Mode int

const (
	NORMAL Mode = iota
	LENGTH
)

// Tree is a rooted tree. The root branch length is the time between
// the start of the epidemic and the root, if known.
type Tree struct {
	*Node
	nNodes int
	nodes  []*Node
	// FinalSampleOffset is the time between the most recent sample
	// and the end of the observation period.
	FinalSampleOffset float64
}

// ClearCache resets cached node lists and recomputes the heights.
// It should be called after the tree was modified.
func (tree *Tree) ClearCache() {
	tree.nNodes = 0
	tree.nodes = nil
	tree.ComputeHeights()
}

func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// Nodes returns all the nodes indexed by their Id.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.Id] = node
		}
	}
	return tree.nodes
}

func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(n *Node) bool {
		return n.IsTerminal()
	})
}

func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// ComputeHeights sets node heights relative to the most recent leaf.
func (tree *Tree) ComputeHeights() {
	maxDepth := tree.Node.maxDepth(0)
	tree.Node.setHeights(0, maxDepth)
}

// RootHeight returns the height of the root.
func (tree *Tree) RootHeight() float64 {
	return tree.Node.Height
}

// renumber assigns node and leaf ids in the walk order.
func (tree *Tree) renumber() {
	id, leafID := 0, 0
	for node := range tree.Walker(nil) {
		node.Id = id
		id++
		if node.IsTerminal() {
			node.LeafId = leafID
			leafID++
		}
	}
	tree.nodes = nil
}

type Node struct {
	Name         string
	BranchLength float64
	Parent       *Node
	childNodes   []*Node
	Id           int
	LeafId       int
	// Height is the time before the most recent sample.
	Height float64
}

func NewNode(parent *Node, nodeId int) (node *Node) {
	node = &Node{Parent: parent, Id: nodeId}
	return
}

func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

func (node *Node) maxDepth(depth float64) float64 {
	max := depth
	for _, child := range node.childNodes {
		max = math.Max(max, child.maxDepth(depth+child.BranchLength))
	}
	return max
}

func (node *Node) setHeights(depth, maxDepth float64) {
	node.Height = maxDepth - depth
	for _, child := range node.childNodes {
		child.setHeights(depth+child.BranchLength, maxDepth)
	}
}

// IsSampledAncestor returns true for a zero-length leaf attached to a
// bifurcation.
func (node *Node) IsSampledAncestor() bool {
	return node.IsTerminal() && node.Parent != nil &&
		len(node.Parent.childNodes) == 2 &&
		node.BranchLength < ZeroLength
}

// IsFake returns true for an internal node which only attaches a
// sampled ancestor.
func (node *Node) IsFake() bool {
	for _, child := range node.childNodes {
		if child.IsSampledAncestor() {
			return true
		}
	}
	return false
}

func (node *Node) String() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s:%0.6f", node.Name, node.BranchLength)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.String()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	s += fmt.Sprintf(")%s:%0.6f", node.Name, node.BranchLength)
	if node.IsRoot() {
		s += ";"
	}
	return s
}

func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

func (node *Node) NSubNodes() (size int) {
	for _, node := range node.childNodes {
		size += node.NSubNodes()
	}
	return size + 1
}

func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}

func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', ';', ',':
		return true
	}
	return false

}
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick reads a tree in the Newick format and computes node
// heights.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)

	scanner.Split(NewickSplit)

	nodeId := 0

	node := NewNode(nil, nodeId)
	tree = &Tree{Node: node}
	nodeId++

	mode := NORMAL

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := NewNode(nil, nodeId)
			nodeId++
			node.AddChild(subNode)
			node = subNode

		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := NewNode(nil, nodeId)
			nodeId++

			node.Parent.AddChild(subNode)
			node = subNode

		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case ":":
			mode = LENGTH
		case ";":
			if node.Parent != nil {
				return nil, errors.New("brackets mismatch")
			}
			return tree.finish()
		default:
			switch mode {
			case LENGTH:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				if l < 0 {
					return nil, fmt.Errorf("negative branch length: %v", l)
				}
				node.BranchLength = l
				mode = NORMAL
			default:
				node.Name = text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("unexpected end of tree, missing ';'")
}

// finish sets ids and heights.
func (tree *Tree) finish() (*Tree, error) {
	tree.renumber()
	tree.ComputeHeights()
	return tree, nil
}
