package evio

import "log"

// Tree is a read-only view over one node of a decoded event.
type Tree interface {
	// ChildCount returns the number of direct children.
	ChildCount() int

	// ChildAt returns the child at the index, or an *IndexError.
	ChildAt(index int) (Tree, error)

	// Header returns the decoded header of the node.
	Header() Header
}

// Node is a node of an event. The top-level node of an event is always a
// bank.
type Node struct {
	header   Header
	children []*Node
	data     []byte
}

// Header returns the header of the node.
func (n *Node) Header() Header {
	return n.header
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// ChildAt returns the child at the index.
func (n *Node) ChildAt(index int) (Tree, error) {
	child, err := n.Child(index)
	if err != nil {
		return nil, err
	}

	return child, nil
}

// Child is the concrete form of ChildAt.
func (n *Node) Child(index int) (*Node, error) {
	if index < 0 || index >= len(n.children) {
		return nil, &IndexError{Index: index, Count: len(n.children)}
	}

	return n.children[index], nil
}

// Data returns the raw content of a leaf, including padding bytes. It is nil
// for containers.
func (n *Node) Data() []byte {
	return n.data
}

// NewBank creates a bank holding the given children. All children must share
// one structure type. A bank without children is a bank of banks.
func NewBank(tag uint16, num uint8, children ...*Node) *Node {
	n := &Node{
		header: Header{
			Tag:       tag,
			Num:       num,
			Structure: StructureBank,
			DataType:  containerType(children),
		},
		children: children,
	}
	n.header.TotalBytes = n.computeTotalBytes()

	return n
}

// NewLeafBank creates a bank holding raw data. Data is padded to a multiple
// of 4 bytes.
func NewLeafBank(tag uint16, num uint8, dataType DataType, data []byte) *Node {
	leafTypeMustBeValid(dataType)

	padded, padding := pad(data)
	n := &Node{
		header: Header{
			Tag:       tag,
			Num:       num,
			Structure: StructureBank,
			DataType:  dataType,
			Padding:   padding,
		},
		data: padded,
	}
	n.header.TotalBytes = n.computeTotalBytes()

	return n
}

// NewSegment creates a segment holding the given children.
func NewSegment(tag uint8, children ...*Node) *Node {
	n := &Node{
		header: Header{
			Tag:       uint16(tag),
			Structure: StructureSegment,
			DataType:  containerType(children),
		},
		children: children,
	}
	n.header.TotalBytes = n.computeTotalBytes()

	return n
}

// NewLeafSegment creates a segment holding raw data.
func NewLeafSegment(tag uint8, dataType DataType, data []byte) *Node {
	leafTypeMustBeValid(dataType)

	padded, padding := pad(data)
	n := &Node{
		header: Header{
			Tag:       uint16(tag),
			Structure: StructureSegment,
			DataType:  dataType,
			Padding:   padding,
		},
		data: padded,
	}
	n.header.TotalBytes = n.computeTotalBytes()

	return n
}

func containerType(children []*Node) DataType {
	if len(children) == 0 {
		return DataBank
	}

	structure := children[0].header.Structure
	for _, c := range children[1:] {
		if c.header.Structure != structure {
			log.Panic("children of a container must share one structure type")
		}
	}

	switch structure {
	case StructureSegment:
		return DataSegment
	case StructureTagSegment:
		return DataTagSegment
	default:
		return DataBank
	}
}

func leafTypeMustBeValid(t DataType) {
	if t.IsContainer() || !t.IsKnown() {
		log.Panicf("data type 0x%x is not a leaf type", uint8(t))
	}
}

func pad(data []byte) ([]byte, uint8) {
	padding := (4 - len(data)%4) % 4
	if padding == 0 {
		return data, 0
	}

	padded := make([]byte, len(data)+padding)
	copy(padded, data)

	return padded, uint8(padding)
}

func (n *Node) computeTotalBytes() int {
	total := n.header.Structure.headerBytes() + len(n.data)
	for _, c := range n.children {
		total += c.header.TotalBytes
	}

	return total
}
