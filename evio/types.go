// Package evio reads and writes the hierarchical event format recorded and
// streamed by the data acquisition system.
//
// An event is a tree of containers. Every node is one of three structures
// (bank, segment, tag segment) and carries a tag and a data type. Container
// data types hold children of one structure; every other data type makes the
// node a leaf holding raw words.
//
// Events are grouped into blocks. Each block starts with an 8 word header
// whose last word is the magic number 0xc0da0100, which also tells the
// reader the byte order of the stream.
package evio

import "fmt"

// StructureType is the header layout of a node.
type StructureType int

// Structure types.
const (
	StructureBank StructureType = iota
	StructureSegment
	StructureTagSegment
)

func (s StructureType) String() string {
	switch s {
	case StructureBank:
		return "bank"
	case StructureSegment:
		return "segment"
	case StructureTagSegment:
		return "tagsegment"
	default:
		return fmt.Sprintf("structure(%d)", int(s))
	}
}

// headerBytes returns the size of the header of the structure.
func (s StructureType) headerBytes() int {
	if s == StructureBank {
		return 8
	}

	return 4
}

// DataType is the content type recorded in a node header.
type DataType uint8

// Data types.
const (
	DataUnknown32  DataType = 0x0
	DataUint32     DataType = 0x1
	DataFloat32    DataType = 0x2
	DataCharStar8  DataType = 0x3
	DataShort16    DataType = 0x4
	DataUshort16   DataType = 0x5
	DataChar8      DataType = 0x6
	DataUchar8     DataType = 0x7
	DataDouble64   DataType = 0x8
	DataLong64     DataType = 0x9
	DataUlong64    DataType = 0xa
	DataInt32      DataType = 0xb
	DataTagSegment DataType = 0xc
	DataAlsoSeg    DataType = 0xd
	DataAlsoBank   DataType = 0xe
	DataComposite  DataType = 0xf
	DataBank       DataType = 0x10
	DataSegment    DataType = 0x20
)

// IsBank tells if the data type marks a container of banks.
func (t DataType) IsBank() bool {
	return t == DataBank || t == DataAlsoBank
}

// IsSegment tells if the data type marks a container of segments.
func (t DataType) IsSegment() bool {
	return t == DataSegment || t == DataAlsoSeg
}

// IsTagSegment tells if the data type marks a container of tag segments.
func (t DataType) IsTagSegment() bool {
	return t == DataTagSegment
}

// IsContainer tells if nodes of this data type hold children.
func (t DataType) IsContainer() bool {
	return t.IsBank() || t.IsSegment() || t.IsTagSegment()
}

// IsKnown tells if the value is a defined data type.
func (t DataType) IsKnown() bool {
	return t <= DataBank || t == DataSegment
}

// Kind describes what a node contains.
type Kind int

// Kinds of nodes.
const (
	KindLeaf Kind = iota
	KindBank
	KindSegment
	KindTagSegment
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindBank:
		return "bank"
	case KindSegment:
		return "segment"
	case KindTagSegment:
		return "tagsegment"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Header is the decoded header of a node.
type Header struct {
	Tag        uint16
	Num        uint8
	Structure  StructureType
	DataType   DataType
	Padding    uint8
	TotalBytes int
}

// Kind returns what the node contains.
func (h Header) Kind() Kind {
	switch {
	case h.DataType.IsBank():
		return KindBank
	case h.DataType.IsSegment():
		return KindSegment
	case h.DataType.IsTagSegment():
		return KindTagSegment
	default:
		return KindLeaf
	}
}

func (h Header) String() string {
	return fmt.Sprintf("%s tag=0x%04x num=%d kind=%s bytes=%d",
		h.Structure, h.Tag, h.Num, h.Kind(), h.TotalBytes)
}
