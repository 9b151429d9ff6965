package evio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
)

// maxDepth bounds the nesting of containers in one event.
const maxDepth = 64

// DefaultMaxBlockBytes is the largest block a reader accepts unless told
// otherwise.
const DefaultMaxBlockBytes = 64 << 20

// Reader pulls events one at a time from a block stream. A Reader is not
// restartable and not safe for concurrent use.
type Reader struct {
	r        io.Reader
	order    binary.ByteOrder
	offset   int64
	maxBlock int64

	block       BlockHeader
	blockOffset int64
	content     []byte
	pos         int
	remaining   uint32
	done        bool
	err         error
}

// NewReader creates a reader over r. Nothing is read until the first call to
// Next.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, maxBlock: DefaultMaxBlockBytes}
}

// WithMaxBlockBytes sets the largest block the reader accepts. Longer blocks
// are reported as format errors before any of their content is read.
func (r *Reader) WithMaxBlockBytes(n int64) *Reader {
	r.maxBlock = n
	return r
}

// Decode creates a reader over an in-memory byte slice.
func Decode(data []byte) *Reader {
	return NewReader(bytes.NewReader(data))
}

// ByteOrder returns the byte order detected from the first block, or nil
// before the first block is read.
func (r *Reader) ByteOrder() binary.ByteOrder {
	return r.order
}

// Block returns the header of the block currently being read.
func (r *Reader) Block() BlockHeader {
	return r.block
}

// Next returns the next top-level event. It returns io.EOF after the last
// event. Any other error is a *FormatError and is returned again by every
// following call.
func (r *Reader) Next() (*Node, error) {
	if r.err != nil {
		return nil, r.err
	}

	for r.remaining == 0 {
		if r.done {
			return nil, io.EOF
		}

		if err := r.readBlock(); err != nil {
			r.err = err
			return nil, err
		}
	}

	event, err := r.nextEvent()
	if err != nil {
		r.err = err
		return nil, err
	}

	return event, nil
}

// Events returns the remaining events as a lazy sequence. The sequence stops
// after the first error, which it yields with a nil tree.
func (r *Reader) Events() iter.Seq2[Tree, error] {
	return func(yield func(Tree, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(event, nil) {
				return
			}
		}
	}
}

func (r *Reader) readBlock() error {
	header := make([]byte, blockHeaderBytes)

	n, err := io.ReadFull(r.r, header)
	if err == io.EOF {
		r.done = true
		return nil
	}

	if err != nil {
		return r.formatError(r.offset, "truncated block header", err)
	}

	order, ok := byteOrderOf(header)
	if !ok {
		return r.formatError(r.offset, "bad block magic number", nil)
	}

	if r.order != nil && r.order != order {
		return r.formatError(r.offset, "byte order changed between blocks", nil)
	}

	r.order = order
	r.blockOffset = r.offset
	r.offset += int64(n)

	h := decodeBlockHeader(header, order)
	if h.Version != Version {
		return r.formatError(r.blockOffset,
			fmt.Sprintf("unsupported version %d", h.Version), nil)
	}

	if h.HeaderWords < blockHeaderWords || h.Words < h.HeaderWords {
		return r.formatError(r.blockOffset,
			fmt.Sprintf("bad block length %d with header length %d",
				h.Words, h.HeaderWords), nil)
	}

	if int64(h.Words)*4 > r.maxBlock {
		return r.formatError(r.blockOffset,
			fmt.Sprintf("block of %d bytes exceeds the limit of %d",
				int64(h.Words)*4, r.maxBlock), nil)
	}

	want := int64(h.Words-blockHeaderWords) * 4
	body := new(bytes.Buffer)

	copied, err := io.CopyN(body, r.r, want)
	r.offset += copied
	if err != nil {
		return r.formatError(r.blockOffset, "truncated block", err)
	}

	rest := body.Bytes()

	r.block = h
	r.content = rest[int(h.HeaderWords-blockHeaderWords)*4:]
	r.pos = 0
	r.remaining = h.EventCount
	r.done = h.Last

	if h.EventCount == 0 && len(r.content) != 0 {
		return r.formatError(r.blockOffset, "data in a block without events", nil)
	}

	return nil
}

func (r *Reader) nextEvent() (*Node, error) {
	eventOffset := r.contentOffset()
	buf := r.content[r.pos:]

	if len(buf) >= 8 {
		h, _ := decodeNodeHeader(buf, r.order, StructureBank)
		if !h.DataType.IsKnown() {
			return nil, r.formatError(eventOffset,
				fmt.Sprintf("unrecognized top-level container type 0x%x",
					uint8(h.DataType)), nil)
		}
	}

	event, size, err := parseNode(buf, r.order, StructureBank, 0)
	if err != nil {
		return nil, r.formatError(eventOffset, "bad event", err)
	}

	r.pos += size
	r.remaining--

	if r.remaining == 0 && r.pos != len(r.content) {
		return nil, r.formatError(r.contentOffset(),
			fmt.Sprintf("%d trailing bytes after last event of block",
				len(r.content)-r.pos), nil)
	}

	return event, nil
}

func (r *Reader) contentOffset() int64 {
	return r.blockOffset + int64(r.block.HeaderWords)*4 + int64(r.pos)
}

func (r *Reader) formatError(offset int64, reason string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}

	var fe *FormatError
	if errors.As(err, &fe) {
		return &FormatError{Offset: offset + fe.Offset, Reason: fe.Reason, Err: fe.Err}
	}

	return &FormatError{Offset: offset, Reason: reason, Err: err}
}

// parseNode decodes the node at the start of buf and returns it with its size
// in bytes. Offsets in returned errors are relative to buf.
func parseNode(
	buf []byte,
	order binary.ByteOrder,
	structure StructureType,
	depth int,
) (*Node, int, error) {
	if depth > maxDepth {
		return nil, 0, &FormatError{Reason: "containers nested too deep"}
	}

	hb := structure.headerBytes()
	if len(buf) < hb {
		return nil, 0, &FormatError{
			Reason: "truncated " + structure.String() + " header",
			Err:    io.ErrUnexpectedEOF,
		}
	}

	h, lengthWords := decodeNodeHeader(buf, order, structure)

	total := int(lengthWords+1) * 4
	if structure != StructureBank {
		total = int(lengthWords)*4 + hb
	}

	if total < hb || total > len(buf) {
		return nil, 0, &FormatError{
			Reason: fmt.Sprintf("%s length %d bytes exceeds available %d",
				structure, total, len(buf)),
			Err: io.ErrUnexpectedEOF,
		}
	}

	if !h.DataType.IsKnown() {
		return nil, 0, &FormatError{
			Reason: fmt.Sprintf("unknown data type 0x%x", uint8(h.DataType)),
		}
	}

	h.TotalBytes = total
	n := &Node{header: h}
	content := buf[hb:total]

	if !h.DataType.IsContainer() {
		n.data = content
		return n, total, nil
	}

	childStructure := StructureBank
	switch h.Kind() {
	case KindSegment:
		childStructure = StructureSegment
	case KindTagSegment:
		childStructure = StructureTagSegment
	}

	for pos := 0; pos < len(content); {
		child, size, err := parseNode(content[pos:], order, childStructure, depth+1)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Offset += int64(hb + pos)
			}

			return nil, 0, err
		}

		n.children = append(n.children, child)
		pos += size
	}

	return n, total, nil
}

func decodeNodeHeader(
	buf []byte,
	order binary.ByteOrder,
	structure StructureType,
) (Header, uint32) {
	h := Header{Structure: structure}

	switch structure {
	case StructureBank:
		length := order.Uint32(buf[0:4])
		w := order.Uint32(buf[4:8])
		h.Tag = uint16(w >> 16)
		h.Padding = uint8((w >> 14) & 0x3)
		h.DataType = DataType((w >> 8) & 0x3f)
		h.Num = uint8(w)

		return h, length
	case StructureSegment:
		w := order.Uint32(buf[0:4])
		h.Tag = uint16(w >> 24)
		h.Padding = uint8((w >> 22) & 0x3)
		h.DataType = DataType((w >> 16) & 0x3f)

		return h, w & 0xffff
	default:
		w := order.Uint32(buf[0:4])
		h.Tag = uint16(w >> 20)
		h.DataType = DataType((w >> 16) & 0xf)

		return h, w & 0xffff
	}
}
