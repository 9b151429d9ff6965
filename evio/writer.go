package evio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer writes events into a block stream. Each call to WriteBlock produces
// one block; Close terminates the stream with an empty last block.
type Writer struct {
	w           io.Writer
	order       binary.ByteOrder
	blockNumber uint32
	closed      bool
}

// NewWriter creates a big endian writer whose first block is number 1.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, order: binary.BigEndian, blockNumber: 1}
}

// WithByteOrder sets the byte order of the written blocks.
func (w *Writer) WithByteOrder(order binary.ByteOrder) *Writer {
	w.order = order
	return w
}

// BlockNumber returns the number the next block will carry.
func (w *Writer) BlockNumber() uint32 {
	return w.blockNumber
}

// WriteBlock writes the events as one block.
func (w *Writer) WriteBlock(events ...*Node) error {
	if w.closed {
		return fmt.Errorf("evio: write to closed writer")
	}

	buf, err := EncodeBlock(w.order, w.blockNumber, false, events...)
	if err != nil {
		return err
	}

	w.blockNumber++

	_, err = w.w.Write(buf)

	return err
}

// Close writes the last block. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	buf, err := EncodeBlock(w.order, w.blockNumber, true)
	if err != nil {
		return err
	}

	_, err = w.w.Write(buf)

	return err
}

// EncodeBlock encodes the events into a single block.
func EncodeBlock(
	order binary.ByteOrder,
	number uint32,
	last bool,
	events ...*Node,
) ([]byte, error) {
	size := blockHeaderBytes
	for _, e := range events {
		size += e.header.TotalBytes
	}

	buf := make([]byte, size)
	encodeBlockHeader(buf, order, BlockHeader{
		Words:       uint32(size / 4),
		Number:      number,
		HeaderWords: blockHeaderWords,
		EventCount:  uint32(len(events)),
		Version:     Version,
		Last:        last,
	})

	pos := blockHeaderBytes
	for _, e := range events {
		if e.header.Structure != StructureBank {
			return nil, fmt.Errorf("evio: top-level event must be a bank, got %s",
				e.header.Structure)
		}

		n, err := encodeNode(buf[pos:], order, e)
		if err != nil {
			return nil, err
		}

		pos += n
	}

	return buf, nil
}

// EncodeEvent encodes one event without a block header.
func EncodeEvent(order binary.ByteOrder, event *Node) ([]byte, error) {
	buf := make([]byte, event.header.TotalBytes)

	if _, err := encodeNode(buf, order, event); err != nil {
		return nil, err
	}

	return buf, nil
}

func encodeNode(buf []byte, order binary.ByteOrder, n *Node) (int, error) {
	h := n.header
	hb := h.Structure.headerBytes()
	contentWords := uint32((h.TotalBytes - hb) / 4)

	switch h.Structure {
	case StructureBank:
		order.PutUint32(buf[0:4], contentWords+1)
		order.PutUint32(buf[4:8], uint32(h.Tag)<<16|
			uint32(h.Padding&0x3)<<14|
			uint32(h.DataType&0x3f)<<8|
			uint32(h.Num))
	case StructureSegment:
		if h.Tag > 0xff {
			return 0, fmt.Errorf("evio: segment tag 0x%x does not fit in 8 bits", h.Tag)
		}

		if contentWords > 0xffff {
			return 0, fmt.Errorf("evio: segment of %d words is too long", contentWords)
		}

		order.PutUint32(buf[0:4], uint32(h.Tag)<<24|
			uint32(h.Padding&0x3)<<22|
			uint32(h.DataType&0x3f)<<16|
			contentWords)
	default:
		if h.Tag > 0xfff {
			return 0, fmt.Errorf("evio: tag segment tag 0x%x does not fit in 12 bits", h.Tag)
		}

		if contentWords > 0xffff {
			return 0, fmt.Errorf("evio: tag segment of %d words is too long", contentWords)
		}

		order.PutUint32(buf[0:4], uint32(h.Tag)<<20|
			uint32(h.DataType&0xf)<<16|
			contentWords)
	}

	pos := hb
	if n.data != nil {
		pos += copy(buf[pos:], n.data)
	}

	for _, c := range n.children {
		size, err := encodeNode(buf[pos:], order, c)
		if err != nil {
			return 0, err
		}

		pos += size
	}

	return pos, nil
}
