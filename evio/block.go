package evio

import "encoding/binary"

// BlockMagic is the last word of every block header.
const BlockMagic uint32 = 0xc0da0100

// Version is the format version written and accepted.
const Version = 4

const (
	blockHeaderWords = 8
	blockHeaderBytes = blockHeaderWords * 4
	lastBlockBit     = 0x200
	versionMask      = 0xff
)

// BlockHeader is the decoded 8 word block header.
type BlockHeader struct {
	Words       uint32
	Number      uint32
	HeaderWords uint32
	EventCount  uint32
	Version     uint32
	Last        bool
}

// byteOrderOf detects the byte order of a block header from its magic word.
func byteOrderOf(header []byte) (binary.ByteOrder, bool) {
	switch {
	case binary.BigEndian.Uint32(header[28:32]) == BlockMagic:
		return binary.BigEndian, true
	case binary.LittleEndian.Uint32(header[28:32]) == BlockMagic:
		return binary.LittleEndian, true
	default:
		return nil, false
	}
}

func decodeBlockHeader(b []byte, order binary.ByteOrder) BlockHeader {
	info := order.Uint32(b[20:24])

	return BlockHeader{
		Words:       order.Uint32(b[0:4]),
		Number:      order.Uint32(b[4:8]),
		HeaderWords: order.Uint32(b[8:12]),
		EventCount:  order.Uint32(b[12:16]),
		Version:     info & versionMask,
		Last:        info&lastBlockBit != 0,
	}
}

func encodeBlockHeader(b []byte, order binary.ByteOrder, h BlockHeader) {
	info := h.Version & versionMask
	if h.Last {
		info |= lastBlockBit
	}

	order.PutUint32(b[0:4], h.Words)
	order.PutUint32(b[4:8], h.Number)
	order.PutUint32(b[8:12], h.HeaderWords)
	order.PutUint32(b[12:16], h.EventCount)
	order.PutUint32(b[16:20], 0)
	order.PutUint32(b[20:24], info)
	order.PutUint32(b[24:28], 0)
	order.PutUint32(b[28:32], BlockMagic)
}

// PeekBlockNumber returns the block number if buf starts with a block header
// in either byte order.
func PeekBlockNumber(buf []byte) (uint32, bool) {
	if len(buf) < blockHeaderBytes {
		return 0, false
	}

	order, ok := byteOrderOf(buf)
	if !ok {
		return 0, false
	}

	return order.Uint32(buf[4:8]), true
}
