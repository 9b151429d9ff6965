package channel

// Frame commands.
const (
	// CmdEvio marks a frame carrying evio data.
	CmdEvio uint8 = 1

	// CmdEnd marks the last frame of a stream.
	CmdEnd uint8 = 2
)

// A Record is one frame received from a source, as stored in a buffer.
type Record struct {
	Cmd      uint8
	Stream   uint8
	RecordID uint64
	Payload  []byte
}

// IsEnd tells if the record ends its stream.
func (r *Record) IsEnd() bool {
	return r.Cmd == CmdEnd
}
