package fakeroc

import (
	"encoding/binary"

	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
)

// physicsTag marks the synthetic built physics events.
const physicsTag uint16 = 0xFF50

// BuiltEvent creates a physics event as an event builder would emit it: a
// built trigger bank with the common event-number and timestamp segments
// followed by one segment per readout controller, then one data bank per
// readout controller carrying payloadBytes bytes.
func BuiltEvent(number uint64, rocIDs []uint8, payloadBytes int) *evio.Node {
	eventNumber := make([]byte, 8)
	binary.BigEndian.PutUint64(eventNumber, number)

	segments := []*evio.Node{
		evio.NewLeafSegment(1, evio.DataUlong64, eventNumber),
		evio.NewLeafSegment(1, evio.DataUshort16, make([]byte, 4)),
	}

	banks := make([]*evio.Node, 0, len(rocIDs)+1)

	for _, id := range rocIDs {
		segments = append(segments,
			evio.NewLeafSegment(id, evio.DataUint32, make([]byte, 8)))
		banks = append(banks,
			evio.NewLeafBank(uint16(id), 0, evio.DataUint32, make([]byte, payloadBytes)))
	}

	trigger := evio.NewBank(evio.TagBuiltTriggerTS, uint8(len(rocIDs)), segments...)

	return evio.NewBank(physicsTag, 1, append([]*evio.Node{trigger}, banks...)...)
}

// ControlEvent creates a run control event, e.g. evio.TagPrestart.
func ControlEvent(tag uint16) *evio.Node {
	return evio.NewLeafBank(tag, 0xcc, evio.DataUint32, make([]byte, 12))
}

// Synthetic creates a prestart and a go event followed by count physics
// events built from the readout controllers.
func Synthetic(count int, rocIDs []uint8, payloadBytes int) []*evio.Node {
	events := make([]*evio.Node, 0, count+2)
	events = append(events, ControlEvent(evio.TagPrestart), ControlEvent(evio.TagGo))

	for i := 0; i < count; i++ {
		events = append(events, BuiltEvent(uint64(i+1), rocIDs, payloadBytes))
	}

	return events
}
