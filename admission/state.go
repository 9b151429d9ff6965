package admission

import (
	"fmt"
	"strings"
)

// State is the admission state of a server.
type State int

// States in the order a server goes through them.
const (
	StateListening State = iota
	StateAdmitting
	StateSaturated
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateAdmitting:
		return "admitting"
	case StateSaturated:
		return "saturated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Policy decides what happens to connections arriving after saturation.
type Policy int

// Saturation policies.
const (
	// PolicyReject keeps listening and closes every late connection at
	// once.
	PolicyReject Policy = iota

	// PolicyStopListening closes the listener at saturation.
	PolicyStopListening
)

func (p Policy) String() string {
	if p == PolicyStopListening {
		return "stop-listening"
	}

	return "reject"
}

// ParsePolicy parses "reject" or "stop-listening".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "reject", "":
		return PolicyReject, nil
	case "stop-listening", "stop":
		return PolicyStopListening, nil
	default:
		return PolicyReject, fmt.Errorf("unknown saturation policy %q", s)
	}
}

// Transport is how sources reach the server.
type Transport int

// Transports.
const (
	// TransportTCP gives every source its own connection.
	TransportTCP Transport = iota

	// TransportUDP shares one socket among sources, one frame per
	// datagram.
	TransportUDP
)

func (t Transport) String() string {
	if t == TransportUDP {
		return "udp"
	}

	return "tcp"
}

// ParseTransport parses "tcp" or "udp".
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(s) {
	case "tcp", "":
		return TransportTCP, nil
	case "udp":
		return TransportUDP, nil
	default:
		return TransportTCP, fmt.Errorf("unknown transport %q", s)
	}
}
