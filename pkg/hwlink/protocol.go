package hwlink

import (
	"strconv"
	"strings"
)

// IncomingKind classifies a parsed line from the hardware link.
type IncomingKind int

const (
	// IncomingEvent is an "EVT:<name>" line, naming an event to inject
	// into the simulation engine.
	IncomingEvent IncomingKind = iota
	// IncomingData is a "DATA:<name>:<number>" line, naming a variable
	// write.
	IncomingData
)

// Incoming is one successfully parsed line from the hardware link.
type Incoming struct {
	Kind      IncomingKind
	Component string
	Value     float64
}

// ParseLine parses one line of the wire protocol ("EVT:<name>" or
// "DATA:<name>:<number>"). It reports ok=false for anything else
// (blank lines, malformed DATA payloads, unknown message types),
// matching the original link's tolerant "log and ignore" behavior
// rather than treating every unparseable line as fatal.
func ParseLine(line string) (Incoming, bool) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 2 {
		return Incoming{}, false
	}

	switch parts[0] {
	case "EVT":
		if parts[1] == "" {
			return Incoming{}, false
		}
		return Incoming{Kind: IncomingEvent, Component: parts[1]}, true
	case "DATA":
		if len(parts) < 3 {
			return Incoming{}, false
		}
		v, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return Incoming{}, false
		}
		return Incoming{Kind: IncomingData, Component: parts[1], Value: v}, true
	default:
		return Incoming{}, false
	}
}

// FormatCommand renders a command for the "CMD:<name>:<value>\n" wire
// format sent to the hardware.
func FormatCommand(name string, value float64) string {
	return "CMD:" + name + ":" + strconv.FormatFloat(value, 'g', -1, 64) + "\n"
}
