package domain

import (
	"fmt"
	"strings"
)

// StreamID identifies a single seismic data stream using the SEED
// network/station/location/channel convention.
type StreamID struct {
	Network  string
	Station  string
	Location string
	Channel  string
}

// ParseStreamID parses a "NET.STA.LOC.CHN" identifier. The location code may
// be empty ("CH.DAVOX..HHZ") or the "--" placeholder some providers emit.
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return StreamID{}, fmt.Errorf("parse stream id %q: want NET.STA.LOC.CHN", s)
	}

	id := StreamID{
		Network:  parts[0],
		Station:  parts[1],
		Location: parts[2],
		Channel:  parts[3],
	}
	if id.Location == "--" {
		id.Location = ""
	}
	if id.Network == "" || id.Station == "" || id.Channel == "" {
		return StreamID{}, fmt.Errorf("parse stream id %q: network, station, and channel are required", s)
	}
	return id, nil
}

// ParseStreamIDs parses a comma-separated list of stream identifiers.
func ParseStreamIDs(s string) ([]StreamID, error) {
	var ids []StreamID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := ParseStreamID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// String renders the canonical dotted form, with an empty location code
// between two consecutive dots.
func (id StreamID) String() string {
	return id.Network + "." + id.Station + "." + id.Location + "." + id.Channel
}
