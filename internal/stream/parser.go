package stream

import (
	"encoding/json"
	"strings"

	"github.com/quarrylabs/quarry/internal/models"
)

// dataPrefix marks lines that carry a serialized event. The exact bytes
// matter for interoperability with the server's framing.
const dataPrefix = "data: "

// ParseLine interprets one decoded line. It returns the event and true
// when the line carries a well-formed event payload, and false for
// everything else: unprefixed lines, keep-alive comments such as
// ":heartbeat", and payloads that fail to deserialize. A corrupt frame
// must not end monitoring of an otherwise healthy run, so malformed
// payloads are dropped, not fatal.
func ParseLine(line string) (models.Event, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return models.Event{}, false
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return models.Event{}, false
	}

	var ev models.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.Event{}, false
	}
	return ev, true
}
