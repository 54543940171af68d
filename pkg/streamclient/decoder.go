package streamclient

import (
	"bytes"
	"strings"
)

// defaultEventType is used for records without an "event:" line.
const defaultEventType = "message"

// RawEvent is one decoded record before its data is interpreted.
type RawEvent struct {
	Type string
	Data string
}

// Decoder turns a text/event-stream byte stream into records. It keeps partial lines
// and partially received records between calls to Feed, so input may be split at any
// byte.
type Decoder struct {
	buf       []byte
	eventType string
	data      []string
	hasData   bool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes chunk and returns every record it completed.
func (d *Decoder) Feed(chunk []byte) []RawEvent {
	d.buf = append(d.buf, chunk...)

	var events []RawEvent
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(d.buf[:i]), "\r")
		d.buf = d.buf[i+1:]

		if ev, ok := d.line(line); ok {
			events = append(events, ev)
		}
	}

	// compact so a long-lived stream does not pin its first chunks
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

func (d *Decoder) line(line string) (RawEvent, bool) {
	if line == "" {
		return d.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		return RawEvent{}, false
	}

	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		d.eventType = value
	case "data":
		d.data = append(d.data, value)
		d.hasData = true
	}
	return RawEvent{}, false
}

func (d *Decoder) dispatch() (RawEvent, bool) {
	defer d.reset()
	if !d.hasData {
		return RawEvent{}, false
	}

	ev := RawEvent{Type: d.eventType, Data: strings.Join(d.data, "\n")}
	if ev.Type == "" {
		ev.Type = defaultEventType
	}
	return ev, true
}

func (d *Decoder) reset() {
	d.eventType = ""
	d.data = d.data[:0]
	d.hasData = false
}
