package hub

import (
	"bytes"
	"strings"
)

// FormatEvent renders an event as a text/event-stream record:
//
//	event: <type>
//	data: <json>
//
// Payloads spanning several lines get one data field per line.
func FormatEvent(event Event) []byte {
	var b bytes.Buffer
	b.WriteString("event: ")
	b.WriteString(event.Type)
	b.WriteByte('\n')

	data := string(event.Data)
	if data == "" {
		data = "null"
	}
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// FormatComment renders a comment record. Clients ignore it; proxies see traffic.
func FormatComment(text string) []byte {
	var b bytes.Buffer
	for _, line := range splitLines(text) {
		b.WriteString(": ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
