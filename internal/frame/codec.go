package frame

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	byteLF  = "\x0a"
	byteNUL = "\x00"
)

// Heartbeat is the distinguished empty keepalive unit: a lone line feed with
// no command line. It is not a Frame and never goes through Marshal.
const Heartbeat = byteLF

var (
	ErrEmptyCommand = errors.New("frame has an empty command line")
	ErrNotUTF8      = errors.New("frame is not valid UTF-8 text")
)

// IsHeartbeat reports whether an inbound transport message is a keepalive
// rather than a command frame. Callers must check this before Unmarshal so a
// lone line feed is never misread as a frame with an empty command.
func IsHeartbeat(wire string) bool {
	return strings.TrimSpace(strings.TrimSuffix(wire, byteNUL)) == ""
}

// Marshal renders a frame to its wire text: the command line, one key:value
// line per header in insertion order, a blank line, the body if any, and the
// terminating NUL octet.
func Marshal(f *Frame) string {
	var b strings.Builder
	b.WriteString(f.Command)
	b.WriteString(byteLF)
	for _, h := range f.Headers {
		b.WriteString(h.Name)
		b.WriteString(":")
		b.WriteString(h.Value)
		b.WriteString(byteLF)
	}
	b.WriteString(byteLF)
	if f.Body != nil {
		b.Write(f.Body)
	}
	b.WriteString(byteNUL)
	return b.String()
}

// Unmarshal parses one wire frame. The decode is deliberately tolerant:
// header lines without a colon are dropped rather than rejected. Only an
// empty command line or non-UTF-8 input is an error.
func Unmarshal(wire string) (*Frame, error) {
	if !utf8.ValidString(wire) {
		return nil, ErrNotUTF8
	}
	lines := strings.Split(wire, byteLF)

	f := New(strings.TrimSpace(lines[0]))
	if f.Command == "" {
		return nil, ErrEmptyCommand
	}

	i := 1
	for i < len(lines) && lines[i] != "" {
		kv := strings.SplitN(lines[i], ":", 2)
		if len(kv) == 2 {
			f.Headers.Set(kv[0], kv[1])
		}
		i++
	}

	// Everything between the header terminator and the trailing NUL is the
	// body. A tail that is just the NUL octet means no body at all.
	if i+1 < len(lines) {
		tail := strings.Join(lines[i+1:], byteLF)
		if tail != byteNUL && tail != "" {
			f.Body = []byte(strings.TrimSuffix(tail, byteNUL))
		}
	}
	return f, nil
}
