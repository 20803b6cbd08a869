// Package stomp implements the subset of STOMP 1.2 needed to talk to a
// Spring-style message broker over a WebSocket: CONNECT/CONNECTED handshake,
// SUBSCRIBE, SEND, MESSAGE and DISCONNECT. One STOMP frame travels per
// WebSocket text message, which is how browser STOMP clients frame it too.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

var ErrMalformedFrame = errors.New("malformed stomp frame")

type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

func NewFrame(command string, headers map[string]string, body []byte) *Frame {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &Frame{Command: command, Headers: headers, Body: body}
}

// Header returns the value of a header, empty string if absent.
func (f *Frame) Header(key string) string {
	return f.Headers[key]
}

// Marshal renders the frame as a NUL-terminated STOMP 1.2 frame.
// A content-length header is always emitted so that bodies containing
// NUL bytes survive.
func (f *Frame) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	escape := f.Command != CmdConnect && f.Command != CmdConnected
	for k, v := range f.Headers {
		if escape {
			k, v = escapeHeader(k), escapeHeader(v)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		b.WriteString("content-length:")
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// Parse decodes a single frame from data. Trailing NUL and EOLs are
// tolerated; repeated headers keep the first occurrence, per STOMP 1.2.
func Parse(data []byte) (*Frame, error) {
	data = bytes.TrimRight(data, "\x00\r\n")
	// The header block ends at the first blank line, in whichever EOL
	// convention the sender used. Candidates later in the frame belong
	// to the body.
	sep := []byte("\n\n")
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		if j := bytes.Index(data, sep); j < 0 || i < j {
			sep = []byte("\r\n\r\n")
		}
	}
	head, body, _ := bytes.Cut(data, sep)

	lines := strings.Split(string(head), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformedFrame)
	}

	f := &Frame{
		Command: strings.TrimRight(lines[0], "\r"),
		Headers: make(map[string]string, len(lines)-1),
		Body:    body,
	}

	unescape := f.Command != CmdConnect && f.Command != CmdConnected
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedFrame, line)
		}
		if unescape {
			var err error
			if k, err = unescapeHeader(k); err != nil {
				return nil, err
			}
			if v, err = unescapeHeader(v); err != nil {
				return nil, err
			}
		}
		if _, seen := f.Headers[k]; !seen {
			f.Headers[k] = v
		}
	}

	if cl := f.Headers["content-length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(body) {
			return nil, fmt.Errorf("%w: content-length %q", ErrMalformedFrame, cl)
		}
		f.Body = body[:n]
	}

	return f, nil
}

func escapeHeader(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	return r.Replace(s)
}

func unescapeHeader(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			return "", fmt.Errorf("%w: dangling escape", ErrMalformedFrame)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("%w: escape \\%c", ErrMalformedFrame, s[i])
		}
	}
	return b.String(), nil
}
