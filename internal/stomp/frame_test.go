package stomp

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrame_MarshalParse_RoundTrip(t *testing.T) {
	in := NewFrame(CmdSend, map[string]string{
		"destination":  "/app/chat.sendPrivateMessage",
		"content-type": "application/json",
	}, []byte(`{"type":"CHAT"}`))

	out, err := Parse(in.Marshal())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if out.Command != CmdSend {
		t.Errorf("expected command SEND, got %s", out.Command)
	}
	if out.Header("destination") != "/app/chat.sendPrivateMessage" {
		t.Errorf("destination header lost: %q", out.Header("destination"))
	}
	if !bytes.Equal(out.Body, in.Body) {
		t.Errorf("body mismatch: %q", out.Body)
	}
}

func TestFrame_HeaderEscaping(t *testing.T) {
	in := NewFrame(CmdMessage, map[string]string{
		"subscription": "sub-0",
		"weird":        "a:b\nc\\d",
	}, nil)

	out, err := Parse(in.Marshal())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := out.Header("weird"); got != "a:b\nc\\d" {
		t.Errorf("escaping round trip broke: %q", got)
	}
}

func TestFrame_ConnectHeadersNotEscaped(t *testing.T) {
	in := NewFrame(CmdConnect, map[string]string{"accept-version": "1.1,1.2"}, nil)
	data := in.Marshal()
	if !bytes.Contains(data, []byte("accept-version:1.1,1.2\n")) {
		t.Errorf("CONNECT headers must be verbatim, got %q", data)
	}
}

func TestParse_TrailingNulAndEOL(t *testing.T) {
	raw := []byte("CONNECTED\nversion:1.2\n\n\x00\r\n")
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Command != CmdConnected || f.Header("version") != "1.2" {
		t.Errorf("unexpected frame: %+v", f)
	}
}

func TestParse_RepeatedHeaderKeepsFirst(t *testing.T) {
	raw := []byte("MESSAGE\ndestination:/user/queue/messages\ndestination:/other\n\nbody\x00")
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Header("destination") != "/user/queue/messages" {
		t.Errorf("first header occurrence must win, got %q", f.Header("destination"))
	}
}

func TestParse_ContentLength(t *testing.T) {
	body := []byte("with\x00nul")
	in := NewFrame(CmdSend, map[string]string{"destination": "/app/x"}, body)
	out, err := Parse(in.Marshal())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !bytes.Equal(out.Body, body) {
		t.Errorf("NUL-bearing body mangled: %q", out.Body)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("SEND\nbroken header\n\n\x00"),
		[]byte("SEND\ndest:\\q\n\n\x00"),
		[]byte("SEND\ncontent-length:999\n\nshort\x00"),
	}
	for _, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("Parse(%q) = %v, want ErrMalformedFrame", raw, err)
		}
	}
}
