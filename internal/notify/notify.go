// Package notify surfaces messages that arrive for conversations other
// than the open one. Permission to notify is explicit process-wide
// configuration established once by Init, never ambient state mutated
// mid-session.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

type Notifier struct {
	enabled bool
	w       io.Writer
}

// Init is the once-per-session permission step. A nil writer falls back
// to stderr so notifications do not interleave with the prompt.
func Init(enabled bool, w io.Writer) *Notifier {
	if w == nil {
		w = os.Stderr
	}
	slog.Info("notifications configured", "enabled", enabled)
	return &Notifier{enabled: enabled, w: w}
}

// Notify emits one notification. No-op when the session was initialized
// without permission.
func (n *Notifier) Notify(title, body string) {
	if !n.enabled {
		return
	}
	fmt.Fprintf(n.w, "\a[%s] %s\n", title, body)
}
