// Package cli is the interactive front of the client: a line-based loop
// over a sidebar and one open thread. Rendering stays dumb; every state
// change flows through the reconciler and the conversation cache.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode"

	"lichka/internal/content"
	"lichka/internal/conv"
	"lichka/internal/models"
	"lichka/internal/reconcile"
	"lichka/internal/rest"
	"lichka/internal/storage"
	"lichka/internal/typing"
)

type App struct {
	User    string
	API     *rest.Client
	Store   *storage.BboltStorage
	Rec     *reconcile.Reconciler
	List    *conv.Cache
	Tracker *typing.Tracker
	Typing  *typing.Notifier

	In  io.Reader
	Out io.Writer

	activePeer string

	mu         sync.Mutex
	lastUnread map[string]int
}

// Run drives the prompt until the context ends or the user quits.
func (a *App) Run(ctx context.Context) error {
	if a.In == nil {
		a.In = os.Stdin
	}
	if a.Out == nil {
		a.Out = os.Stdout
	}

	a.lastUnread = make(map[string]int)

	a.Rec.OnAppend(func(m models.Message) {
		if m.Sender != a.User {
			fmt.Fprintf(a.Out, "%s %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.Sender, m.Content)
		}
	})
	a.List.OnChange(a.announceUnread)

	fmt.Fprintf(a.Out, "Signed in as %s. /list /open <user> /search [q] /export <file> /quit\n", a.User)

	reader := bufio.NewReader(a.In)
	for {
		fmt.Fprint(a.Out, "> ")
		first, _, err := reader.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if first == '\n' || first == '\r' {
			continue
		}

		// The first rune of a line is the closest a line-based prompt
		// gets to "started composing". Line-buffered terminals only
		// deliver it at submit; piped or raw input arrives as typed.
		if first != '/' && !unicode.IsSpace(first) && a.Rec.Active() != "" {
			a.Typing.NotifyTyping(a.activePeer)
		}

		tail, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		line := strings.TrimSpace(string(first) + tail)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			a.send(line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/quit":
			return nil
		case "/list":
			a.renderSidebar(ctx)
		case "/open":
			a.open(ctx, arg)
		case "/search":
			a.search(ctx, arg)
		case "/export":
			a.export(arg)
		default:
			fmt.Fprintf(a.Out, "unknown command %s\n", cmd)
		}
	}
}

func (a *App) send(text string) {
	if a.Rec.Active() == "" {
		fmt.Fprintln(a.Out, "no open conversation; /open <user> first")
		return
	}
	a.Rec.SendLocal(a.Rec.Active(), a.activePeer, text)
}

// announceUnread prints a one-line notice for every conversation whose
// unread count grew since the last refresh, skipping the open one.
func (a *App) announceUnread(list []models.Conversation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range list {
		if c.UnreadCount > a.lastUnread[c.ID] && c.ID != a.Rec.Active() {
			fmt.Fprintf(a.Out, "%s sent new messages (%d unread)\n", c.Peer, c.UnreadCount)
		}
		a.lastUnread[c.ID] = c.UnreadCount
	}
}

func (a *App) open(ctx context.Context, peer string) {
	if err := content.ValidateUsername(peer); err != nil {
		fmt.Fprintln(a.Out, err)
		return
	}

	conversationID, err := a.API.StartConversation(ctx, a.User, peer)
	if err != nil {
		slog.Warn("start conversation failed", "peer", peer, "error", err)
		fmt.Fprintln(a.Out, "could not open conversation")
		return
	}

	backlog, err := a.API.GetConversationMessages(ctx, conversationID)
	if err != nil {
		slog.Warn("backlog fetch failed", "conversation", conversationID, "error", err)
		// Offline cache keeps the thread usable.
		backlog, _ = a.Store.ListMessages(conversationID)
	} else if err := a.Store.ReplaceMessages(conversationID, backlog); err != nil {
		slog.Warn("backlog persist failed", "conversation", conversationID, "error", err)
	}

	a.activePeer = peer
	a.Rec.SetActive(conversationID, backlog)

	// Opening a conversation counts as reading it: clear the unread
	// count server-side and refresh the sidebar.
	if err := a.API.MarkMessagesAsRead(ctx, conversationID, a.User); err != nil {
		slog.Warn("mark as read failed", "conversation", conversationID, "error", err)
	}
	a.List.RefreshAsync()

	a.renderThread()
}

func (a *App) search(ctx context.Context, query string) {
	users, err := a.API.SearchUsers(ctx, a.User, query)
	if err != nil {
		slog.Warn("user search failed", "query", query, "error", err)
		fmt.Fprintln(a.Out, "search failed")
		return
	}
	for _, u := range users {
		marker := " "
		if u.Online {
			marker = "*"
		}
		fmt.Fprintf(a.Out, "%s %s (%s)\n", marker, u.Username, content.Sanitize(u.DisplayName))
	}
}

func (a *App) renderSidebar(ctx context.Context) {
	if err := a.List.Refresh(ctx); err != nil {
		slog.Warn("sidebar refresh failed", "error", err)
	}
	typingPeers := make(map[string]bool)
	for _, p := range a.Tracker.Peers() {
		typingPeers[p] = true
	}
	for _, c := range a.List.List() {
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d)", c.UnreadCount)
		}
		marker := ""
		if typingPeers[c.Peer] {
			marker = " [typing]"
		}
		fmt.Fprintf(a.Out, "%-16s%s%s  %s: %s\n", c.Peer, unread, marker, c.LastSender, c.LastMessage)
	}
}

// localized shifts timestamps into the viewer's timezone so date
// separators match the clock on the wall.
func localized(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		m.CreatedAt = m.CreatedAt.Local()
		out[i] = m
	}
	return out
}

func (a *App) renderThread() {
	for _, day := range reconcile.GroupByDay(localized(a.Rec.Messages())) {
		fmt.Fprintf(a.Out, "--- %s ---\n", day.Day.Format("Mon, 02 Jan 2006"))
		for _, cluster := range day.Clusters {
			fmt.Fprintf(a.Out, "%s:\n", cluster.Sender)
			for _, m := range cluster.Messages {
				status := ""
				if m.Sender == a.User {
					status = " [" + string(m.Status) + "]"
				}
				fmt.Fprintf(a.Out, "  %s %s%s\n", m.CreatedAt.Local().Format("15:04"), m.Content, status)
			}
		}
	}
	if a.Tracker.IsTyping(a.activePeer) {
		fmt.Fprintf(a.Out, "%s is typing...\n", a.activePeer)
	}
}

// export writes the open thread as a standalone HTML transcript with
// message bodies rendered from markdown.
func (a *App) export(path string) {
	if path == "" {
		fmt.Fprintln(a.Out, "usage: /export <file>")
		return
	}
	if a.Rec.Active() == "" {
		fmt.Fprintln(a.Out, "no open conversation")
		return
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><body>\n")
	for _, day := range reconcile.GroupByDay(localized(a.Rec.Messages())) {
		fmt.Fprintf(&b, "<h3>%s</h3>\n", day.Day.Format("Mon, 02 Jan 2006"))
		for _, cluster := range day.Clusters {
			fmt.Fprintf(&b, "<p><b>%s</b></p>\n", content.Sanitize(cluster.Sender))
			for _, m := range cluster.Messages {
				html, err := content.Render(m.Content)
				if err != nil {
					html = content.Sanitize(m.Content)
				}
				fmt.Fprintf(&b, "<div>%s</div>\n", html)
			}
		}
	}
	b.WriteString("</body></html>\n")

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		fmt.Fprintf(a.Out, "export failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.Out, "exported to %s\n", path)
}
