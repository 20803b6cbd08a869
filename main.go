package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lichka/internal/cli"
	"lichka/internal/commands"
	"lichka/internal/config"
	"lichka/internal/conv"
	"lichka/internal/dedup"
	"lichka/internal/models"
	"lichka/internal/notify"
	"lichka/internal/reconcile"
	"lichka/internal/rest"
	"lichka/internal/storage"
	"lichka/internal/transport"
	"lichka/internal/typing"
)

// eventRouter fans classified transport events out to the components
// that consume them.
type eventRouter struct {
	rec     *reconcile.Reconciler
	tracker *typing.Tracker
	list    *conv.Cache
}

func (r *eventRouter) OnChat(ev models.ChatEvent)   { r.rec.OnChat(ev) }
func (r *eventRouter) OnTyping(ev models.ChatEvent) { r.tracker.OnTypingEvent(ev.Sender) }
func (r *eventRouter) OnRead(ev models.ChatEvent)   { r.rec.OnRead(ev) }
func (r *eventRouter) OnStatus(ev models.ChatEvent) { r.list.RefreshAsync() }

func run(ctx context.Context) error {
	loginUser := flag.String("login", "", "Authenticate as this user and store the session token")
	registerUser := flag.String("register", "", "Create an account with this username")
	user := flag.String("user", "", "Start interactive mode as this user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if *registerUser != "" {
		return commands.Register(ctx, cfg, *registerUser, os.Stdin)
	}
	if *loginUser != "" {
		return commands.Login(ctx, cfg, *loginUser, os.Stdin)
	}
	if *user == "" {
		return errors.New("one of -user, -login or -register is required")
	}

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	token, err := store.GetSession(*user)
	if err != nil {
		return fmt.Errorf("no stored session for %s, run `lichka -login %s` first", *user, *user)
	}

	api := rest.NewClient(cfg.APIURL)
	api.SetToken(token)

	notifier := notify.Init(cfg.Notify, nil)
	listCache := conv.NewCache(ctx, *user, api, store)
	dedupCache := dedup.New(ctx, cfg.DedupWindow)
	tracker := typing.NewTracker(ctx, cfg.TypingExpiry)

	router := &eventRouter{tracker: tracker, list: listCache}
	session := transport.NewSession(cfg.BrokerURL, *user, router)
	rec := reconcile.New(ctx, *user, session, api, listCache, dedupCache, notifier)
	router.rec = rec

	typingOut := typing.NewNotifier(ctx, *user, session, cfg.TypingSuppress)

	// Sidebar comes up from the offline cache first, then catches up.
	listCache.LoadCached()
	listCache.RefreshAsync()

	if err := connectWithRetry(ctx, session, cfg); err != nil {
		return err
	}
	defer session.Disconnect()

	app := &cli.App{
		User:    *user,
		API:     api,
		Store:   store,
		Rec:     rec,
		List:    listCache,
		Tracker: tracker,
		Typing:  typingOut,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Run(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		session.Disconnect()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// connectWithRetry applies the configured retry policy. The transport
// itself never reconnects; reconnection belongs to the caller.
func connectWithRetry(ctx context.Context, session *transport.Session, cfg *config.Config) error {
	var err error
	for attempt := 1; attempt <= cfg.ReconnectAttempts; attempt++ {
		if err = session.Connect(ctx); err == nil {
			return nil
		}
		log.Printf("connect attempt %d/%d failed: %v", attempt, cfg.ReconnectAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.ReconnectDelay):
		}
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		log.Fatalf("lichka: %v", err)
	}
}
