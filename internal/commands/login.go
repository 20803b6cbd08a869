package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"lichka/internal/config"
	"lichka/internal/content"
	"lichka/internal/rest"
	"lichka/internal/storage"
)

// Login performs the one-shot -login flow: authenticate against the
// backend and persist the session token so interactive mode can start
// without credentials.
func Login(ctx context.Context, cfg *config.Config, username string, in io.Reader) error {
	if err := content.ValidateUsername(username); err != nil {
		return err
	}
	r := asBufio(in)

	password, err := promptLine(r, "Password: ")
	if err != nil {
		return err
	}

	client := rest.NewClient(cfg.APIURL)
	token, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveSession(username, token); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	fmt.Printf("Logged in as %s. Run `lichka -user %s` to start chatting.\n", username, username)
	return nil
}

// Register creates an account and then logs it in.
func Register(ctx context.Context, cfg *config.Config, username string, in io.Reader) error {
	if err := content.ValidateUsername(username); err != nil {
		return err
	}
	r := asBufio(in)

	password, err := promptLine(r, "Password: ")
	if err != nil {
		return err
	}
	displayName, err := promptLine(r, "Display name: ")
	if err != nil {
		return err
	}

	client := rest.NewClient(cfg.APIURL)
	if err := client.Register(ctx, username, password, content.Sanitize(displayName)); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Printf("Account %s created.\n", username)
	return Login(ctx, cfg, username, r)
}

// asBufio keeps one buffered reader across prompts; wrapping the same
// stream twice would lose whatever the first wrapper read ahead.
func asBufio(in io.Reader) *bufio.Reader {
	if r, ok := in.(*bufio.Reader); ok {
		return r
	}
	return bufio.NewReader(in)
}

func promptLine(r *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
