package app

import (
	"errors"

	intrnl "roomrelay/internal"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	return intrnl.RunClient(intrnl.ClientOptions{
		ServerURL: cfg.ServerURL,
		Room:      cfg.Room,
		Username:  cfg.Username,
		Token:     cfg.Token,
	})
}
