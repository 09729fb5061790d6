package internal

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// placeholder shown when the directory cannot resolve a user
const unknownDisplayName = "??"

const directoryTimeout = 3 * time.Second

// UserDirectory maps user ids to display names.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// resolveDisplayName never fails: lookup errors degrade to the placeholder so
// a directory outage does not block realtime sessions.
func resolveDisplayName(ctx context.Context, directory UserDirectory, userID string, logger zerolog.Logger) string {
	if directory == nil {
		return unknownDisplayName
	}
	ctx, cancel := context.WithTimeout(ctx, directoryTimeout)
	defer cancel()
	name, err := directory.DisplayName(ctx, userID)
	if err == nil && name == "" {
		err = errors.New("empty display name")
	}
	if err != nil {
		logger.Warn().Err(upstreamFailure("directory lookup", err)).Str("user_id", userID).Msg("using placeholder name")
		return unknownDisplayName
	}
	return name
}
