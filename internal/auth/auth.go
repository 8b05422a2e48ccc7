// Package auth supplies the opaque auth token passed to the realtime server
// on connect. Tokens are issued elsewhere; this package only fetches them.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TokenSource yields the current auth token. An empty token with a nil
// error means connect unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token.
type Static string

// Token returns the fixed token.
func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}

// FileSource reads the token from a file on every call, so rotated tokens
// are picked up without a restart.
type FileSource struct {
	Path string
}

// Token reads and trims the token file.
func (f FileSource) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", f.Path)
	}
	return token, nil
}

// EnvSource reads the token from an environment variable.
type EnvSource string

// Token returns the variable's value; unset resolves to unauthenticated.
func (e EnvSource) Token(context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(string(e))), nil
}
