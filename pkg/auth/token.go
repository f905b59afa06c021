package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "ghsampler"
	keyringUser    = "github_token"

	// EnvToken is the environment variable checked before the keychain.
	EnvToken = "GITHUB_TOKEN"
)

// Token sources, reported alongside a resolved token.
const (
	SourceEnvironment = "environment"
	SourceKeyring     = "keyring"
)

var (
	// ErrTokenNotFound indicates no token is available from any source
	ErrTokenNotFound = errors.New("no GitHub token found: set " + EnvToken + " or run 'ghsampler auth login'")

	// ErrInvalidToken indicates an empty or malformed token
	ErrInvalidToken = errors.New("token must not be empty")
)

// Manager resolves and stores the GitHub personal access token. The
// environment always wins over the system keychain, so a token exported
// for a single run is never shadowed by a stored one.
type Manager struct{}

// NewManager creates a new token manager
func NewManager() *Manager {
	return &Manager{}
}

// Token returns the GitHub token and the source it was resolved from
func (m *Manager) Token() (string, string, error) {
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		return token, SourceEnvironment, nil
	}

	token, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", "", ErrTokenNotFound
		}
		return "", "", fmt.Errorf("failed to read token from keyring: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", "", ErrTokenNotFound
	}

	return token, SourceKeyring, nil
}

// Save stores the token in the system keychain
func (m *Manager) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Delete removes the token from the system keychain
func (m *Manager) Delete() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
