// Package credentials materializes per-request provider cookies.
//
// Every Open writes a fresh file in the scratch directory; the caller releases
// it in a deferred block so no cookie file outlives the request that created it.
package credentials

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/scratch"
)

// Vault holds the cookie blobs loaded at startup.
type Vault struct {
	dir     *scratch.Dir
	secrets map[media.Provider]string
	log     *logger.Logger
}

// NewVault keeps a copy of secrets keyed by provider name ("instagram").
// Empty blobs are dropped.
func NewVault(dir *scratch.Dir, secrets map[string]string, log *logger.Logger) *Vault {
	v := &Vault{
		dir:     dir,
		secrets: make(map[media.Provider]string, len(secrets)),
		log:     log.WithComponent("credentials"),
	}
	for name, blob := range secrets {
		if strings.TrimSpace(blob) == "" {
			continue
		}
		v.secrets[media.Provider(strings.ToLower(name))] = blob
	}
	return v
}

// Has reports whether a secret is configured for p.
func (v *Vault) Has(p media.Provider) bool {
	_, ok := v.secrets[p]
	return ok
}

// Providers returns the providers with a configured secret.
func (v *Vault) Providers() []media.Provider {
	out := make([]media.Provider, 0, len(v.secrets))
	for _, p := range media.Providers {
		if v.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Open writes the secret for p to a new file and returns its scope.
// A provider without a secret yields a nil scope and no error.
func (v *Vault) Open(p media.Provider) (*Scope, error) {
	secret, ok := v.secrets[p]
	if !ok {
		return nil, nil
	}

	name := fmt.Sprintf("%s_cookies_%s.txt", p, uuid.NewString())
	path, err := v.dir.WriteFile(name, []byte(secret), 0o600)
	if err != nil {
		return nil, fmt.Errorf("write %s cookie file: %w", p, err)
	}

	v.log.Debug("credential scope opened", "provider", string(p), "path", path)
	return &Scope{Provider: p, Path: path, vault: v}, nil
}

// Scope is one materialized cookie file.
type Scope struct {
	Provider media.Provider
	Path     string

	vault *Vault
	once  sync.Once
}

// Release removes the cookie file. It is safe on a nil scope and safe to call twice.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if err := s.vault.dir.Remove(s.Path); err != nil {
			s.vault.log.Warn("credential scope release failed", "provider", string(s.Provider), "error", err.Error())
			// Last attempt outside the scratch guard; the path came from WriteFile.
			_ = os.Remove(s.Path)
			return
		}
		s.vault.log.Debug("credential scope released", "provider", string(s.Provider))
	})
}

// CookiePath returns the file path, or "" for a nil scope.
func (s *Scope) CookiePath() string {
	if s == nil {
		return ""
	}
	return s.Path
}

// String never includes the secret.
func (s *Scope) String() string {
	if s == nil {
		return "credentials.Scope(nil)"
	}
	return fmt.Sprintf("credentials.Scope(%s, %s)", s.Provider, s.Path)
}
