package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ServiceName is the keyring service every key is filed under.
const ServiceName = "AI-Chat-TUI"

// accounts maps a provider to its fixed keyring account name.
var accounts = map[string]string{
	"gemini":    "gemini-api-key",
	"openai":    "openai-api-key",
	"anthropic": "anthropic-api-key",
	"ollama":    "ollama-api-key",
}

// AccountFor returns the keyring account used for provider.
func AccountFor(provider string) string {
	if a, ok := accounts[provider]; ok {
		return a
	}
	return provider + "-api-key"
}

// ErrStoreUnavailable means the OS secure-credential facility cannot be used.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Store persists a single key.
//
// Get reports absence through its bool result; "not found" is never an error.
// Clear on an empty store is a no-op.
type Store interface {
	Get() (Secret, bool, error)
	Set(Secret) error
	Clear() error
}

// KeyringStore keeps the key in the OS keyring (Keychain, Secret Service,
// Windows Credential Manager).
type KeyringStore struct {
	Service string
	Account string
}

// NewKeyringStore creates a store for provider's fixed account.
func NewKeyringStore(provider string) *KeyringStore {
	return &KeyringStore{Service: ServiceName, Account: AccountFor(provider)}
}

func (k *KeyringStore) Get() (Secret, bool, error) {
	v, err := keyring.Get(k.Service, k.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return Secret{}, false, nil
	}
	if err != nil {
		return Secret{}, false, fmt.Errorf("%w: reading %s/%s: %v", ErrStoreUnavailable, k.Service, k.Account, err)
	}
	s := NewSecret(v)
	return s, !s.IsZero(), nil
}

func (k *KeyringStore) Set(s Secret) error {
	if err := keyring.Set(k.Service, k.Account, s.Reveal()); err != nil {
		return fmt.Errorf("%w: writing %s/%s: %v", ErrStoreUnavailable, k.Service, k.Account, err)
	}
	return nil
}

func (k *KeyringStore) Clear() error {
	err := keyring.Delete(k.Service, k.Account)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("%w: deleting %s/%s: %v", ErrStoreUnavailable, k.Service, k.Account, err)
}

// MemoryStore keeps the key for the life of the process only.
type MemoryStore struct {
	mu     sync.Mutex
	secret Secret
}

func (m *MemoryStore) Get() (Secret, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secret.IsZero() {
		return Secret{}, false, nil
	}
	return NewSecret(m.secret.Reveal()), true, nil
}

func (m *MemoryStore) Set(s Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = NewSecret(s.Reveal())
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = Secret{}
	return nil
}
