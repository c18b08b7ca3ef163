// Package keyring provides secure credential storage for management
// credentials. It uses the system keyring when available, falling back to
// an encrypted local file when not.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/hkdf"

	"github.com/yllada/openvpn-management/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "openvpn-management"
	// probeKey is written and removed once to detect a usable system keyring.
	probeKey = "openvpn-management-probe"
)

// Options configures a Store.
type Options struct {
	// Dir holds the encrypted fallback file. Defaults to the config dir.
	Dir string
	// ForceLocal skips the system keyring entirely.
	ForceLocal bool
}

// Store implements common.CredentialStore.
type Store struct {
	mu        sync.RWMutex
	useLocal  bool
	local     map[string]string
	localFile string
	key       []byte
}

// New opens a credential store. The system keyring is probed once; if it
// cannot be written, credentials go to the encrypted local file.
func New(opts Options) (*Store, error) {
	s := &Store{}

	if !opts.ForceLocal {
		if err := keyring.Set(serviceName, probeKey, "probe"); err == nil {
			keyring.Delete(serviceName, probeKey)
			return s, nil
		}
		common.LogInfo("Keyring: system keyring unavailable, using encrypted file")
	}

	if err := s.initLocal(opts.Dir); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initLocal(dir string) error {
	if dir == "" {
		configDir, err := common.GetConfigDir()
		if err != nil {
			return err
		}
		dir = configDir
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
	}

	key, err := deriveKey(machineSecret())
	if err != nil {
		return err
	}

	s.useLocal = true
	s.localFile = filepath.Join(dir, common.CredentialsFileName)
	s.key = key
	s.local = make(map[string]string)
	s.loadLocal()
	return nil
}

// machineSecret returns host-bound input keying material.
func machineSecret() []byte {
	hostname, _ := os.Hostname()
	return []byte(fmt.Sprintf("%s-%s-%d", hostname, getMachineID(), os.Getuid()))
}

// deriveKey expands ikm into an AES-256 key.
func deriveKey(ikm []byte) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, ikm, []byte(serviceName), []byte("credential-file-v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}
	return key, nil
}

func getMachineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default-machine-id"
}

// account builds the keyring account name for a credential.
func account(profileID, key string) string {
	return profileID + "/" + key
}

func (s *Store) loadLocal() {
	data, err := os.ReadFile(s.localFile)
	if err != nil {
		return
	}

	decrypted, err := s.decrypt(data)
	if err != nil {
		common.LogWarn("Keyring: ignoring unreadable credential file: %v", err)
		return
	}

	json.Unmarshal(decrypted, &s.local)
}

func (s *Store) saveLocal() error {
	s.mu.RLock()
	data, err := json.Marshal(s.local)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	encrypted, err := s.encrypt(data)
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.localFile, encrypted, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
	}
	return nil
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func (s *Store) decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", common.ErrDecryption)
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return plaintext, nil
}

func validate(profileID, key string) error {
	if profileID == "" {
		return errors.New("profile ID cannot be empty")
	}
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	return nil
}

// Set saves a credential for a profile.
func (s *Store) Set(profileID, key, value string) error {
	if err := validate(profileID, key); err != nil {
		return err
	}
	if value == "" {
		return errors.New("credential value cannot be empty")
	}

	if !s.useLocal {
		err := keyring.Set(serviceName, account(profileID, key), value)
		if err == nil {
			return nil
		}
		common.LogWarn("Keyring: system keyring write failed, falling back to file: %v", err)
		if err := s.initLocal(""); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.local[account(profileID, key)] = value
	s.mu.Unlock()
	return s.saveLocal()
}

// Get retrieves a credential for a profile.
func (s *Store) Get(profileID, key string) (string, error) {
	if err := validate(profileID, key); err != nil {
		return "", err
	}

	if !s.useLocal {
		value, err := keyring.Get(serviceName, account(profileID, key))
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, keyring.ErrNotFound) {
			common.LogWarn("Keyring: lookup of %s failed: %v", account(profileID, key), err)
		}
		return "", common.ErrCredentialsNotFound
	}

	s.mu.RLock()
	value, exists := s.local[account(profileID, key)]
	s.mu.RUnlock()
	if !exists {
		return "", common.ErrCredentialsNotFound
	}
	return value, nil
}

// Delete removes a credential for a profile.
func (s *Store) Delete(profileID, key string) error {
	if err := validate(profileID, key); err != nil {
		return err
	}

	if !s.useLocal {
		err := keyring.Delete(serviceName, account(profileID, key))
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
		}
		return nil
	}

	s.mu.Lock()
	_, existed := s.local[account(profileID, key)]
	delete(s.local, account(profileID, key))
	s.mu.Unlock()
	if !existed {
		return nil
	}
	return s.saveLocal()
}

// Exists checks if a credential exists.
func (s *Store) Exists(profileID, key string) bool {
	_, err := s.Get(profileID, key)
	return err == nil
}

// IsLocal reports whether the encrypted file backend is in use.
func (s *Store) IsLocal() bool {
	return s.useLocal
}
