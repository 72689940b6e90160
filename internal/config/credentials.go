package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// ErrWrongMasterPassword is returned when stored credentials cannot be decrypted.
var ErrWrongMasterPassword = errors.New("wrong master password")

const (
	pbkdf2Iterations = 100000
	keyLength        = 32 // AES-256
	saltLength       = 32

	credentialsFileName = "credentials.enc"
)

// credentialsFile is the on-disk format. Check holds a sealed known value so
// a wrong master password is detected even when no profile has a password.
type credentialsFile struct {
	Salt      string            `json:"salt"`
	Check     string            `json:"check"`
	Passwords map[string]string `json:"passwords"` // profile ID -> sealed password
}

const checkPlaintext = "gallery-sync"

// CredentialsManager stores profile passwords encrypted with AES-GCM under a
// key derived from a master password.
type CredentialsManager struct {
	path string
	file credentialsFile
	aead cipher.AEAD
	mu   sync.RWMutex
}

// NewCredentialsManager opens or creates the credentials file in configDir.
func NewCredentialsManager(configDir, masterPassword string) (*CredentialsManager, error) {
	cm := &CredentialsManager{path: filepath.Join(configDir, credentialsFileName)}

	data, err := os.ReadFile(cm.path)
	switch {
	case os.IsNotExist(err):
		return cm, cm.initialize(masterPassword)
	case err != nil:
		return nil, err
	}

	if err := json.Unmarshal(data, &cm.file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(cm.file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	if cm.aead, err = deriveAEAD(masterPassword, salt); err != nil {
		return nil, err
	}
	if check, err := cm.open(cm.file.Check); err != nil || check != checkPlaintext {
		return nil, ErrWrongMasterPassword
	}
	if cm.file.Passwords == nil {
		cm.file.Passwords = make(map[string]string)
	}
	return cm, nil
}

func (cm *CredentialsManager) initialize(masterPassword string) error {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := deriveAEAD(masterPassword, salt)
	if err != nil {
		return err
	}

	cm.aead = aead
	cm.file.Salt = base64.StdEncoding.EncodeToString(salt)
	cm.file.Passwords = make(map[string]string)
	if cm.file.Check, err = cm.seal(checkPlaintext); err != nil {
		return err
	}
	return cm.save()
}

func deriveAEAD(masterPassword string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(masterPassword), salt, pbkdf2Iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func (cm *CredentialsManager) seal(plaintext string) (string, error) {
	nonce := make([]byte, cm.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(cm.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (cm *CredentialsManager) open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(data) < cm.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:cm.aead.NonceSize()], data[cm.aead.NonceSize():]
	plaintext, err := cm.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// save writes the file with owner-only permissions. Caller holds mu or owns cm.
func (cm *CredentialsManager) save() error {
	data, err := json.MarshalIndent(cm.file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cm.path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	return os.WriteFile(cm.path, data, 0600)
}

// SetPassword stores an encrypted password for a profile.
func (cm *CredentialsManager) SetPassword(profileID, password string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	sealed, err := cm.seal(password)
	if err != nil {
		return err
	}
	cm.file.Passwords[profileID] = sealed
	return cm.save()
}

// GetPassword returns the decrypted password, or "" when none is stored.
func (cm *CredentialsManager) GetPassword(profileID string) (string, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	sealed, ok := cm.file.Passwords[profileID]
	if !ok {
		return "", nil
	}
	return cm.open(sealed)
}

// DeletePassword removes the stored password for a profile.
func (cm *CredentialsManager) DeletePassword(profileID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.file.Passwords[profileID]; !ok {
		return nil
	}
	delete(cm.file.Passwords, profileID)
	return cm.save()
}

// HasPassword checks if a password is stored for a profile.
func (cm *CredentialsManager) HasPassword(profileID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.file.Passwords[profileID]
	return ok
}
