package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ereyli/Burrowburr/internal/types"
)

const keystoreVersion = 1

// argon2id parameters for new keystores
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = chacha20poly1305.KeySize
	kdfSaltLen = 16
)

// ErrBadPassword means the keystore could not be decrypted with the given password
var ErrBadPassword = errors.New("keystore password is incorrect")

// KeystoreData is the plaintext content of a keystore
type KeystoreData struct {
	Kind Kind
	Name string
	KeyMaterial
}

type kdfParams struct {
	Salt    string `json:"salt"`
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

type keystoreFile struct {
	Version    int       `json:"version"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name,omitempty"`
	Address    string    `json:"address"`
	PublicKey  string    `json:"publicKey"`
	KDF        kdfParams `json:"kdf"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
}

func deriveKey(password string, p kdfParams) ([]byte, error) {
	salt, err := hex.DecodeString(p.Salt)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("invalid keystore salt")
	}
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return nil, fmt.Errorf("invalid keystore kdf parameters")
	}
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, kdfKeyLen), nil
}

// CreateKeystore encrypts data with password and writes it to path (0600)
func CreateKeystore(path, password string, data KeystoreData) error {
	if password == "" {
		return fmt.Errorf("keystore password must not be empty")
	}
	if err := data.KeyMaterial.validate(); err != nil {
		return err
	}
	if data.Kind == "" {
		data.Kind = KindUnknown
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	kdf := kdfParams{Salt: hex.EncodeToString(salt), Time: kdfTime, Memory: kdfMemory, Threads: kdfThreads}
	key, err := deriveKey(password, kdf)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	address := types.NormalizeAddress(data.Address)
	ct := aead.Seal(nil, nonce, []byte(data.PrivateKey), []byte(address))

	file := keystoreFile{
		Version:    keystoreVersion,
		Kind:       data.Kind.String(),
		Name:       data.Name,
		Address:    data.Address,
		PublicKey:  data.PublicKey,
		KDF:        kdf,
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ct),
	}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create keystore directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return nil
}

// PasswordPrompt asks the user for the password of the named wallet
type PasswordPrompt func(ctx context.Context, name string) (string, error)

// KeystoreOptions configures a KeystoreProvider
type KeystoreOptions struct {
	Factory AccountFactory
	Prompt  PasswordPrompt
}

// KeystoreProvider is a wallet backed by an encrypted keystore file. It is
// locked until Unlock succeeds.
type KeystoreProvider struct {
	path    string
	file    keystoreFile
	factory AccountFactory
	prompt  PasswordPrompt

	mu        sync.Mutex
	secret    string
	connected bool
}

// LoadKeystore reads the keystore at path without decrypting it
func LoadKeystore(path string, opts KeystoreOptions) (*KeystoreProvider, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("keystore %s: account factory is required", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keystore %s: %w", path, err)
	}
	if file.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", file.Version)
	}
	if file.Address == "" || file.Ciphertext == "" {
		return nil, fmt.Errorf("keystore %s is incomplete", path)
	}
	return &KeystoreProvider{
		path:    path,
		file:    file,
		factory: opts.Factory,
		prompt:  opts.Prompt,
	}, nil
}

func (k *KeystoreProvider) Kind() Kind { return ParseKind(k.file.Kind) }

func (k *KeystoreProvider) Name() string {
	if k.file.Name != "" {
		return k.file.Name
	}
	return fmt.Sprintf("%s %s", k.Kind().DisplayName(), types.ShortAddress(k.file.Address))
}

// Address is the account address stored in clear in the keystore
func (k *KeystoreProvider) Address() string { return k.file.Address }

// Installed reports whether the keystore file is still present
func (k *KeystoreProvider) Installed() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

func (k *KeystoreProvider) Locked(context.Context) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.secret == "", nil
}

func (k *KeystoreProvider) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected && k.secret != ""
}

// Unlock decrypts the private key with password
func (k *KeystoreProvider) Unlock(password string) error {
	key, err := deriveKey(password, k.file.KDF)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to init cipher: %w", err)
	}
	nonce, err := hex.DecodeString(k.file.Nonce)
	if err != nil || len(nonce) != aead.NonceSize() {
		return fmt.Errorf("invalid keystore nonce")
	}
	ct, err := hex.DecodeString(k.file.Ciphertext)
	if err != nil {
		return fmt.Errorf("invalid keystore ciphertext")
	}
	pt, err := aead.Open(nil, nonce, ct, []byte(types.NormalizeAddress(k.file.Address)))
	if err != nil {
		return ErrBadPassword
	}

	k.mu.Lock()
	k.secret = string(pt)
	k.mu.Unlock()
	return nil
}

// Lock forgets the decrypted key. A live session notices on its next probe.
func (k *KeystoreProvider) Lock() {
	k.mu.Lock()
	k.secret = ""
	k.mu.Unlock()
}

// Enable authorizes a session. A locked keystore prompts for the password
// unless opts.Silent is set, in which case it fails with ErrWalletLocked.
func (k *KeystoreProvider) Enable(ctx context.Context, opts EnableOptions) (Account, error) {
	locked, _ := k.Locked(ctx)
	if locked {
		if opts.Silent || k.prompt == nil {
			return nil, ErrWalletLocked
		}
		password, err := k.prompt(ctx, k.Name())
		if err != nil {
			if IsCancelledError(err) {
				return nil, ErrUserCancelled
			}
			return nil, fmt.Errorf("password prompt failed: %w", err)
		}
		if strings.TrimSpace(password) == "" {
			return nil, ErrUserCancelled
		}
		if err := k.Unlock(password); err != nil {
			if errors.Is(err, ErrBadPassword) {
				return nil, ErrWalletLocked
			}
			return nil, err
		}
	}

	k.mu.Lock()
	key := KeyMaterial{Address: k.file.Address, PublicKey: k.file.PublicKey, PrivateKey: k.secret}
	k.mu.Unlock()
	if key.PrivateKey == "" {
		return nil, ErrWalletLocked
	}

	acct, err := k.factory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s account: %w", k.Kind().DisplayName(), err)
	}

	k.mu.Lock()
	k.connected = true
	k.mu.Unlock()
	return acct, nil
}

func (k *KeystoreProvider) Disconnect(context.Context) error {
	k.mu.Lock()
	k.connected = false
	k.mu.Unlock()
	return nil
}
