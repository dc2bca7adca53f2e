package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"

	"incident-console/internal/config"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// envelope is the at-rest representation of an encrypted field: the
// AES-GCM ciphertext plus the KMS-wrapped data key that sealed it.
type envelope struct {
	Value string `json:"v"`
	DEK   string `json:"dek"`
}

type dataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

// Manager envelope-encrypts sensitive profile fields (operator email)
// before they reach the record store. With KMS disabled the data key is
// stored base64-encoded, which keeps development setups keyless.
type Manager struct {
	kmsClient *kms.Client
	config    *config.Config
	keyCache  sync.Map // wrapped DEK -> plaintext DEK
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

func (m *Manager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if !m.config.KMS.Enabled {
		return m.generateLocalKey()
	}

	result, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &dataKey{
		Plaintext:  result.Plaintext,
		Ciphertext: result.CiphertextBlob,
		KeyID:      m.config.KMS.KeyID,
	}, nil
}

func (m *Manager) generateLocalKey() (*dataKey, error) {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	// Without KMS the "wrapped" form is the key itself; development only.
	return &dataKey{
		Plaintext:  key,
		Ciphertext: key,
		KeyID:      uuid.New().String(),
	}, nil
}

// EncryptField seals plaintext under a fresh data key and returns the
// serialized envelope plus the master key id used.
func (m *Manager) EncryptField(ctx context.Context, plaintext string) ([]byte, string, error) {
	dk, err := m.generateDataKey(ctx)
	if err != nil {
		return nil, "", err
	}

	block, err := aes.NewCipher(dk.Plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	wrapped := base64.StdEncoding.EncodeToString(dk.Ciphertext)
	m.keyCache.Store(wrapped, dk.Plaintext)

	blob, err := json.Marshal(envelope{
		Value: base64.StdEncoding.EncodeToString(ciphertext),
		DEK:   wrapped,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return blob, dk.KeyID, nil
}

// DecryptField opens an envelope produced by EncryptField.
func (m *Manager) DecryptField(ctx context.Context, blob []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return "", fmt.Errorf("%w: invalid envelope", ErrDecryptionFailed)
	}

	if cached, ok := m.keyCache.Load(env.DEK); ok {
		return decryptWithKey(env.Value, cached.([]byte))
	}

	var plaintextDEK []byte
	if m.config.KMS.Enabled {
		ciphertextBlob, err := base64.StdEncoding.DecodeString(env.DEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
		}
		result, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: ciphertextBlob})
		if err != nil {
			return "", fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		plaintextDEK = result.Plaintext
	} else {
		var err error
		plaintextDEK, err = base64.StdEncoding.DecodeString(env.DEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
	}

	m.keyCache.Store(env.DEK, plaintextDEK)
	return decryptWithKey(env.Value, plaintextDEK)
}

// ClearCache drops all cached plaintext data keys.
func (m *Manager) ClearCache() {
	m.keyCache.Range(func(key, _ interface{}) bool {
		m.keyCache.Delete(key)
		return true
	})
}

func decryptWithKey(encryptedValue string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}
