package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"carhistory/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// exportKeyInfo is the fixed HKDF context for export payload keys. The same
// server secret used for identity hashing cannot be replayed as an export
// encryption key because the derivation is purpose-bound.
const exportKeyInfo = "carhistory/export-grant-encryption/v1"

// EncryptedPayload is the ciphertext envelope returned by full exports.
type EncryptedPayload struct {
	Ciphertext   string    `json:"ciphertext"`
	EncryptedDEK string    `json:"encrypted_dek,omitempty"`
	KeyID        string    `json:"key_id"`
	Algorithm    string    `json:"algorithm"`
	CreatedAt    time.Time `json:"created_at"`
}

// EncryptionManager encrypts full-export payloads with AES-256-GCM. The data
// key comes either from HKDF over the server secret (default) or from a KMS
// generated data key in envelope mode.
type EncryptionManager struct {
	secret     []byte
	kmsClient  *kms.Client
	kmsEnabled bool
	kmsKeyID   string
}

func NewEncryptionManager(cfg *config.Config, kmsClient *kms.Client) *EncryptionManager {
	return &EncryptionManager{
		secret:     []byte(cfg.Secret),
		kmsClient:  kmsClient,
		kmsEnabled: cfg.KMS.Enabled && kmsClient != nil,
		kmsKeyID:   cfg.KMS.KeyID,
	}
}

// EncryptExport seals plaintext into an EncryptedPayload.
func (em *EncryptionManager) EncryptExport(ctx context.Context, plaintext []byte) (*EncryptedPayload, error) {
	key, encryptedDEK, keyID, err := em.exportKey(ctx)
	if err != nil {
		return nil, err
	}

	ciphertext, err := sealGCM(key, plaintext)
	if err != nil {
		return nil, err
	}

	return &EncryptedPayload{
		Ciphertext:   base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK: encryptedDEK,
		KeyID:        keyID,
		Algorithm:    "aes-256-gcm",
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// DecryptExport opens a payload produced by EncryptExport. Callers must hold
// the same server secret (derived mode) or KMS decrypt access (envelope mode).
func (em *EncryptionManager) DecryptExport(ctx context.Context, payload *EncryptedPayload) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext encoding", ErrDecryptionFailed)
	}

	var key []byte
	if payload.EncryptedDEK != "" {
		key, err = em.decryptDEK(ctx, payload.EncryptedDEK)
		if err != nil {
			return nil, err
		}
	} else {
		key = em.derivedKey()
	}

	return openGCM(key, ciphertext)
}

// exportKey returns the AES key plus, in KMS mode, the encrypted DEK that
// must travel with the ciphertext.
func (em *EncryptionManager) exportKey(ctx context.Context) (key []byte, encryptedDEK, keyID string, err error) {
	if !em.kmsEnabled {
		return em.derivedKey(), "", "derived", nil
	}

	out, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(em.kmsKeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: generate data key: %v", ErrEncryptionFailed, err)
	}
	return out.Plaintext, base64.StdEncoding.EncodeToString(out.CiphertextBlob), em.kmsKeyID, nil
}

func (em *EncryptionManager) decryptDEK(ctx context.Context, encryptedDEK string) ([]byte, error) {
	if !em.kmsEnabled {
		return nil, fmt.Errorf("%w: payload requires KMS but KMS is disabled", ErrDecryptionFailed)
	}
	blob, err := base64.StdEncoding.DecodeString(encryptedDEK)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid DEK encoding", ErrDecryptionFailed)
	}
	out, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt DEK: %v", ErrDecryptionFailed, err)
	}
	return out.Plaintext, nil
}

func (em *EncryptionManager) derivedKey() []byte {
	r := hkdf.New(sha256.New, em.secret, nil, []byte(exportKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF over a fixed-size output cannot fail for 32 bytes.
		panic("hkdf: " + err.Error())
	}
	return key
}

func sealGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openGCM(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
