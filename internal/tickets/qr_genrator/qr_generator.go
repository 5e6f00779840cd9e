package qr

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

	"ms-ledger/internal/models"

	"github.com/skip2/go-qrcode"
)

var ErrMalformedPayload = errors.New("malformed pass payload")

type QRGenerator struct {
	secret []byte
	size   int
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:], size: 256}
}

// Payload returns the encrypted, URL-safe text a scanner reads.
func (q *QRGenerator) Payload(pass models.Pass) (string, error) {
	data, err := json.Marshal(pass)
	if err != nil {
		return "", err
	}
	return encryptAES(data, q.secret)
}

// GeneratePassQR renders the encrypted pass as a PNG.
func (q *QRGenerator) GeneratePassQR(pass models.Pass) ([]byte, error) {
	payload, err := q.Payload(pass)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, q.size)
}

// ReadPayload decrypts a scanned payload back into a pass.
func (q *QRGenerator) ReadPayload(payload string) (*models.Pass, error) {
	data, err := decryptAES(payload, q.secret)
	if err != nil {
		return nil, err
	}
	var pass models.Pass
	if err := json.Unmarshal(data, &pass); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &pass, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(payload string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, ErrMalformedPayload
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, data := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(data, data)
	return data, nil
}
