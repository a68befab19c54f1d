// Пакет fingerprint — вычисление отпечатков документов и ключей идемпотентности.
//
// Отпечаток — SHA-256 содержимого в нижнем регистре hex (64 символа).
// Ключ идемпотентности пакетной регистрации строится тем же примитивом
// над строкой "<batchID>:<нормализованный ключ>". Пакет не хранит
// и не передаёт содержимое документов.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Separator — разделитель batchID и естественного ключа.
const Separator = ":"

// DefaultMediaType — MIME-тип, если определить его не удалось.
const DefaultMediaType = "application/octet-stream"

var digestRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Fingerprint — отпечаток файла и его базовые метаданные.
type Fingerprint struct {
	Digest    string
	Name      string
	SizeBytes int64
	MediaType string
}

// HashReader вычисляет SHA-256 потока. Возвращает hex-отпечаток
// и количество прочитанных байт.
func HashReader(r io.Reader) (string, int64, error) {
	hasher := sha256.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return "", n, fmt.Errorf("ошибка вычисления SHA-256: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// HashFile вычисляет отпечаток файла и определяет его MIME-тип по содержимому.
// Файл читается потоково, память не зависит от размера.
func HashFile(path string) (*Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("открытие %s: %w", path, err)
	}
	defer file.Close()

	mediaType := DefaultMediaType
	if mt, err := mimetype.DetectReader(file); err == nil && mt != nil {
		mediaType = mt.String()
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("перемотка %s: %w", path, err)
	}

	digest, size, err := HashReader(file)
	if err != nil {
		return nil, fmt.Errorf("хеширование %s: %w", path, err)
	}

	return &Fingerprint{
		Digest:    digest,
		Name:      filepath.Base(path),
		SizeBytes: size,
		MediaType: mediaType,
	}, nil
}

// Normalize приводит естественный ключ к канонической форме:
// обрезка пробелов и нижний регистр.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IdempotencyKey вычисляет отпечаток пары (batchID, нормализованный ключ).
// Одна и та же пара всегда даёт один и тот же отпечаток.
func IdempotencyKey(batchID, normalizedKey string) string {
	sum := sha256.Sum256([]byte(batchID + Separator + normalizedKey))
	return hex.EncodeToString(sum[:])
}

// IsDigest проверяет каноническую форму отпечатка (64 hex в нижнем регистре).
func IsDigest(s string) bool {
	return digestRe.MatchString(s)
}

// Equal сравнивает отпечатки без учёта регистра.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
