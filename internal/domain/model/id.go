package model

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// IDLength — длина идентификатора подключения (24 hex-символа).
const IDLength = 24

// NewID генерирует идентификатор подключения: 4 байта Unix-времени (big-endian)
// и 8 случайных байт из UUIDv4. Идентификаторы сортируются по времени создания.
// Байты 6 и 8 UUID содержат версию и вариант и не используются.
func NewID(now time.Time) string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(now.Unix()))
	u := uuid.New()
	copy(b[4:10], u[0:6])
	copy(b[10:12], u[9:11])
	return hex.EncodeToString(b[:])
}

// IsValidID проверяет формат идентификатора.
func IsValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
