package ids

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Size is the number of digest bytes kept in an identifier.
const Size = 16

// Derive hashes caller, the unix second of now and salt, and returns the
// first Size bytes of the SHA-256 digest as lowercase hex.
func Derive(caller string, now time.Time, salt []byte) string {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.Unix()))

	h := sha256.New()
	h.Write([]byte(caller))
	h.Write(ts[:])
	h.Write(salt)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:Size])
}

// Generator allocates identifiers that stay unique when the same caller
// creates several records within one clock second, and across restarts.
type Generator struct {
	epoch uuid.UUID
	seq   atomic.Uint64
}

func NewGenerator() *Generator {
	return &Generator{epoch: uuid.New()}
}

// NewID returns a fresh 32 character hex identifier for caller at now.
func (g *Generator) NewID(caller string, now time.Time) string {
	salt := make([]byte, 0, len(g.epoch)+8)
	salt = append(salt, g.epoch[:]...)
	salt = binary.BigEndian.AppendUint64(salt, g.seq.Add(1))
	return Derive(caller, now, salt)
}
