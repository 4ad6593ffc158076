package datanorm

import (
	crand "crypto/rand"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const syntheticPrefix = "synthetic-"

// IDSource issues placeholder identifiers for rows without a usable email.
// One IDSource serves a single mapping run.
type IDSource interface {
	NewID() string
}

// IDFactory returns a fresh IDSource for each mapping run.
type IDFactory func() IDSource

// IsSyntheticID reports whether id was issued by SyntheticIDs.
func IsSyntheticID(id string) bool {
	return strings.HasPrefix(id, syntheticPrefix)
}

// SyntheticIDs builds ids of the form synthetic-<unix ms>-<seq>-<random>.
// The sequence makes ids unique within a run; the timestamp and random
// part keep them apart across runs.
type SyntheticIDs struct {
	now  func() time.Time
	rand io.Reader
	seq  int
}

// NewSyntheticIDs returns a source backed by the wall clock and
// crypto/rand.
func NewSyntheticIDs() *SyntheticIDs {
	return &SyntheticIDs{now: time.Now, rand: crand.Reader}
}

// NewSeededIDs returns a deterministic source for tests and replays.
func NewSeededIDs(seed int64, now time.Time) *SyntheticIDs {
	return &SyntheticIDs{
		now:  func() time.Time { return now },
		rand: rand.New(rand.NewSource(seed)),
	}
}

// SeededIDs returns a factory whose runs all issue the same id sequence.
func SeededIDs(seed int64, now time.Time) IDFactory {
	return func() IDSource { return NewSeededIDs(seed, now) }
}

func defaultIDFactory() IDSource { return NewSyntheticIDs() }

func (s *SyntheticIDs) NewID() string {
	s.seq++
	suffix := "00000000"
	if u, err := uuid.NewRandomFromReader(s.rand); err == nil {
		suffix = u.String()[:8]
	}
	return fmt.Sprintf("%s%d-%d-%s", syntheticPrefix, s.now().UnixMilli(), s.seq, suffix)
}
