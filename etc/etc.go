package etc

import (
	"time"

	"github.com/nrednav/cuid2"
)

func NewFreshID() string {
	return cuid2.Generate()
}

// Timestamp renders t the way every wire event carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
