package pix

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const txidSuffixLength = 14

// NewTxID returns an uppercase alphanumeric id of at most 25 characters:
// the base36 millisecond clock followed by random hex.
func NewTxID(now time.Time) string {
	prefix := strconv.FormatInt(now.UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:txidSuffixLength]
	id := strings.ToUpper(prefix + suffix)
	if len(id) > maxTxIDLength {
		id = id[:maxTxIDLength]
	}
	return id
}
