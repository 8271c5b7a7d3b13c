package order

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"mtfbot/internal/signal"
)

// ClientOrderID derives a deterministic client order id. Identical inputs
// within the same time bucket always produce the same id, so a retry inside
// the bucket cannot double-submit: the venue deduplicates on the id.
func ClientOrderID(kind, symbol string, side signal.Side, positionID string, now time.Time, bucketSeconds int64) string {
	if bucketSeconds <= 0 {
		bucketSeconds = 60
	}
	bucket := (now.Unix() / bucketSeconds) * bucketSeconds
	seed := fmt.Sprintf("%s|%s|%s|%s|%d", kind, symbol, side, positionID, bucket)
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])[:20]
}
