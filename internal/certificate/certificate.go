// Package certificate renders certificates onto the PDF template and builds the
// identifiers and text that go with them.
package certificate

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IDLength is the length of a certificate id.
const IDLength = 12

// NewID returns a random 12-character uppercase alphanumeric certificate id.
func NewID() string {
	var b strings.Builder
	b.Grow(IDLength)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := 0; i < IDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("certificate: read random: %v", err))
		}
		b.WriteByte(idAlphabet[n.Int64()])
	}
	return b.String()
}

// AutoFontSize returns the largest size in [minSize, maxSize] at which text whose
// width at size 1 is unitWidth fits within wrapWidth.
func AutoFontSize(unitWidth, wrapWidth, minSize, maxSize float64) float64 {
	if unitWidth <= 0 {
		return maxSize
	}
	ideal := math.Floor(wrapWidth / unitWidth)
	return math.Max(minSize, math.Min(maxSize, ideal))
}

// FormatIssuedAt formats t like "16th October 2026 09:05:00 UTC".
func FormatIssuedAt(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s %s", ordinal(t.Day()), t.Format("January 2006 15:04:05 UTC"))
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// QuizCompletionText is the sentence printed on a single-quiz certificate.
func QuizCompletionText(quizName string, percentage int, issued string) string {
	return fmt.Sprintf("For successfully completing %s with score of %d%% on %s.", quizName, percentage, issued)
}

// GroupCompletionText is the sentence printed on a group certificate.
func GroupCompletionText(groupName, issued string) string {
	return fmt.Sprintf("For successfully completing all quizzes in the %s group on %s.", groupName, issued)
}

// ObjectKey is the storage key of a rendered certificate. Group certificates use
// "group" in place of the submission id.
func ObjectKey(prefix, certificateID, userID, submissionID string) string {
	if submissionID == "" {
		submissionID = "group"
	}
	return fmt.Sprintf("%s%s-%s-%s.pdf", prefix, certificateID, userID, submissionID)
}
