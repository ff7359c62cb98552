package usage

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/vnmchuo/usage-meter/internal/message"
	"github.com/vnmchuo/usage-meter/internal/report"
)

// Scoring weights for free-text messages. Applied in the order they are
// declared; see Compute.
const (
	charCost               = 0.05 // per character, whitespace included
	wordLengthWeight       = 0.3  // times the average word length
	thirdVowelBonus        = 0.5  // per vowel at a 0-indexed position i with i%3 == 2
	lengthPenaltyThreshold = 50   // words
	lengthPenaltyPerWord   = 0.2  // per word beyond the threshold
	palindromeBonus        = 10.0
	uniqueWordWeight       = 5.0 // times the distinct-word ratio

	// MinCredits is the floor applied after rounding. A message never
	// costs less than this, and never a negative amount.
	MinCredits = 0.1
)

// Compute prices one message. Report-bearing messages cost exactly the
// report's credit_cost; resolved must be non-nil for them or the message is
// unpriceable. Free-text messages are scored from the text alone. Pure: no
// state, same inputs always yield the same credits.
func Compute(msg message.Message, resolved *report.Report) (float64, error) {
	if msg.Kind() == message.KindReport {
		if resolved == nil {
			return 0, fmt.Errorf("%w: report %d referenced by message %d", report.ErrNotFound, msg.ReportID(), msg.ID())
		}
		return resolved.CreditCost, nil
	}
	return scoreText(msg.Text()), nil
}

func scoreText(text string) float64 {
	runes := []rune(text)
	words := strings.Fields(text)

	total := float64(len(runes)) * charCost
	total += averageWordLength(words) * wordLengthWeight
	total += thirdVowelScore(runes)

	if len(words) > lengthPenaltyThreshold {
		total -= lengthPenaltyPerWord * float64(len(words)-lengthPenaltyThreshold)
	}
	if isPalindrome(text) {
		total += palindromeBonus
	}
	total += uniqueWordRatio(words) * uniqueWordWeight

	return math.Max(roundToTenth(total), MinCredits)
}

func averageWordLength(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum int
	for _, w := range words {
		sum += len([]rune(w))
	}
	return float64(sum) / float64(len(words))
}

func thirdVowelScore(runes []rune) float64 {
	var score float64
	for i := 2; i < len(runes); i += 3 {
		switch unicode.ToLower(runes[i]) {
		case 'a', 'e', 'i', 'o', 'u':
			score += thirdVowelBonus
		}
	}
	return score
}

// isPalindrome lower-cases the text, strips everything non-alphanumeric and
// checks the remainder against its own reverse. Empty remainders don't count.
func isPalindrome(text string) bool {
	var cleaned []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) == 0 {
		return false
	}
	for i, j := 0, len(cleaned)-1; i < j; i, j = i+1, j-1 {
		if cleaned[i] != cleaned[j] {
			return false
		}
	}
	return true
}

func uniqueWordRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	distinct := make(map[string]struct{}, len(words))
	for _, w := range words {
		distinct[strings.ToLower(w)] = struct{}{}
	}
	return float64(len(distinct)) / float64(len(words))
}

// roundToTenth rounds half away from zero at one decimal place. The 1e-9
// nudge keeps decimal halves that land a few ulps low in binary floating
// point (16.55 summing to 16.549999…) on the expected side.
func roundToTenth(x float64) float64 {
	return math.Round(x*10+1e-9) / 10
}
