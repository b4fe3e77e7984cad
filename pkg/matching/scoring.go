package matching

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// Jaro calculates the Jaro similarity between two strings, rune-wise.
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	// Maximum distance for character matching
	matchDist := max(len(ra), len(rb))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(ra))
	bMatches := make([]bool, len(rb))

	matches := 0
	for i := range ra {
		start := max(0, i-matchDist)
		end := min(len(rb), i+matchDist+1)
		for j := start; j < end; j++ {
			if bMatches[j] || ra[i] != rb[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range ra {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(len(ra)) + m/float64(len(rb)) + (m-t)/m) / 3
}

// JaroWinkler boosts Jaro by up to four runes of common prefix.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := Jaro(a, b)
	ra, rb := []rune(a), []rune(b)
	prefix := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1.0-jaro)
}

var quantityRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]*)$`)

// parseQuantity splits "12.5oz" into 12.5 and "oz".
func parseQuantity(s string) (decimal.Decimal, string, bool) {
	m := quantityRe.FindStringSubmatch(s)
	if m == nil {
		return decimal.Decimal{}, "", false
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Decimal{}, "", false
	}
	return d, m[2], true
}

// NumericMatch reports whether both values are quantities in the same unit
// whose relative difference is within tolerance. ok is false when either
// value is not a quantity.
func NumericMatch(a, b string, tolerance float64) (match bool, ok bool) {
	da, ua, okA := parseQuantity(a)
	db, ub, okB := parseQuantity(b)
	if !okA || !okB || ua != ub {
		return false, false
	}
	if da.Equal(db) {
		return true, true
	}

	largest := decimal.Max(da.Abs(), db.Abs())
	if largest.IsZero() {
		return true, true
	}
	diff := da.Sub(db).Abs().Div(largest)
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance)), true
}
