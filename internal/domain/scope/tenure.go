package scope

import (
	"strings"
	"time"
	"unicode"
)

// Tenure buckets derived from hire date
const (
	BucketZeroToSixMonths   = "0-6months"
	BucketSixToTwelveMonths = "6-12months"
	BucketOneToTwoYears     = "1-2years"
	BucketTwoToFiveYears    = "2-5years"
	BucketFivePlusYears     = "5plus-years"
)

var hireDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// ParseHireDate parses a stored hire date in any of the accepted layouts
func ParseHireDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range hireDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MonthsBetween returns the whole calendar months from start to end. A partial month
// (end day before start day) does not count.
func MonthsBetween(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	return months
}

// TenureBucket derives the bucket for a hire date at now. Hire dates in the future have no bucket.
// now is read on the hire date's calendar, which is UTC for date-only values.
func TenureBucket(hire, now time.Time) (string, bool) {
	months := MonthsBetween(hire, now.In(hire.Location()))
	switch {
	case months < 0:
		return "", false
	case months < 6:
		return BucketZeroToSixMonths, true
	case months < 12:
		return BucketSixToTwelveMonths, true
	case months < 24:
		return BucketOneToTwoYears, true
	case months < 60:
		return BucketTwoToFiveYears, true
	default:
		return BucketFivePlusYears, true
	}
}

// BucketForHireDate parses raw and derives its bucket
func BucketForHireDate(raw string, now time.Time) (string, bool) {
	hire, ok := ParseHireDate(raw)
	if !ok {
		return "", false
	}
	return TenureBucket(hire, now)
}

// bucketSynonyms is keyed by the squashed form produced by squash
var bucketSynonyms = map[string]string{
	"06months":        BucketZeroToSixMonths,
	"06month":         BucketZeroToSixMonths,
	"06m":             BucketZeroToSixMonths,
	"06mo":            BucketZeroToSixMonths,
	"0to6months":      BucketZeroToSixMonths,
	"lessthan6months": BucketZeroToSixMonths,
	"under6months":    BucketZeroToSixMonths,
	"upto6months":     BucketZeroToSixMonths,

	"612months":      BucketSixToTwelveMonths,
	"612month":       BucketSixToTwelveMonths,
	"612m":           BucketSixToTwelveMonths,
	"612mo":          BucketSixToTwelveMonths,
	"6to12months":    BucketSixToTwelveMonths,
	"6monthsto1year": BucketSixToTwelveMonths,
	"6months1year":   BucketSixToTwelveMonths,

	"12years":      BucketOneToTwoYears,
	"12year":       BucketOneToTwoYears,
	"12y":          BucketOneToTwoYears,
	"12yrs":        BucketOneToTwoYears,
	"1to2years":    BucketOneToTwoYears,
	"1224months":   BucketOneToTwoYears,
	"12to24months": BucketOneToTwoYears,

	"25years":      BucketTwoToFiveYears,
	"25year":       BucketTwoToFiveYears,
	"25y":          BucketTwoToFiveYears,
	"25yrs":        BucketTwoToFiveYears,
	"2to5years":    BucketTwoToFiveYears,
	"2460months":   BucketTwoToFiveYears,
	"24to60months": BucketTwoToFiveYears,

	"5plusyears":     BucketFivePlusYears,
	"5plusyear":      BucketFivePlusYears,
	"5plusyrs":       BucketFivePlusYears,
	"5plus":          BucketFivePlusYears,
	"5yearsplus":     BucketFivePlusYears,
	"5yearplus":      BucketFivePlusYears,
	"over5years":     BucketFivePlusYears,
	"morethan5years": BucketFivePlusYears,
	"5yearsandabove": BucketFivePlusYears,
	"60plusmonths":   BucketFivePlusYears,
	"60monthsplus":   BucketFivePlusYears,
}

// squash lowercases s, spells "+" as "plus" and drops everything that is not a letter or digit
func squash(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "+", "plus")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalBucket maps a configured tenure token onto one of the bucket names.
// Separators, plus signs and common synonyms are tolerated.
func CanonicalBucket(token string) (string, bool) {
	bucket, ok := bucketSynonyms[squash(token)]
	return bucket, ok
}

// CanonicalBuckets maps every token of l through CanonicalBucket. Tokens that match no bucket
// are kept as-is so they never match a derived bucket by accident.
func CanonicalBuckets(l List) List {
	tokens := make([]string, 0, len(l.Tokens))
	for _, token := range l.Tokens {
		if bucket, ok := CanonicalBucket(token); ok {
			tokens = append(tokens, bucket)
			continue
		}
		tokens = append(tokens, token)
	}
	return List{Tokens: tokens, Encoding: l.Encoding}
}
