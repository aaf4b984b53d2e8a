package money

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// centsThreshold: integer prices above this are assumed to already be in
// cents (GovDeals sends product_pricecents as a bare integer). Anything at or
// below it is read as whole dollars. Upstream quirk, keep as-is.
const centsThreshold = 250_000

var numberRe = regexp.MustCompile(`\d+(?:\.\d{1,2})?`)

// ParseCents extracts a dollar amount from a string or number like
// "$4,500", "Current bid: $3,250", 3250.50 or 4500 and returns cents.
// Returns ok=false when nothing numeric can be extracted.
func ParseCents(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return intCents(int64(n))
	case int32:
		return intCents(int64(n))
	case int64:
		return intCents(n)
	case float32:
		return floatCents(float64(n))
	case float64:
		return floatCents(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return intCents(i)
		}
		if f, err := n.Float64(); err == nil {
			return floatCents(f)
		}
		return 0, false
	case string:
		return stringCents(n)
	default:
		return stringCents(fmt.Sprint(v))
	}
}

func intCents(n int64) (int64, bool) {
	if n < 0 {
		return 0, false
	}
	if n > centsThreshold {
		return n, true
	}
	return n * 100, true
}

func floatCents(f float64) (int64, bool) {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Round(f * 100)), true
}

func stringCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	tok := numberRe.FindString(s)
	if tok == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * 100)), true
}

// FormatDollars renders cents as "$4,500" or "$4,500.50". A nil price
// renders as an em dash, matching the digest and alert bodies.
func FormatDollars(cents *int64) string {
	if cents == nil {
		return "—"
	}
	c := *cents
	neg := ""
	if c < 0 {
		neg = "-"
		c = -c
	}
	dollars := c / 100
	rem := c % 100
	if rem == 0 {
		return fmt.Sprintf("%s$%s", neg, groupThousands(dollars))
	}
	return fmt.Sprintf("%s$%s.%02d", neg, groupThousands(dollars), rem)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
