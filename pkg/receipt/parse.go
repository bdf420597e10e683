package receipt

import (
	"regexp"
	"strconv"
	"strings"
)

var amountRE = regexp.MustCompile(`(?i)(₹|rs\.?|inr|\$)?\s*([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?)`)

type candidate struct {
	amount float64
	raw    string
	score  int
}

// lineKind tells grand-total lines apart from subtotals.
func lineKind(line string) (total, subtotal bool) {
	low := strings.ToLower(line)
	if strings.Contains(low, "subtotal") || strings.Contains(low, "sub total") || strings.Contains(low, "sub-total") {
		return false, true
	}
	return strings.Contains(low, "total") || strings.Contains(low, "amount due") || strings.Contains(low, "grand"), false
}

// candidates returns the currency-looking numbers on one line. Plain integers
// are only kept on total lines so dates and phone numbers do not qualify.
func candidates(line string) []candidate {
	total, _ := lineKind(line)
	var out []candidate
	for _, m := range amountRE.FindAllStringSubmatchIndex(line, -1) {
		start, end := m[4], m[5]
		// reject fragments of longer digit runs such as 12.05.2024
		if start > 0 && strings.ContainsAny(line[start-1:start], "0123456789.,") {
			continue
		}
		if end < len(line) && strings.ContainsAny(line[end:end+1], "0123456789.") {
			continue
		}
		num := line[start:end]
		marker := m[2] >= 0
		decimal := strings.Contains(num, ".")
		if !marker && !decimal && !total {
			continue
		}
		amt, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
		if err != nil || amt <= 0 {
			continue
		}
		s := 0
		if total {
			s += 20
		}
		if marker {
			s += 10
		}
		if strings.Contains(num, ",") {
			s += 5
		}
		if decimal {
			s += 3
		}
		out = append(out, candidate{amount: amt, raw: strings.TrimSpace(line[m[0]:end]), score: s})
	}
	return out
}

// BestAmount picks the most likely amount paid from OCR text: a TOTAL line
// wins over a subtotal, otherwise the largest currency-marked number.
func BestAmount(text string) (float64, string, error) {
	var best *candidate
	for _, line := range strings.Split(text, "\n") {
		for _, c := range candidates(line) {
			c := c
			if best == nil || c.score > best.score || (c.score == best.score && c.amount > best.amount) {
				best = &c
			}
		}
	}
	if best == nil {
		return 0, "", ErrNoAmount
	}
	return best.amount, best.raw, nil
}
