package payments

import (
	"regexp"
	"strconv"
	"strings"
)

// OrderIDExtractor finds the order a bank transfer pays for.
type OrderIDExtractor interface {
	Extract(w Webhook) (int64, bool)
}

// DefaultOrderPattern matches the transfer notes customers are asked to use,
// such as "YHF42", "DH 42" or "don hang 42".
var DefaultOrderPattern = regexp.MustCompile(`(?i)(?:YHF|DH|Order|don\s*hang|donhang)\s*(\d+)`)

// PatternExtractor reads the code field as a plain number first and then
// searches code, content and description with Pattern.
type PatternExtractor struct {
	Pattern *regexp.Regexp
}

func (e PatternExtractor) Extract(w Webhook) (int64, bool) {
	if id, err := strconv.ParseInt(strings.TrimSpace(w.Code), 10, 64); err == nil && id > 0 {
		return id, true
	}
	re := e.Pattern
	if re == nil {
		re = DefaultOrderPattern
	}
	for _, text := range []string{w.Code, w.Content, w.Description} {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}
