package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numberLocale names the separators used to read one numeric cell.
type numberLocale struct {
	decimal   rune
	thousands rune // 0 strips every common grouping mark except decimal
}

// localeFor returns opt's separators, or guesses them from raw: when both
// ',' and '.' appear, the last one is the decimal mark ("1.234,56").
func localeFor(raw string, opt Options) numberLocale {
	if opt.DecimalSeparator != 0 {
		return numberLocale{opt.DecimalSeparator, opt.ThousandsSeparator}
	}
	comma, dot := strings.LastIndexByte(raw, ','), strings.LastIndexByte(raw, '.')
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		return numberLocale{',', '.'}
	case comma >= 0 && dot >= 0:
		return numberLocale{'.', ','}
	case comma >= 0:
		return numberLocale{',', 0}
	}
	return numberLocale{'.', 0}
}

// canonical rewrites raw into the form strconv.ParseFloat reads.
func (l numberLocale) canonical(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == l.decimal:
			return '.'
		case l.thousands == 0 && (r == ',' || r == '.' || r == ' '):
			return -1
		case r == l.thousands:
			return -1
		}
		return r
	}, raw)
}

var (
	currencyPrefix = regexp.MustCompile(`^(R\$|US\$|\$|€|£)\s*`)
	numberNoise    = strings.NewReplacer("%", "", "\u00a0", " ")
)

// parseNumeric reads plain, grouped, percent and currency-prefixed numbers
// such as "1.234,56", "R$ 99,90" and "12%".
func parseNumeric(s string, opt Options) (float64, bool) {
	raw := currencyPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	raw = strings.TrimSpace(numberNoise.Replace(raw))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(localeFor(raw, opt).canonical(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// timestampLayouts are tried in order. Day-first wins for ambiguous slash dates.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"01/02/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
}

func isTimestamp(s string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

var boolWords = map[string]bool{
	"1": true, "0": true, "true": true, "false": true, "sim": true, "nao": true, "não": true,
	"s": true, "n": true, "yes": true, "no": true, "y": true, "ok": true, "x": true, "on": true, "off": true,
}

func isBoolWord(v string) bool { return boolWords[strings.ToLower(v)] }

// unitSuffixes recognise "Valor (R$)", "Mass [mg/L]" and "Brix_%" headers.
var unitSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`^(.*?)\s*\(([^)]+)\)$`),
	regexp.MustCompile(`^(.*?)\s*\[([^\]]+)\]$`),
	regexp.MustCompile(`^(.*?)[_\s-]+(mg/L|g/L|ug/L|°[CF]|Brix|%|ppm|ppb)$`),
}

// splitUnits separates a trailing unit from a header.
func splitUnits(name string) (label, unit string) {
	s := strings.TrimSpace(name)
	for _, re := range unitSuffixes {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if label, unit = strings.TrimSpace(m[1]), strings.TrimSpace(m[2]); label != "" && unit != "" {
			return label, unit
		}
	}
	return s, ""
}
