package dashboard

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchKind tells which resolution step found a column.
type MatchKind string

const (
	MatchNone            MatchKind = ""
	MatchExact           MatchKind = "exact"
	MatchCaseInsensitive MatchKind = "case_insensitive"
	MatchNormalized      MatchKind = "normalized"
	MatchSubstring       MatchKind = "substring"
)

// Resolver matches requested column names against the real column set.
// The zero value strips no prefixes; use NewResolver for the configured ones.
type Resolver struct {
	prefixes []string
}

// NewResolver returns a resolver using the role prefixes from rules.
func NewResolver(rules *Rules) *Resolver {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Resolver{prefixes: rules.RolePrefixes}
}

// Resolve returns the available column matching requested, trying exact,
// case-insensitive, normalized and substring matches in that order. The first
// available column matching at the earliest step wins.
func (r *Resolver) Resolve(requested string, available []string) (string, bool) {
	name, kind := r.ResolveKind(requested, available)
	return name, kind != MatchNone
}

// ResolveKind is Resolve that also reports the matching step.
func (r *Resolver) ResolveKind(requested string, available []string) (string, MatchKind) {
	req := strings.TrimSpace(requested)
	if req == "" || len(available) == 0 {
		return "", MatchNone
	}
	for _, c := range available {
		if c == requested || c == req {
			return c, MatchExact
		}
	}
	for _, c := range available {
		if strings.EqualFold(c, req) {
			return c, MatchCaseInsensitive
		}
	}
	nreq := r.normalize(req)
	if nreq != "" {
		for _, c := range available {
			if r.normalize(c) == nreq {
				return c, MatchNormalized
			}
		}
	}
	lreq := strings.ToLower(req)
	for _, c := range available {
		lc := strings.ToLower(c)
		if lc == "" {
			continue
		}
		if strings.Contains(lc, lreq) || strings.Contains(lreq, lc) {
			return c, MatchSubstring
		}
	}
	return "", MatchNone
}

// normalize lower-cases name, folds diacritics, strips one known role prefix
// and removes separators.
func (r *Resolver) normalize(name string) string {
	s := foldName(name)
	for _, p := range r.prefixes {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			s = s[len(p):]
			break
		}
	}
	return strings.Map(func(ch rune) rune {
		if ch == '_' || ch == '-' || unicode.IsSpace(ch) {
			return -1
		}
		return ch
	}, s)
}

// Resolve matches requested against available with the default role prefixes.
func Resolve(requested string, available []string) (string, bool) {
	return defaultResolver.Resolve(requested, available)
}

var defaultResolver = NewResolver(DefaultRules())

// foldName lower-cases s, trims it and strips combining marks
// ("Qualificação" -> "qualificacao").
func foldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if isASCII(s) {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
