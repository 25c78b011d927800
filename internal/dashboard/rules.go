package dashboard

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning constants. These are uncalibrated starting points.
const (
	// DefaultCRMMatchThreshold is the minimum detector score for a CRM match.
	DefaultCRMMatchThreshold = 60
	// DefaultRateThreshold is the sample rate above which boolean-likeness or
	// date-parseability decides a column's role.
	DefaultRateThreshold = 0.3
)

// StageGroup is one canonical funnel position and the name tokens that map to it.
type StageGroup struct {
	Name   string   `yaml:"name"`
	Rank   int      `yaml:"rank"`
	Tokens []string `yaml:"tokens"`
	// Lost marks stages where a higher count is worse.
	Lost bool `yaml:"lost,omitempty"`
	// Won marks the conversion stage charted on its own.
	Won bool `yaml:"won,omitempty"`
}

// Rules holds the lookup tables driving classification, resolution and detection.
// Patterns are Go regular expressions matched against lower-cased, accent-folded names.
type Rules struct {
	TimePatterns       []string     `yaml:"time_patterns"`
	TimePriority       []string     `yaml:"time_priority"`
	IdentifierPatterns []string     `yaml:"identifier_patterns"`
	Stages             []StageGroup `yaml:"stages"`
	// StageExclusions are tokens that disqualify a name from the stage vocabulary
	// (e.g. "venda_total" is an amount, not a stage flag).
	StageExclusions  []string `yaml:"stage_exclusions"`
	DimensionTokens  []string `yaml:"dimension_tokens"`
	CurrencyTokens   []string `yaml:"currency_tokens"`
	PercentTokens    []string `yaml:"percent_tokens"`
	PlatformKeywords []string `yaml:"platform_keywords"`
	RolePrefixes     []string `yaml:"role_prefixes"`
	TruthyValues     []string `yaml:"truthy_values"`

	NumericTypes []string `yaml:"numeric_types"`
	TimeTypes    []string `yaml:"time_types"`
	TextTypes    []string `yaml:"text_types"`
	BooleanTypes []string `yaml:"boolean_types"`

	CRMMatchThreshold int     `yaml:"crm_match_threshold"`
	RateThreshold     float64 `yaml:"rate_threshold"`

	timeRe  []*regexp.Regexp
	idRe    []*regexp.Regexp
	truthy  map[string]bool
	stageOf map[string]StageGroup
}

// DefaultRules returns the built-in tables (Portuguese and English CRM vocabulary).
func DefaultRules() *Rules {
	r := &Rules{
		TimePatterns: []string{
			`^(created_at|inserted_at|updated_at|data|dia|date|datetime|timestamp|dt|mes|month)$`,
			`^(data|dt|date|dia)_`,
			`_(at|date|data|dt|em|dia)$`,
		},
		TimePriority: []string{"created_at", "data", "dia", "inserted_at", "date", "data_entrada", "updated_at"},
		IdentifierPatterns: []string{
			`^id$`, `_id$`, `^id_`, `^idd$`, `^lead_?id$`, `^uuid$`,
		},
		Stages: []StageGroup{
			{Name: "entry", Rank: 1, Tokens: []string{"entrada", "entradas", "lead", "leads", "novo", "new", "entry", "inbound"}},
			{Name: "qualified", Rank: 2, Tokens: []string{"qualificado", "qualificada", "qualificacao", "qualified", "mql", "sql"}},
			{Name: "scheduled", Rank: 3, Tokens: []string{"agendado", "agendada", "agendamento", "reuniao", "scheduled", "meeting", "booked"}},
			{Name: "completed", Rank: 4, Tokens: []string{"compareceu", "realizado", "realizada", "atendido", "proposta", "completed", "attended", "showed", "proposal"}},
			{Name: "won", Rank: 5, Won: true, Tokens: []string{"venda", "vendido", "ganho", "fechado", "fechamento", "won", "sale", "closed", "converted"}},
			{Name: "lost", Rank: 6, Lost: true, Tokens: []string{"perdido", "perda", "lost", "churn", "descartado"}},
		},
		StageExclusions:  []string{"total", "valor", "qtd", "quantidade", "count", "sum", "amount", "media", "avg", "pct", "taxa", "rate", "percent", "value", "data", "date", "motivo", "reason", "id", "nome", "name", "email", "telefone", "phone"},
		DimensionTokens:  []string{"unidade", "unit", "vendedor", "vendedora", "salesperson", "seller", "canal", "channel", "origem", "origin", "source", "campanha", "campaign", "cidade", "city", "estado", "state", "regiao", "region", "produto", "product", "segmento", "segment", "categoria", "category", "responsavel", "owner", "equipe", "team", "loja", "store"},
		CurrencyTokens:   []string{"valor", "preco", "receita", "faturamento", "ticket", "custo", "venda", "vendas", "revenue", "amount", "price", "cost", "brl", "usd", "reais", "mrr", "arr"},
		PercentTokens:    []string{"pct", "percent", "percentual", "porcentagem", "taxa", "rate", "ratio", "conversao", "conversion", "margem", "margin"},
		PlatformKeywords: []string{"kommo", "amocrm", "hubspot", "pipedrive", "rdstation", "rd_station", "salesforce", "crm", "leads", "funil", "funnel"},
		RolePrefixes:     []string{"st_", "flag_", "is_", "has_", "col_"},
		TruthyValues:     []string{"1", "true", "sim", "s", "yes", "y", "ok", "x", "on"},

		NumericTypes: []string{"numeric", "number", "integer", "int", "int2", "int4", "int8", "bigint", "smallint", "float", "float4", "float8", "double", "double precision", "decimal", "real", "money"},
		TimeTypes:    []string{"date", "timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone", "datetime", "time"},
		TextTypes:    []string{"text", "string", "varchar", "character varying", "char", "character", "categorical", "enum", "citext"},
		BooleanTypes: []string{"boolean", "bool"},

		CRMMatchThreshold: DefaultCRMMatchThreshold,
		RateThreshold:     DefaultRateThreshold,
	}
	if err := r.compile(); err != nil {
		panic(fmt.Sprintf("default rules: %v", err))
	}
	return r
}

// LoadRules reads a YAML rules file. Tables present in the file replace the
// defaults; omitted tables keep their default values.
func LoadRules(path string) (*Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(b)
}

// ParseRules decodes YAML rules on top of DefaultRules.
func ParseRules(data []byte) (*Rules, error) {
	r := DefaultRules()
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if r.CRMMatchThreshold <= 0 {
		r.CRMMatchThreshold = DefaultCRMMatchThreshold
	}
	if r.RateThreshold <= 0 || r.RateThreshold > 1 {
		r.RateThreshold = DefaultRateThreshold
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// YAML renders the effective rules.
func (r *Rules) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

func (r *Rules) compile() error {
	r.timeRe = r.timeRe[:0]
	for _, p := range r.TimePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("time pattern %q: %w", p, err)
		}
		r.timeRe = append(r.timeRe, re)
	}
	r.idRe = r.idRe[:0]
	for _, p := range r.IdentifierPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("identifier pattern %q: %w", p, err)
		}
		r.idRe = append(r.idRe, re)
	}
	r.truthy = make(map[string]bool, len(r.TruthyValues))
	for _, v := range r.TruthyValues {
		r.truthy[strings.ToLower(strings.TrimSpace(v))] = true
	}
	r.stageOf = make(map[string]StageGroup)
	for _, g := range r.Stages {
		for _, t := range g.Tokens {
			r.stageOf[foldName(t)] = g
		}
	}
	return nil
}

// IsTimeName reports whether name matches a time pattern.
func (r *Rules) IsTimeName(name string) bool {
	return matchAny(r.timeRe, foldName(name))
}

// IsIdentifierName reports whether name matches an identifier pattern.
func (r *Rules) IsIdentifierName(name string) bool {
	return matchAny(r.idRe, foldName(name))
}

// StageFor returns the stage group whose vocabulary matches name.
func (r *Rules) StageFor(name string) (StageGroup, bool) {
	toks := nameTokens(r.stripPrefixes(foldName(name)))
	if len(toks) == 0 {
		return StageGroup{}, false
	}
	for _, t := range toks {
		if containsStr(r.StageExclusions, t) {
			return StageGroup{}, false
		}
	}
	for _, t := range toks {
		if g, ok := r.stageOf[t]; ok {
			return g, true
		}
	}
	return StageGroup{}, false
}

// IsDimensionName reports whether name carries a dimension token.
func (r *Rules) IsDimensionName(name string) bool {
	return hasAnyToken(name, r.DimensionTokens)
}

// IsCurrencyName reports whether name implies money.
func (r *Rules) IsCurrencyName(name string) bool {
	return hasAnyToken(name, r.CurrencyTokens)
}

// IsPercentName reports whether name implies a rate or percentage.
func (r *Rules) IsPercentName(name string) bool {
	return strings.Contains(name, "%") || hasAnyToken(name, r.PercentTokens)
}

// TypeKind buckets a declared type into numeric, time, text, boolean or "".
func (r *Rules) TypeKind(declared string) string {
	d := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(d, '('); i > 0 {
		d = strings.TrimSpace(d[:i])
	}
	switch {
	case d == "":
		return ""
	case containsStr(r.NumericTypes, d):
		return "numeric"
	case containsStr(r.TimeTypes, d):
		return "time"
	case containsStr(r.BooleanTypes, d):
		return "boolean"
	case containsStr(r.TextTypes, d):
		return "text"
	}
	return ""
}

func (r *Rules) stripPrefixes(s string) string {
	for _, p := range r.RolePrefixes {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			return s[len(p):]
		}
	}
	return s
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasAnyToken(name string, vocab []string) bool {
	toks := nameTokens(foldName(name))
	for _, t := range toks {
		for _, v := range vocab {
			if t == foldName(v) {
				return true
			}
		}
	}
	return false
}

// nameTokens splits a folded name on separators.
func nameTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.' || r == '/' || r == '\t'
	})
}
