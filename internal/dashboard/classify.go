package dashboard

// ClassifiedColumn pairs a profile with its assigned role.
type ClassifiedColumn struct {
	Column ColumnProfile `json:"column"`
	// Role is the effective role. Hidden columns are RoleIgnored.
	Role Role `json:"role"`
	// Inferred is the role the rules produced before the hidden flag applied;
	// KPI and funnel eligibility use it so hidden columns can still be counted.
	Inferred Role `json:"inferred"`
	// Stage is set when Inferred is RoleFunnelStage and a vocabulary entry matched.
	Stage *StageGroup `json:"stage,omitempty"`
	// Reason names the rule that fired.
	Reason string `json:"reason"`
}

// Classifier assigns semantic roles from declared type, name patterns and sample stats.
type Classifier struct {
	rules *Rules
}

// NewClassifier returns a classifier over rules (DefaultRules when nil).
func NewClassifier(rules *Rules) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify assigns one role per column, preserving input order.
func (c *Classifier) Classify(cols []ColumnProfile) []ClassifiedColumn {
	out := make([]ClassifiedColumn, 0, len(cols))
	for _, col := range cols {
		out = append(out, c.ClassifyColumn(col))
	}
	return out
}

// ClassifyColumn applies the rule chain to a single column; the first rule
// that fires wins.
func (c *Classifier) ClassifyColumn(col ColumnProfile) ClassifiedColumn {
	role, stage, reason := c.infer(col)
	cc := ClassifiedColumn{Column: col, Role: role, Inferred: role, Reason: reason}
	if stage != nil {
		g := *stage
		cc.Stage = &g
	}
	if col.Hidden {
		cc.Role = RoleIgnored
		cc.Reason = "hidden by upstream metadata; " + reason
	}
	return cc
}

func (c *Classifier) infer(col ColumnProfile) (Role, *StageGroup, string) {
	r := c.rules
	if col.SemanticRole.Valid() && col.SemanticRole != RoleIgnored {
		var stage *StageGroup
		if col.SemanticRole == RoleFunnelStage {
			if g, ok := r.StageFor(col.Name); ok {
				stage = &g
			}
		}
		return col.SemanticRole, stage, "semantic role supplied upstream"
	}
	kind := r.TypeKind(col.DeclaredType)
	st := col.Stats

	switch {
	case kind == "time":
		return RoleTime, nil, "declared type " + col.DeclaredType
	case r.IsTimeName(col.Name):
		return RoleTime, nil, "name matches a time pattern"
	case st != nil && st.DateParseRate > r.RateThreshold:
		return RoleTime, nil, "sample values parse as dates"
	}
	if r.IsIdentifierName(col.Name) {
		return RoleIdentifier, nil, "name matches an identifier pattern"
	}
	if g, ok := r.StageFor(col.Name); ok {
		return RoleFunnelStage, &g, "name matches funnel stage " + g.Name
	}
	if kind == "boolean" {
		return RoleFunnelStage, nil, "declared boolean"
	}
	if st != nil && st.BooleanRate > r.RateThreshold {
		return RoleFunnelStage, nil, "sample values are boolean-like"
	}
	if (kind == "text" || kind == "") && r.IsDimensionName(col.Name) {
		return RoleDimension, nil, "name matches dimension vocabulary"
	}
	if kind == "numeric" {
		switch {
		case r.IsCurrencyName(col.Name):
			return RoleMetricCurrency, nil, "numeric with a monetary name"
		case r.IsPercentName(col.Name):
			return RoleMetricPercent, nil, "numeric with a rate name"
		default:
			return RoleMetricNumeric, nil, "numeric"
		}
	}
	return RoleTextDetail, nil, "no rule matched"
}

// isNumericTyped reports whether a classified column carries numeric values.
func (c *Classifier) isNumericTyped(cc ClassifiedColumn) bool {
	return cc.Inferred.IsMetric() || c.rules.TypeKind(cc.Column.DeclaredType) == "numeric"
}
