package dashboard

import (
	"fmt"
	"strings"
)

// Detector score weights.
const (
	scorePlatform     = 20
	scoreIdentifier   = 15
	scoreTime         = 10
	scoreManyStages   = 35
	scoreSomeStages   = 15
	scoreDimensions   = 20
	manyStagesMin     = 4
	someStagesMin     = 2
	dimensionsMin     = 2
	maxDetectionScore = 100
)

// Detection is the result of scoring a dataset against the CRM funnel shape.
type Detection struct {
	IsMatch    bool     `json:"is_match"`
	Confidence int      `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Detector scores column names against the lead/CRM funnel pattern.
type Detector struct {
	rules *Rules
}

// NewDetector returns a detector over rules (DefaultRules when nil).
func NewDetector(rules *Rules) *Detector {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Detector{rules: rules}
}

// Detect scores columns and datasetName. Each column counts toward at most one
// category, checked in time, identifier, stage, dimension order.
func (d *Detector) Detect(columns []string, datasetName string) Detection {
	r := d.rules
	det := Detection{Reasons: []string{}}
	score := 0

	lname := foldName(datasetName)
	for _, kw := range r.PlatformKeywords {
		if kw != "" && strings.Contains(lname, foldName(kw)) {
			score += scorePlatform
			det.Reasons = append(det.Reasons, fmt.Sprintf("dataset name mentions %q", kw))
			break
		}
	}

	var idCol, timeCol string
	var stages, dims []string
	for _, c := range columns {
		switch {
		case r.IsTimeName(c):
			if timeCol == "" {
				timeCol = c
			}
		case r.IsIdentifierName(c):
			if idCol == "" {
				idCol = c
			}
		default:
			if _, ok := r.StageFor(c); ok {
				stages = append(stages, c)
			} else if r.IsDimensionName(c) {
				dims = append(dims, c)
			}
		}
	}
	if idCol != "" {
		score += scoreIdentifier
		det.Reasons = append(det.Reasons, fmt.Sprintf("identifier column %q", idCol))
	}
	if timeCol != "" {
		score += scoreTime
		det.Reasons = append(det.Reasons, fmt.Sprintf("time column %q", timeCol))
	}
	switch n := len(stages); {
	case n >= manyStagesMin:
		score += scoreManyStages
		det.Reasons = append(det.Reasons, fmt.Sprintf("%d funnel stage columns (%s)", n, strings.Join(stages, ", ")))
	case n >= someStagesMin:
		score += scoreSomeStages
		det.Reasons = append(det.Reasons, fmt.Sprintf("%d funnel stage columns (%s)", n, strings.Join(stages, ", ")))
	}
	if len(dims) >= dimensionsMin {
		score += scoreDimensions
		det.Reasons = append(det.Reasons, fmt.Sprintf("%d dimension columns (%s)", len(dims), strings.Join(dims, ", ")))
	}
	if score > maxDetectionScore {
		score = maxDetectionScore
	}
	det.Confidence = score
	det.IsMatch = score >= r.CRMMatchThreshold
	return det
}
