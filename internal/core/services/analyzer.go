package services

import (
	"strings"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
)

// conditionRule maps a condition term to its categorical facts. Rules live in a
// fixed-order slice, not a map, so the analyzer output is identical across runs
// and processes for the same input.
type conditionRule struct {
	term       string
	code       string
	category   domain.Category
	contagious bool
	severity   domain.Severity
}

var conditionRules = []conditionRule{
	{"tuberculosis", "1B10", domain.CategoryRespiratory, true, domain.SeverityHigh},
	{"covid", "RA01", domain.CategoryRespiratory, true, domain.SeverityHigh},
	{"influenza", "1E30", domain.CategoryRespiratory, true, domain.SeverityModerate},
	{"flu", "1E30", domain.CategoryRespiratory, true, domain.SeverityModerate},
	{"pneumonia", "CA40", domain.CategoryRespiratory, true, domain.SeverityHigh},
	{"measles", "1F03", domain.CategoryInfectious, true, domain.SeverityHigh},
	{"hepatitis", "1E50", domain.CategoryInfectious, true, domain.SeverityHigh},
	{"chickenpox", "1E90", domain.CategoryInfectious, true, domain.SeverityModerate},
	{"asthma", "CA23", domain.CategoryRespiratory, false, domain.SeverityModerate},
	{"bronchitis", "CA20", domain.CategoryRespiratory, false, domain.SeverityLow},
	{"heart attack", "BA41", domain.CategoryCardiovascular, false, domain.SeverityHigh},
	{"myocardial infarction", "BA41", domain.CategoryCardiovascular, false, domain.SeverityHigh},
	{"hypertension", "BA00", domain.CategoryCardiovascular, false, domain.SeverityModerate},
	{"arrhythmia", "BC65", domain.CategoryCardiovascular, false, domain.SeverityModerate},
	{"stroke", "8B11", domain.CategoryNeurological, false, domain.SeverityHigh},
	{"epilepsy", "8A60", domain.CategoryNeurological, false, domain.SeverityModerate},
	{"migraine", "8A80", domain.CategoryNeurological, false, domain.SeverityLow},
	{"diabetes", "5A11", domain.CategoryEndocrine, false, domain.SeverityModerate},
	{"thyroid", "5A00", domain.CategoryEndocrine, false, domain.SeverityLow},
	{"arthritis", "FA20", domain.CategoryMusculoskeletal, false, domain.SeverityLow},
	{"osteoporosis", "FB83", domain.CategoryMusculoskeletal, false, domain.SeverityModerate},
	{"fracture", "NC72", domain.CategoryMusculoskeletal, false, domain.SeverityModerate},
}

var severityRank = map[domain.Severity]int{
	domain.SeverityLow:      0,
	domain.SeverityModerate: 1,
	domain.SeverityHigh:     2,
}

type dictionaryAnalyzer struct{}

// NewAnalyzer returns the dictionary-backed record text analyzer.
func NewAnalyzer() ports.Analyzer {
	return dictionaryAnalyzer{}
}

// Analyze matches the text against the rule table and folds the hits into one
// set of facts: contagious if any hit is, the category of the first hit, the
// highest severity seen. Text with no hit maps to general and low.
func (dictionaryAnalyzer) Analyze(text string) domain.Facts {
	lowered := strings.ToLower(text)

	facts := domain.Facts{
		Category: domain.CategoryGeneral,
		Severity: domain.SeverityLow,
	}
	seen := map[string]bool{}
	matched := false

	for _, rule := range conditionRules {
		if !strings.Contains(lowered, rule.term) {
			continue
		}
		if !matched {
			facts.Category = rule.category
			matched = true
		}
		if rule.contagious {
			facts.Contagious = true
		}
		if severityRank[rule.severity] > severityRank[facts.Severity] {
			facts.Severity = rule.severity
		}
		if !seen[rule.code] {
			facts.Codes = append(facts.Codes, rule.code)
			seen[rule.code] = true
		}
	}
	return facts
}
