package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
)

// Category is the fixed vocabulary of condition categories the analyzer may emit.
type Category string

// Condition categories
const (
	CategoryRespiratory     Category = "respiratory"
	CategoryCardiovascular  Category = "cardiovascular"
	CategoryInfectious      Category = "infectious"
	CategoryNeurological    Category = "neurological"
	CategoryEndocrine       Category = "endocrine"
	CategoryMusculoskeletal Category = "musculoskeletal"
	CategoryGeneral         Category = "general"
)

// Severity grades
type Severity string

// Severity values
const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Facts is the categorical output of the record text analyzer. Same input text
// always yields the same Facts.
type Facts struct {
	Contagious bool     `json:"contagious"`
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Codes      []string `json:"codes,omitempty"`
}

// Proof kinds
const (
	ProofTypeContagious = "contagious-status"
	ProofTypeCategory   = "condition-category"
	ProofTypeSeverity   = "condition-severity"
)

// ProofRecord binds a disclosable categorical statement about a subject to a
// one-way commitment over the source text and a short verification code.
// Knowledge of the code never allows reconstructing the commitment preimage.
type ProofRecord struct {
	ID               uuid.UUID    `json:"id"`
	SubjectDID       string       `json:"subjectDid"`
	ProofType        string       `json:"proofType"`
	PublicStatement  string       `json:"publicStatement"`
	SecretCommitment string       `json:"-"`
	ProofData        pgtype.JSONB `json:"-"`
	VerificationCode string       `json:"verificationCode"`
	Category         Category     `json:"category"`
	Contagious       bool         `json:"contagious"`
	ExpiresAt        time.Time    `json:"expiresAt"`
	Active           bool         `json:"active"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// proofData is the JSONB sidecar persisted with a proof row. Category and
// contagious travel here rather than in their own columns, so they must survive
// the round trip or verification answers silently degrade.
type proofData struct {
	Salt       string   `json:"salt"`
	Severity   Severity `json:"severity"`
	Codes      []string `json:"codes,omitempty"`
	Category   Category `json:"category"`
	Contagious bool     `json:"contagious"`
}

// SealProofData packs the commitment salt and the analyzer facts into the JSONB
// sidecar, including the record's category and contagious flag.
func (r *ProofRecord) SealProofData(salt string, severity Severity, codes []string) error {
	return r.ProofData.Set(proofData{
		Salt:       salt,
		Severity:   severity,
		Codes:      codes,
		Category:   r.Category,
		Contagious: r.Contagious,
	})
}

// UnsealProofData lifts category and contagious back onto the record after a
// relational read.
func (r *ProofRecord) UnsealProofData() error {
	var data proofData
	if err := r.ProofData.AssignTo(&data); err != nil {
		return err
	}
	r.Category = data.Category
	r.Contagious = data.Contagious
	return nil
}

// CodeVerification is the per-code result of verifying a proof code. The online
// and offline verification paths both produce this shape and must agree on it
// bit for bit for the same input.
type CodeVerification struct {
	Valid      bool     `json:"valid"`
	Code       string   `json:"code"`
	Statement  string   `json:"statement,omitempty"`
	Category   Category `json:"category,omitempty"`
	Contagious bool     `json:"contagious"`
	Reason     string   `json:"reason,omitempty"`
}

// BatchVerification aggregates several code verifications into one pass result.
type BatchVerification struct {
	Results    []CodeVerification `json:"results"`
	AllValid   bool               `json:"allValid"`
	Categories []Category         `json:"categories"`
}
