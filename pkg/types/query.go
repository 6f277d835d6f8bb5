package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Query is a single normalized request unit fed into the pipeline.
// Category and Location are non-empty after validation.
type Query struct {
	Category     string `json:"category" validate:"required,max=64"`
	Location     string `json:"location" validate:"required,max=128"`
	DateWindow   string `json:"dateWindow,omitempty" validate:"omitempty,max=64"`
	Limit        int    `json:"limit,omitempty" validate:"gte=0,lte=200"`
	CustomPrompt string `json:"customPrompt,omitempty" validate:"omitempty,max=2000"`
}

// CollectOptions tunes a single Collect call.
type CollectOptions struct {
	Limit         int     `json:"limit,omitempty"`
	MinConfidence float64 `json:"minConfidence,omitempty"`
	MaxTokens     int     `json:"maxTokens,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
}

// Fingerprint returns a stable string for cache-key construction.
func (o CollectOptions) Fingerprint() string {
	return fmt.Sprintf("l=%d;mc=%.2f;mt=%d;t=%.2f", o.Limit, o.MinConfidence, o.MaxTokens, o.Temperature)
}

// ProviderStats reports one provider's contribution to a response.
type ProviderStats struct {
	Count            int     `json:"count"`
	ProcessingTimeMs int64   `json:"processingTime,omitempty"`
	Error            string  `json:"error,omitempty"`
	EstimatedCostUSD float64 `json:"estimatedCost,omitempty"`
}

// CollectMetadata carries diagnostics alongside a response.
type CollectMetadata struct {
	Tier              string                   `json:"tier,omitempty"` // Tier that satisfied the result floor
	TiersTried        []string                 `json:"tiersTried,omitempty"`
	SourceStats       map[string]ProviderStats `json:"sourceStats,omitempty"`
	DuplicatesRemoved int                      `json:"duplicatesRemoved"`
	Dropped           int                      `json:"dropped"` // Candidates removed by the rule engine
	CacheHit          bool                     `json:"cacheHit"`
	EstimatedCostUSD  float64                  `json:"estimatedCost"`
}

// CollectResponse is the pipeline's user-visible result envelope.
// Failures are always a well-formed response object, never a bare
// error escaping to the caller.
type CollectResponse struct {
	Success          bool             `json:"success"`
	Events           []CanonicalEvent `json:"events"`
	Count            int              `json:"count"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	Metadata         CollectMetadata  `json:"metadata"`
	Error            string           `json:"error,omitempty"`
	Violations       []string         `json:"violations,omitempty"` // Validation failures, one per field
}

// validate is shared across Query values; the validator is stateless
// after construction.
var validate = validator.New()

// Validate checks the query and returns a list of specific violations,
// one per failing field. An empty slice means the query is valid.
func (q Query) Validate() []string {
	q.Category = strings.TrimSpace(q.Category)
	q.Location = strings.TrimSpace(q.Location)

	var violations []string
	if err := validate.Struct(q); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []string{err.Error()}
		}
		for _, fe := range errs {
			violations = append(violations, describeViolation(fe))
		}
	}
	if q.Category != "" && !IsValidCategory(strings.ToLower(q.Category)) {
		violations = append(violations, fmt.Sprintf("category: %q is not a recognized category (valid: %s)",
			q.Category, strings.Join(ValidCategories, ", ")))
	}
	return violations
}

// describeViolation flattens one validator field error into a
// human-readable message.
func describeViolation(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: must not be empty", field)
	case "max":
		return fmt.Sprintf("%s: must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s: must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s: must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s validation", field, fe.Tag())
	}
}
