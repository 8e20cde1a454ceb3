// Package validator checks incoming records against the configured length
// limits and returns per-field error details.
package validator

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

type Validator struct {
	limits config.IngestionConfig
}

func New(limits config.IngestionConfig) *Validator {
	return &Validator{limits: limits}
}

// ValidateRecord requires a key with at least one word and enforces the
// key and value length limits, counted in runes.
func (v *Validator) ValidateRecord(req *ingestion.RecordRequest) error {
	errs := make(map[string]string)
	v.check(req, "", errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateBatch validates every record; field names carry the record's
// position, e.g. "records[2].key".
func (v *Validator) ValidateBatch(reqs []ingestion.RecordRequest) error {
	if len(reqs) == 0 {
		return &ValidationError{Fields: map[string]string{"records": "at least one record is required"}}
	}
	if v.limits.MaxBatchSize > 0 && len(reqs) > v.limits.MaxBatchSize {
		return apperrors.Newf(apperrors.ErrBatchTooLarge, http.StatusRequestEntityTooLarge,
			"batch of %d records exceeds the limit of %d", len(reqs), v.limits.MaxBatchSize)
	}
	errs := make(map[string]string)
	for i := range reqs {
		v.check(&reqs[i], fmt.Sprintf("records[%d].", i), errs)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func (v *Validator) check(req *ingestion.RecordRequest, prefix string, errs map[string]string) {
	switch {
	case !utf8.ValidString(req.Key):
		errs[prefix+"key"] = "key must be valid UTF-8"
	case tokenizer.IsBlank(req.Key):
		errs[prefix+"key"] = "key is required"
	case v.limits.MaxKeyLength > 0 && utf8.RuneCountInString(req.Key) > v.limits.MaxKeyLength:
		errs[prefix+"key"] = fmt.Sprintf("key must be at most %d characters", v.limits.MaxKeyLength)
	}
	switch {
	case !utf8.ValidString(req.Value):
		errs[prefix+"value"] = "value must be valid UTF-8"
	case v.limits.MaxValueLength > 0 && utf8.RuneCountInString(req.Value) > v.limits.MaxValueLength:
		errs[prefix+"value"] = fmt.Sprintf("value must be at most %d characters", v.limits.MaxValueLength)
	}
}
