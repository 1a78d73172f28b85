package cmn

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ValidateStruct runs go-playground/validator struct-tag checks (required,
// gte, etc.) over request bodies, translating the first failure into our
// own taxonomy. The hand-rolled validators in validate.go still own domain-specific
// checks (UUID, MIME, format URN, time range); this only covers the
// generic "is this field present/in-range" ambient checks.
func ValidateStruct(v any) *TError {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return NewValidationErr("", err.Error())
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	return NewValidationErr(field, "failed "+fe.Tag()+" validation")
}
