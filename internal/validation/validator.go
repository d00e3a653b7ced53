// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/vaultkeeper/internal/apperr"
	"github.com/tomtom215/vaultkeeper/internal/models"
)

// ErrInvalidRequest is the sentinel every validation failure wraps.
var ErrInvalidRequest = apperr.New(apperr.KindValidation, "VALIDATION_ERROR", "validation failed")

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule on one field. Field is the json name.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// RequestValidationError lists every failed rule of one struct.
type RequestValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Error joins the field messages.
func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// Has reports whether field failed rule.
func (ve *RequestValidationError) Has(field, rule string) bool {
	for _, f := range ve.Fields {
		if f.Field == field && f.Rule == rule {
			return true
		}
	}
	return false
}

// AppError classifies the failure as a validation error for the engine's
// result objects. errors.As still reaches the field details.
func (ve *RequestValidationError) AppError() *apperr.Error {
	return apperr.Wrap(ErrInvalidRequest, ve)
}

// GetValidator returns the shared validator with the engine's rules registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report json names so messages match the config and CLI vocabulary
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// Registration only fails for empty tags or nil funcs
		_ = validate.RegisterValidation("tenantid", func(fl validator.FieldLevel) bool {
			return models.ValidTenantID(fl.Field().String())
		})
		_ = validate.RegisterValidation("backuptype", func(fl validator.FieldLevel) bool {
			return models.BackupType(fl.Field().String()).Valid()
		})

		validate.RegisterStructValidation(backupConfigRules, models.BackupConfig{})
	})

	return validate
}

// backupConfigRules: scheduled backups need a retention rule, otherwise
// they accumulate without bound.
func backupConfigRules(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(models.BackupConfig)
	if !ok {
		return
	}
	if cfg.ScheduleFrequency != models.ScheduleManual && !cfg.RetentionEnabled() {
		sl.ReportError(cfg.RetentionCount, "retention_count", "RetentionCount", "retention_required", "")
	}
}

// ValidateStruct returns nil or every failed rule of s.
//
// Example:
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    return verr.AppError()
//	}
func ValidateStruct(s any) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Rule: "unknown", Message: err.Error()}}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return &RequestValidationError{Fields: fields}
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required":           "%s is required",
	"tenantid":           "%s must be 1-128 characters of letters, digits, '.', '_' or '-'",
	"backuptype":         "%s must be one of: FULL INCREMENTAL MANUAL",
	"uuid":               "%s must be a valid UUID",
	"retention_required": "%s or retention_days must be greater than 0 for scheduled backups",
}

// errorMessageWithParam maps validation tags to templates that include param.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch tag {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
