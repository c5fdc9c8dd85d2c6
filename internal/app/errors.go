package app

import (
	"errors"
	"fmt"
	"net/http"

	"docuflex/internal/ai"
	"docuflex/internal/authpw"
	"docuflex/internal/export"
	"docuflex/internal/extract"
	"docuflex/internal/history"
	"docuflex/internal/importer"
	"docuflex/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

const (
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotAFolder         = "NOT_A_FOLDER"
	CodeRootImmutable      = "ROOT_IMMUTABLE"
	CodeNoLinks            = "NO_LINKS"
	CodeBadSheet           = "BAD_SHEET"
	CodeAIUnavailable      = "AI_UNAVAILABLE"
	CodeExportUnavailable  = "EXPORT_UNAVAILABLE"
	CodeImportBusy         = "IMPORT_RUNNING"
	CodeServerError        = "SERVER_ERROR"
)

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, what+" not found", nil)
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, CodeForbidden, message, nil)
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, details)
}

// mapError turns collaborator sentinels into domain errors. Domain errors
// pass through unchanged.
func mapError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound("Item")
	case errors.Is(err, store.ErrUserNotFound):
		return notFound("User")
	case errors.Is(err, store.ErrNotFolder):
		return domainError(http.StatusUnprocessableEntity, CodeNotAFolder, "Target is not a folder", nil)
	case errors.Is(err, store.ErrRoot):
		return domainError(http.StatusConflict, CodeRootImmutable, "The root folder cannot be deleted", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, CodeInvalidCredentials, "Invalid username or password.", nil)
	case errors.Is(err, authpw.ErrMissingCredentials),
		errors.Is(err, authpw.ErrWrongPassword),
		errors.Is(err, authpw.ErrPasswordTooShort),
		errors.Is(err, authpw.ErrPasswordMismatch):
		return validationError(err.Error(), nil)
	case errors.Is(err, extract.ErrNoLinks):
		return domainError(http.StatusUnprocessableEntity, CodeNoLinks, "The sheet does not contain any valid URLs or hyperlinks.", nil)
	case errors.Is(err, extract.ErrUnreadableSheet):
		return domainError(http.StatusUnprocessableEntity, CodeBadSheet, "Could not read the Excel file. Please ensure it is a valid format.", nil)
	case errors.Is(err, importer.ErrNothingToImport):
		return validationError("Nothing to import", nil)
	case errors.Is(err, importer.ErrJobRunning):
		return domainError(http.StatusConflict, CodeImportBusy, "Import is already running", nil)
	case errors.Is(err, importer.ErrJobNotFound):
		return notFound("Import job")
	case errors.Is(err, history.ErrRevisionNotFound):
		return notFound("Revision")
	case errors.Is(err, ai.ErrUnavailable):
		return domainError(http.StatusServiceUnavailable, CodeAIUnavailable, "AI features are not configured", nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		return validationError("Export format must be pdf or docx", nil)
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return domainError(http.StatusServiceUnavailable, CodeExportUnavailable, err.Error(), nil)
	}
	return domainError(http.StatusInternalServerError, CodeServerError, err.Error(), nil)
}
