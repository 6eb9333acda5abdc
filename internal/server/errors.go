package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"researchtools/internal/auth"
	apperrors "researchtools/internal/errors"
	"researchtools/internal/framework"
	"researchtools/internal/inference"
	"researchtools/internal/research"
	"researchtools/internal/store"
)

// toAppError maps domain errors onto the API error envelope. Unknown errors
// become internal errors.
func toAppError(err error) *apperrors.AppError {
	var (
		appErr    *apperrors.AppError
		choiceErr *framework.ChoiceError
		fieldErr  *framework.ValidationError
		inputErr  *research.InputError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &choiceErr):
		return apperrors.NewInvalidChoiceError(choiceErr.Field, choiceErr.Value, choiceErr.Allowed)
	case errors.As(err, &fieldErr):
		return apperrors.NewValidationError(fieldErr.Error(), map[string]interface{}{"field": fieldErr.Field})
	case errors.As(err, &inputErr):
		return apperrors.NewValidationError(inputErr.Error(), map[string]interface{}{"field": inputErr.Field})
	case errors.Is(err, framework.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError("resource")
	case errors.Is(err, framework.ErrWrongType), errors.Is(err, framework.ErrUnsupportedFramework):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, framework.ErrDataCorrupt):
		return apperrors.NewAppError(apperrors.ErrorTypeInternal, "DATA_CORRUPT", "Stored framework data is corrupt", err)
	case errors.Is(err, framework.ErrExportNotRendered):
		return apperrors.NewNotImplementedError(err.Error())
	case errors.Is(err, inference.ErrUnavailable):
		unavailable := apperrors.NewExternalError("ai", err)
		unavailable.StatusCode = http.StatusServiceUnavailable
		return unavailable
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperrors.NewAuthenticationError(auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrInactiveUser):
		return apperrors.NewAuthorizationError("Inactive user")
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, store.ErrConflict):
		return apperrors.NewAppError(apperrors.ErrorTypeConflict, "ALREADY_EXISTS", err.Error(), nil)
	case errors.Is(err, research.ErrJobFinished):
		return apperrors.NewAppError(apperrors.ErrorTypeConflict, "JOB_FINISHED", err.Error(), nil)
	}
	return apperrors.NewInternalError("Unexpected error occurred", err)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if u, ok := auth.GetUserFromContext(r.Context()); ok && appErr.UserID == "" {
		appErr = appErr.WithUserID(u.ID)
	}
	s.errors.Handle(w, appErr)
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("Invalid request body: %v", err), nil)
	}
	return nil
}
