package httpx

import (
	"net/http"

	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

// statusForCode maps an application error code to an HTTP status.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeForeignKey, apperrors.ErrCodePermanent:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeQueueBlocked:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeTransient:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeCanceled, apperrors.ErrCodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// WriteServiceError renders a service-layer error, deriving the status and
// error code from the wrapped AppError when one is present.
func WriteServiceError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteError(w, ErrorParams{
		Code:    statusForCode(code),
		ErrCode: string(code),
		Err:     err,
	})
}
