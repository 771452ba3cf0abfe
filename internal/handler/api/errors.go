package api

import (
	"context"
	"errors"

	"PairPulse/internal/domain/models"
	xhttp "PairPulse/pkg/http"
)

// toAppError maps domain errors onto HTTP statuses. The second value is the
// error kind used for metrics, empty for unexpected errors.
func toAppError(err error) (*xhttp.AppError, string) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return xhttp.BadRequestError(ve.Field, ve.Reason).WithError(err), "validation"
	case errors.Is(err, models.ErrValidation):
		return xhttp.BadRequestError("", err.Error()).WithError(err), "validation"
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.UnprocessableError(err.Error()).WithError(err), "insufficient_data"
	case errors.Is(err, models.ErrSingular):
		return xhttp.UnprocessableError(err.Error()).WithError(err), "singular"
	case errors.Is(err, models.ErrRuleNotFound), errors.Is(err, models.ErrSymbolNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err), "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.InternalError("computation timed out").WithError(err), "timeout"
	}
	return xhttp.InternalError("internal error").WithError(err), ""
}
