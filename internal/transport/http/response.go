package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	apierrors "valuepulse/internal/errors"
	"valuepulse/internal/operations"
	"valuepulse/internal/services"
)

// StatusSuccess marks a successful response envelope
const StatusSuccess = "success"

// Response is the envelope for successful responses
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
	Count  *int        `json:"count,omitempty"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, Response{Status: StatusSuccess, Data: data})
}

func respondList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	render.JSON(w, r, Response{Status: StatusSuccess, Data: items, Count: &n})
}

// toAPIError maps service errors to API errors. Unknown errors pass
// through and become 500s.
func toAPIError(err error) error {
	var (
		apiErr *apierrors.APIError
		opErr  *operations.OperationError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, services.ErrOperationNotFound):
		return apierrors.ErrOperationNotFound.WithDetails(err.Error())
	case errors.Is(err, services.ErrOperationCompleted):
		return apierrors.ErrOperationFinished
	case errors.Is(err, services.ErrUnknownPipeline):
		return apierrors.ErrUnknownPipeline.WithDetails(err.Error())
	case errors.Is(err, services.ErrPlayerNotFound):
		return apierrors.ErrPlayerNotFound.WithDetails(err.Error())
	case errors.Is(err, services.ErrPredictionsUnavailable):
		return apierrors.ErrPredictionsUnavailable
	case errors.Is(err, services.ErrInvalidPredictions):
		return apierrors.ErrPredictionsInvalid
	case errors.Is(err, services.ErrInvalidInput):
		return apierrors.InvalidRequestWithError(err)
	case errors.Is(err, services.ErrServiceUnavailable), errors.Is(err, operations.ErrManagerClosed):
		return apierrors.ErrServiceUnavailable
	case errors.As(err, &opErr) && opErr.Type == operations.ErrorTypeValidation:
		return apierrors.InvalidRequestWithError(opErr)
	default:
		return err
	}
}
