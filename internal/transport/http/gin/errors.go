package httpgin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/cinebook/internal/domain"
)

// seatsError is implemented by errors that name the seats they are about.
type seatsError interface {
	Seats() []int64
}

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindState:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	kind := domain.KindOf(err)
	status := statusOf(kind)
	resp := ErrorResponse{Code: domain.CodeOf(err), Error: err.Error()}

	// the domain message without the operation prefixes
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Error = de.Message
	}

	var se seatsError
	if errors.As(err, &se) {
		resp.Seats = se.Seats()
	}

	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		if !errors.Is(err, domain.ErrPricingInconsistency) {
			resp.Code = domain.ErrInternal.Code
		}
		resp.Error = "internal error"
	}

	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: domain.ErrValidation.Code, Error: msg})
}
