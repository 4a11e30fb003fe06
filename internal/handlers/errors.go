package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"table_waiter/internal/models"
	"table_waiter/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor maps service errors onto HTTP status codes. Validation is checked
// before conflicts since some item errors are both.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrActionExpired):
		return http.StatusGone
	case errors.Is(err, services.ErrActionNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrNoOpenOrder):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrInvalidDetectionContext),
		errors.Is(err, services.ErrUnknownStatus),
		errors.Is(err, services.ErrInvalidOrderItems),
		errors.Is(err, services.ErrMenuItemUnavailable),
		errors.Is(err, services.ErrArgumentValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, services.ErrActionStateConflict),
		services.IsConflict(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var te *models.TransitionError
	if errors.As(err, &te) {
		body["current_status"] = te.Current
		body["attempted_status"] = te.Attempted
	}
	var me *services.ModificationError
	if errors.As(err, &me) {
		body["current_status"] = me.Status
		body["session_locked"] = me.SessionLocked
	}
	c.JSON(status, body)
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(v), true
}
