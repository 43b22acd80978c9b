package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/repository"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{repository.ErrNotFound, http.StatusNotFound},
	{repository.ErrConflict, http.StatusConflict},
	{repository.ErrDuplicateEntry, http.StatusConflict},
	{repository.ErrCounterOutOfRange, http.StatusConflict},
	{service.ErrUserAlreadyExists, http.StatusConflict},
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrTokenInvalid, http.StatusUnauthorized},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrUserInactive, http.StatusForbidden},
	{service.ErrPlateNotFound, http.StatusUnprocessableEntity},
	{service.ErrLPRDisabled, http.StatusServiceUnavailable},
}

// respondError maps service and repository errors to a status code. Anything
// unrecognised is logged and reported as a 500 without details.
func respondError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": err.Error()})
			return
		}
	}
	_ = c.Error(err)
	logging.Error(c.Request.Context(), "request failed", logging.Err(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// respondBindError renders validator failures field by field.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldName(fe)] = describe(fe)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gtfield":
		return "must be after " + fe.Param()
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}
