// Package handlers holds the request parsing helpers shared by the domain
// HTTP handlers.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// Page reads limit and offset query parameters.
func Page(c *gin.Context) dbutil.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return dbutil.Page{Limit: limit, Offset: offset}
}

// UUIDParam parses a path parameter as a uuid.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	return ParseUUID(c.Param(name), name)
}

// ParseUUID parses a request value as a uuid.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Invalid.Explain("invalid %s", field).WithField("uuid", field, "must be a uuid")
	}
	return id, nil
}

// Bind decodes a JSON body into req and runs struct validation on it.
func Bind(c *gin.Context, v *validation.Validator, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return validation.FromValidationErrors(verrs)
		}
		return errors.Invalid.Explain("malformed request body").Wrap(err)
	}
	if v == nil {
		return nil
	}
	return v.ValidateStruct(req)
}
