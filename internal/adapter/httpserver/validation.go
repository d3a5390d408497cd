package httpserver

import (
	"errors"
	"fmt"
	"regexp"

	apperrors "github.com/Scobiform/fedi-follow-force-graph/internal/platform/errors"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var settingKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// requestValidator plugs go-playground/validator into echo's c.Validate.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("settingkey", func(fl validator.FieldLevel) bool {
		return settingKeyPattern.MatchString(fl.Field().String())
	})
	return &requestValidator{validate: v}
}

func (rv *requestValidator) Validate(i any) error {
	if err := rv.validate.Struct(i); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperrors.Validation(fmt.Sprintf("invalid %s", fieldName(fe))).
				With("field", fieldName(fe)).
				With("rule", fe.Tag())
		}
		return apperrors.Validation("invalid request")
	}
	return nil
}

var fieldNames = map[string]string{
	"UserID": "user_id",
	"Query":  "query",
	"Key":    "key",
	"Value":  "value",
}

func fieldName(fe validator.FieldError) string {
	if name, ok := fieldNames[fe.Field()]; ok {
		return name
	}
	return fe.Field()
}

// bindAndValidate binds path, query and body parameters into req and
// validates it.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperrors.Validation("malformed request").With("detail", bindMessage(err))
	}
	return c.Validate(req)
}

func bindMessage(err error) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprint(httpErr.Message)
	}
	return err.Error()
}
