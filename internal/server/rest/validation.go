package rest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// registerValidators installs the custom tags used by request DTOs on gin's
// shared validator engine.
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = errors.New("unexpected validator engine")
			return
		}
		if err := v.RegisterValidation("notblank", validateNotBlank); err != nil {
			validatorsErr = err
			return
		}
		validatorsErr = v.RegisterValidation("tokenstatus", validateStatus)
	})
	return validatorsErr
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateStatus accepts an empty value or a known status.
func validateStatus(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, ok := models.ParseStatus(s)
	return ok
}

// bindError turns a binding failure into an ErrInvalidRequest naming the
// offending fields.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", common.ErrInvalidRequest, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
}
