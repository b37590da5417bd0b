package http

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/encorelab/SCORE/internal/domain/run"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// "runcode" validates the human registration code format.
		_ = v.RegisterValidation("runcode", validRuncode)
	}
}

func validRuncode(fl validator.FieldLevel) bool {
	return run.Runcode(fl.Field().String()).IsValid()
}
