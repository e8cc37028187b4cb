package services

import "github.com/go-playground/validator/v10"

var validate = validator.New()

func validEmail(s string) bool {
	return validate.Var(s, "required,email,max=320") == nil
}
