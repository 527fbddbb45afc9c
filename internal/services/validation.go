package services

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"room-chat-service/internal/apperrors"
)

var nicknamePattern = regexp.MustCompile(`^[a-zA-Z0-9_가-힣]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return nicknamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

type roomNameInput struct {
	Name string `validate:"notblank,min=2,max=100"`
}

type nicknameInput struct {
	Nickname string `validate:"notblank,min=2,max=50,nickname"`
}

type keywordInput struct {
	Keyword string `validate:"notblank,min=1,max=255"`
}

// validateInput runs struct validation and reports the first failing rule as InvalidArgument.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Wrap(apperrors.KindInvalidArgument, err, "invalid input")
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "notblank":
		return apperrors.InvalidArgument("%s must not be blank", field)
	case "min":
		return apperrors.InvalidArgument("%s must be at least %s characters", field, fe.Param())
	case "max":
		return apperrors.InvalidArgument("%s must be at most %s characters", field, fe.Param())
	case "nickname":
		return apperrors.InvalidArgument("%s may contain only letters, digits, underscores and Hangul", field)
	default:
		return apperrors.InvalidArgument("%s failed %s validation", field, fe.Tag())
	}
}
