// Пакет validate — проверка входных данных на границе сервиса.
// Построен на go-playground/validator с доменными тегами:
//
//	nopii        — строка не похожа на email или государственный идентификатор
//	sha256hex    — 64 hex-символа в нижнем регистре
//	mediatype    — MIME-тип вида type/subtype[; param=value]
//	jurisdiction — код региона ISO 3166-1 alpha-2 с необязательным субрегионом (US, US-CA)
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailShapeRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	govIDShapeRe   = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$|^\d{9}$`)
	sha256HexRe    = regexp.MustCompile(`^[0-9a-f]{64}$`)
	mediaTypeRe    = regexp.MustCompile(`(?i)^[a-z][a-z0-9!#$&^_-]{0,62}/[a-z0-9][a-z0-9!#$&^_.+-]{0,62}(;\s*.+=.+)*$`)
	jurisdictionRe = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3})?$`)
)

// FieldError — ошибка валидации одного поля.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator — потокобезопасная обёртка над validator.Validate.
type Validator struct {
	v *validator.Validate
}

// New создаёт Validator с зарегистрированными доменными тегами.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Имя поля в ошибках берём из json-тега
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "nopii", func(fl validator.FieldLevel) bool {
		return !ContainsPII(fl.Field().String())
	})
	mustRegister(v, "sha256hex", func(fl validator.FieldLevel) bool {
		return sha256HexRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "mediatype", func(fl validator.FieldLevel) bool {
		return mediaTypeRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "jurisdiction", func(fl validator.FieldLevel) bool {
		return jurisdictionRe.MatchString(fl.Field().String())
	})

	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("регистрация тега %s: %v", tag, err))
	}
}

// Struct проверяет структуру по тегам validate.
// Возвращает *FieldError для первого невалидного поля.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &FieldError{
		Field:   fe.Field(),
		Tag:     fe.Tag(),
		Message: describe(fe),
	}
}

// Email проверяет форму email-адреса.
func (v *Validator) Email(s string) error {
	if err := v.v.Var(s, "required,email"); err != nil {
		return &FieldError{Field: "email", Tag: "email", Message: "некорректный email"}
	}
	return nil
}

// ContainsPII проверяет, похожа ли строка (или любое её слово) на email
// или государственный идентификатор.
func ContainsPII(s string) bool {
	s = strings.TrimSpace(s)
	if emailShapeRe.MatchString(s) || govIDShapeRe.MatchString(s) {
		return true
	}
	for _, token := range strings.Fields(s) {
		if emailShapeRe.MatchString(token) || govIDShapeRe.MatchString(token) {
			return true
		}
	}
	return false
}

// IsSHA256Hex проверяет каноническую форму отпечатка.
func IsSHA256Hex(s string) bool {
	return sha256HexRe.MatchString(s)
}

// describe формирует человекочитаемое сообщение для ошибки поля.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "min":
		return fmt.Sprintf("минимальная длина %s", fe.Param())
	case "max":
		return fmt.Sprintf("максимальная длина %s", fe.Param())
	case "gt":
		return fmt.Sprintf("значение должно быть больше %s", fe.Param())
	case "lte":
		return fmt.Sprintf("значение не должно превышать %s", fe.Param())
	case "nopii":
		return "не должно содержать персональные данные (email, номер документа)"
	case "sha256hex":
		return "ожидается SHA-256 в виде 64 hex-символов в нижнем регистре"
	case "mediatype":
		return "ожидается MIME-тип вида type/subtype"
	case "jurisdiction":
		return "ожидается код региона вида US или US-CA"
	case "email":
		return "некорректный email"
	default:
		return fmt.Sprintf("не прошло проверку %s", fe.Tag())
	}
}
