package config

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/pv/temperature-notifier-go/internal/engine"
)

// FieldError описывает одну ошибку проверки с путём поля в YAML (notification.reenable.cooldown_minutes).
type FieldError struct {
	Field   string
	Message string
}

// ValidationError собирает все ошибки проверки конфигурации.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			msgs = append(msgs, f.Message)
			continue
		}
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "config: invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInvalid).
func (e *ValidationError) Unwrap() error { return ErrInvalid }

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

var sourceSchemes = []string{"influxdb://", "influx://", "clickhouse://", "ch://", "postgres://", "postgresql://", "memstore://"}

var stateSchemes = []string{"file://", "sqlite://", "postgres://", "postgresql://", "redis://", "rediss://", "memory://"}

func getValidator() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32 {
				return true
			}
			x := f.Float()
			return !math.IsNaN(x) && !math.IsInf(x, 0)
		})
		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			_, err := engine.ParseTimeOfDay(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("source_dsn", func(fl validator.FieldLevel) bool {
			return hasScheme(fl.Field().String(), sourceSchemes)
		})
		_ = v.RegisterValidation("state_dsn", func(fl validator.FieldLevel) bool {
			dsn := fl.Field().String()
			if !strings.Contains(dsn, "://") {
				return dsn != ""
			}
			return hasScheme(dsn, stateSchemes)
		})
		v.RegisterStructValidation(armingRequired, Arming{})

		registerMessage(v, trans, "finite", "{0} must be a finite number")
		registerMessage(v, trans, "hhmm", "{0} must be a time of day in HH:MM format")
		registerMessage(v, trans, "source_dsn", "{0} must start with one of influxdb://, clickhouse://, postgres://, memstore://")
		registerMessage(v, trans, "state_dsn", "{0} must be a file path or a sqlite://, postgres://, redis://, memory:// DSN")
		registerMessage(v, trans, "arming_condition", "arming needs temperature_delta or time")
		registerMessage(v, trans, "required_if", "{0} is required for this notifier type")

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

func hasScheme(dsn string, schemes []string) bool {
	lower := strings.ToLower(dsn)
	for _, s := range schemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// armingRequired требует хотя бы одно условие взвода.
func armingRequired(sl validator.StructLevel) {
	a := sl.Current().Interface().(Arming)
	if a.TemperatureDelta == nil && a.Time == "" {
		sl.ReportError(a.Time, "time", "Time", "arming_condition", "")
	}
}

func registerMessage(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field())
			return msg
		},
	)
}

// fieldPath убирает имя корневой структуры: Config.notification.reenable → notification.reenable.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

// Validate проверяет конфигурацию; ошибка имеет тип *ValidationError.
func (c *Config) Validate() error {
	return validateStruct(c)
}

func validateStruct(s any) error {
	svc := getValidator()
	err := svc.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Message: err.Error()}}}
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe),
			Message: fe.Translate(svc.translator),
		})
	}
	return out
}
