package dialer

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/die-net/socksify/internal/socks"
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
}

// validationError turns validator output into one line per offending field.
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	out := make([]error, 0, len(errs))
	for _, fe := range errs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, fmt.Errorf("field %q fails %q (value %v)", field, fe.ActualTag(), redact(fe)))
	}
	return errors.Join(out...)
}

func redact(fe validator.FieldError) any {
	if fe.Field() == "password" {
		return "<redacted>"
	}
	return fe.Value()
}

func validateProxy(p socks.Proxy) error {
	if err := validate.Struct(p); err != nil {
		return validationError(err)
	}
	return nil
}

func validateDestination(d socks.Destination) error {
	if err := validate.Struct(d); err != nil {
		return validationError(err)
	}
	if _, err := socks.ParseHost(d.Host); err != nil {
		return err
	}
	return nil
}
