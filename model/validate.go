package model

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
)

var (
	validateOnce    sync.Once
	structValidator *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// checkStruct runs the struct tag rules and converts failures into a
// validation error naming every offending field.
func checkStruct(kind Kind, v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Validationf("invalid %s: %v", kind, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.Validationf("invalid %s: %s", kind, strings.Join(problems, "; "))
}

func checkAgentIdentifiers(kind Kind, ids []Identifier) error {
	for _, id := range ids {
		if !IsIdentifierType(kind, id.Type) {
			return errors.Validationf("identifier type %q is not allowed for %s", id.Type, kind)
		}
	}
	if t, dup := duplicateType(ids); dup {
		return errors.Validationf("%s has more than one identifier of type %q", kind, t)
	}
	return nil
}
