package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Normalize canonicalises case of enumerated fields in place.
func (tc *TradeConditions) Normalize() {
	if tc == nil {
		return
	}
	tc.Mode = strings.ToUpper(strings.TrimSpace(tc.Mode))
	tc.Fallback = strings.ToLower(strings.TrimSpace(tc.Fallback))
}

// Validate checks ranges and rule shapes. It returns a *SchemaError listing
// every problem found.
func (tc *TradeConditions) Validate() error {
	if tc == nil {
		return NewSchemaError("", "document is nil")
	}
	se := &SchemaError{}

	if err := validate.Struct(tc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return NewSchemaError("", err.Error())
		}
		for _, fe := range verrs {
			se.Add(fieldPath(fe.Namespace()), describe(fe))
		}
	}

	for _, side := range Sides {
		set := tc.Set(side)
		if set == nil {
			continue
		}
		prefix := strings.ToLower(string(side))
		for _, c := range set.Core.Items() {
			if reason := checkCondition(c); reason != "" {
				se.Add(prefix+".core", reason)
			}
		}
		for i, p := range set.Pairs {
			for _, c := range []IndicatorCondition{p.First, p.Second} {
				if reason := checkCondition(c); reason != "" {
					se.Add(fmt.Sprintf("%s.pairs[%d]", prefix, i), reason)
				}
			}
		}
	}

	if len(se.Issues) > 0 {
		return se
	}
	return nil
}

func checkCondition(c IndicatorCondition) string {
	if strings.TrimSpace(c.Indicator) == "" {
		return "indicator name must not be empty"
	}
	if strings.TrimSpace(c.State) == "" {
		return fmt.Sprintf("state for %q must not be empty", c.Indicator)
	}
	return ""
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "required":
		return "is required"
	default:
		return "failed validation: " + fe.Tag()
	}
}
