package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const defaultThrottleWindow = time.Second

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the names of the invalid fields in report order.
func (e *ValidationErrors) Fields() []string {
	out := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err.Field
	}
	return out
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field constraints first and then the rules spanning
// several fields.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (f *File) Validate() error {
	errs := &ValidationErrors{}

	if err := structValidator().Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs.Add(fieldPath(fe), fieldMessage(fe))
		}
	}

	validateSimulation(&f.Simulation, errs)

	if f.Actors.Anonymous == 0 && len(f.Actors.List) == 0 {
		errs.Add("actors", "at least one actor is required")
	}

	for i := range f.Workflows {
		prefix := fmt.Sprintf("workflows[%d]", i)
		validateSteps(prefix+".steps", f.Workflows[i].Steps, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when " + strings.ToLower(fe.Param()) + " is set"
	case "min":
		return fmt.Sprintf("must contain at least %s element(s)", fe.Param())
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "url":
		return fmt.Sprintf("invalid URL %v", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func validateSimulation(sim *Simulation, errs *ValidationErrors) {
	if sim.Duration == 0 && sim.MaxExecutions == 0 {
		errs.Add("simulation", "duration or maxExecutions is required")
	}
	if r := sim.RampUp; r != nil && r.TargetRPS > 0 && r.TargetRPS < r.StartRPS {
		errs.Add("simulation.rampUp.targetRps", "must not be lower than startRps")
	}
	if sim.Drain == "abandon" && sim.GracefulStop > 0 {
		errs.Add("simulation.gracefulStop", "has no effect with drain: abandon")
	}
}

func validateSteps(prefix string, steps []Step, errs *ValidationErrors) {
	for i := range steps {
		validateStep(fmt.Sprintf("%s[%d]", prefix, i), &steps[i], errs)
	}
}

func validateStep(prefix string, st *Step, errs *ValidationErrors) {
	if n := st.kinds(); n != 1 {
		errs.Add(prefix, fmt.Sprintf("must define exactly one of http, wait, session, ensure, measure, repeat, forEach (found %d)", n))
		return
	}

	switch {
	case st.Wait != nil:
		if *st.Wait <= 0 {
			errs.Add(prefix+".wait", "must be positive")
		}
	case st.HTTP != nil:
		h := st.HTTP
		if h.Cumulative && h.Retry == nil {
			errs.Add(prefix+".http.cumulative", "requires retry")
		}
		if h.Body != "" && len(h.Form) > 0 {
			errs.Add(prefix+".http.body", "cannot be combined with form")
		}
	case st.Session != nil:
		if st.Session.Value == nil {
			errs.Add(prefix+".session.value", "is required")
		}
	case st.Ensure != nil:
		validateEnsure(prefix+".ensure", st.Ensure, errs)
	case st.Measure != nil:
		validateSteps(prefix+".measure.steps", st.Measure.Steps, errs)
	case st.Repeat != nil:
		validateSteps(prefix+".repeat.steps", st.Repeat.Steps, errs)
	case st.ForEach != nil:
		fe := st.ForEach
		if (len(fe.Items) == 0) == (fe.From == "") {
			errs.Add(prefix+".forEach", "must define exactly one of items, from")
		}
		validateSteps(prefix+".forEach.steps", fe.Steps, errs)
	}
}

func validateEnsure(prefix string, e *EnsureStep, errs *ValidationErrors) {
	checks := 0
	for _, set := range []bool{e.Status != nil, e.JSONPath != nil, e.Schema != nil} {
		if set {
			checks++
		}
	}
	if checks != 1 {
		errs.Add(prefix, "must define exactly one of status, jsonPath, schema")
		return
	}

	if s := e.Status; s != nil && s.Equals == 0 && len(s.In) == 0 {
		errs.Add(prefix+".status", "must define equals or in")
	}
	if j := e.JSONPath; j != nil && j.Equals == nil && !j.Exists {
		errs.Add(prefix+".jsonPath", "must define equals or exists")
	}
}

func (st *Step) kinds() int {
	n := 0
	for _, set := range []bool{
		st.HTTP != nil, st.Wait != nil, st.Session != nil, st.Ensure != nil,
		st.Measure != nil, st.Repeat != nil, st.ForEach != nil,
	} {
		if set {
			n++
		}
	}
	return n
}
