package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = func() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// DecodeJSONBody decodes exactly one JSON object into dest and validates it.
// Unknown fields, trailing data and bodies over 1 MiB are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	return decodeBody(r, dest, false)
}

// DecodeOptionalJSONBody is DecodeJSONBody, except an empty body validates
// dest as-is.
func DecodeOptionalJSONBody(r *http.Request, dest any) error {
	return decodeBody(r, dest, true)
}

func decodeBody(r *http.Request, dest any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return ValidateStruct(dest)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
	}
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dest)
	switch {
	case errors.Is(err, io.EOF):
		if optional {
			return ValidateStruct(dest)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
	case err != nil:
		return bodyError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must hold a single JSON object")
	}
	return ValidateStruct(dest)
}

func bodyError(err error) error {
	var (
		tooLarge  *http.MaxBytesError
		syntax    *json.SyntaxError
		wrongType *json.UnmarshalTypeError
	)
	details := map[string]any{}
	switch {
	case errors.As(err, &tooLarge):
		details["limit_bytes"] = tooLarge.Limit
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large").WithDetails(details)
	case errors.As(err, &syntax):
		details["offset"] = syntax.Offset
	case errors.As(err, &wrongType):
		details["field"] = wrongType.Field
		details["expected"] = wrongType.Type.String()
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		details["field"] = strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown field").WithDetails(details)
	default:
		details["error"] = err.Error()
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(details)
}

// ValidateStruct runs validator tags on dest. Field failures come back as a
// VALIDATION error whose details map each JSON field to a message.
func ValidateStruct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fields))
	for _, fe := range fields {
		details[fieldPath(fe)] = describeFailure(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the root struct name from the namespace, so nested fields
// read as items[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

var failureMessages = map[string]string{
	"required": "is required",
	"uuid":     "must be a valid uuid",
	"uuid4":    "must be a valid uuid",
	"url":      "must be a valid url",
	"email":    "must be a valid email",
	"dive":     "contains an invalid entry",
}

var boundMessages = map[string]string{
	"min":   "must be at least %s",
	"max":   "must be at most %s",
	"gte":   "must be greater than or equal to %s",
	"lte":   "must be less than or equal to %s",
	"len":   "must have length %s",
	"oneof": "must be one of [%s]",
}

func describeFailure(fe validator.FieldError) string {
	if msg, ok := failureMessages[fe.Tag()]; ok {
		return msg
	}
	if format, ok := boundMessages[fe.Tag()]; ok {
		return fmt.Sprintf(format, fe.Param())
	}
	return "is invalid"
}
