package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/qri-io/jsonschema"
)

const maxBodyBytes = 1 << 20

var userSchema = mustSchema(`{
	"type": "object",
	"required": ["email", "password"],
	"properties": {
		"email": {"type": "string", "format": "email"},
		"password": {"type": "string", "minLength": 1},
		"full_name": {"type": ["string", "null"]}
	}
}`)

var candidateSchema = mustSchema(`{
	"type": "object",
	"required": ["name", "email", "position_applied"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"email": {"type": "string", "format": "email"},
		"phone": {"type": ["string", "null"]},
		"position_applied": {"type": "string", "minLength": 1}
	}
}`)

func mustSchema(src string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(src), rs); err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return rs
}

// validator is implemented by request types with checks the schema cannot
// express. It runs after decoding.
type validator interface {
	validate() error
}

// decodeJSON reads the request body, validates it against rs and decodes it
// into dst. Every failure is a *ValidationError.
func decodeJSON(r *http.Request, rs *jsonschema.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &ValidationError{Detail: "Request body too large"}
		}
		return &ValidationError{Detail: "Could not read request body"}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return &ValidationError{Detail: "Invalid JSON body"}
	}

	if err := validateBytes(r.Context(), rs, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &ValidationError{Detail: "Invalid JSON body"}
	}
	if v, ok := dst.(validator); ok {
		return v.validate()
	}
	return nil
}

// checkEmail accepts a bare address, exactly as sent, with a dotted domain.
// Display names, angle brackets and padding are rejected rather than
// stripped so one mailbox has one spelling.
func checkEmail(field, email string) error {
	invalid := invalidField(field, "value is not a valid email address")

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return invalid
	}

	domain := email[strings.LastIndex(email, "@")+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") ||
		strings.HasSuffix(domain, ".") || strings.Contains(domain, "..") {
		return invalid
	}
	return nil
}

func validateBytes(ctx context.Context, rs *jsonschema.Schema, body []byte) error {
	keyErrs, err := rs.ValidateBytes(ctx, body)
	if err != nil {
		return &ValidationError{Detail: "Invalid JSON body"}
	}
	if len(keyErrs) == 0 {
		return nil
	}

	fields := make([]FieldError, 0, len(keyErrs))
	for _, ke := range keyErrs {
		fields = append(fields, FieldError{Field: fieldName(ke), Message: ke.Message})
	}
	return &ValidationError{Fields: fields}
}

// fieldName maps a schema error to the offending property. Errors for a
// missing required property are reported at the object root with the
// property quoted in the message.
func fieldName(ke jsonschema.KeyError) string {
	field := strings.Trim(ke.PropertyPath, "/")
	if field != "" {
		return field
	}
	if _, rest, ok := strings.Cut(ke.Message, `"`); ok {
		if name, _, ok := strings.Cut(rest, `"`); ok && name != "" {
			return name
		}
	}
	return "body"
}
