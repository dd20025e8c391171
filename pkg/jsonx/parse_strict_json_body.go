package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	ErrEmptyBody    = errors.New("empty body")
	ErrTrailingJSON = errors.New("trailing data")
)

// maxBody caps request bodies read by ParseStrictJSONBody.
const maxBody = 1 << 20

// ParseStrictJSONBody reads and strictly decodes a JSON HTTP request body into dst.
//
// Every failure is a 400 Bad Request: malformed JSON, an empty body
// (ErrEmptyBody), a second JSON value (ErrTrailingJSON), unknown fields and
// field-type mismatches. Required fields and business rules are not checked
// here.
func ParseStrictJSONBody[T any](r *http.Request, dst *T) error {
	if r == nil || r.Body == nil {
		return ErrEmptyBody
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ErrTrailingJSON
	}
	return nil
}

// ParseOptionalJSONBody is ParseStrictJSONBody for endpoints whose body may be
// omitted; an empty body leaves dst untouched.
func ParseOptionalJSONBody[T any](r *http.Request, dst *T) error {
	if err := ParseStrictJSONBody(r, dst); err != nil && !errors.Is(err, ErrEmptyBody) {
		return err
	}
	return nil
}
