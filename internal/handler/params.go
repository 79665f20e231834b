package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/validation"
)

const maxBodyBytes = 64 << 10

// decodeBody reads a single JSON object, rejecting unknown fields and trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation([]string{"request body is too large"})
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation([]string{"request body is required"})
		}
		return apperr.Validation([]string{"request body is not valid JSON: " + err.Error()})
	}
	if dec.More() {
		return apperr.Validation([]string{"request body must contain a single JSON object"})
	}
	return nil
}

// pageParams reads page and limit. Missing values fall back to the service defaults.
func pageParams(r *http.Request) (model.PageFilter, error) {
	var (
		page       model.PageFilter
		violations []string
	)
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			violations = append(violations, "page must be a positive integer")
		}
		page.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			violations = append(violations, "limit must be a positive integer")
		}
		page.Limit = n
	}
	if len(violations) > 0 {
		return model.PageFilter{}, apperr.Validation(violations)
	}
	return page, nil
}

// addressParam reads an optional address query parameter.
func addressParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", nil
	}
	if err := validation.ValidateAddress(v); err != nil {
		return "", apperr.Validation([]string{name + ": " + err.Error()})
	}
	return validation.NormalizeAddress(v), nil
}

// pathID reads an object id or address from the route in its full form.
func pathID(r *http.Request, name string) (string, error) {
	v := r.PathValue(name)
	if err := validation.ValidateAddress(v); err != nil {
		return "", apperr.Validation([]string{name + ": " + err.Error()})
	}
	return validation.NormalizeAddress(v), nil
}
