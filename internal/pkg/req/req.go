/*
Package req provides helper functions for HTTP request parsing and data binding.
*/
package req

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"marketchat/internal/pkg/errs"
)

// MaxJSONBodySize bounds every JSON request body.
const MaxJSONBodySize int64 = 1 << 20

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// BindOptionalJSON is BindJSON for endpoints whose body may be absent. An empty body
// leaves dst untouched.
func BindOptionalJSON(r *http.Request, dst any) *errs.CustomError {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return BindJSON(r, dst)
}

// QueryInt reads a non-negative integer query parameter, returning def when it is absent.
func QueryInt(r *http.Request, key string, def int) (int, *errs.CustomError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errs.Wrap(errs.ErrInvalidParams, fmt.Errorf("%s must be a non-negative integer", key))
	}
	return v, nil
}

// PathInt64 parses a positive int64 path parameter value.
func PathInt64(raw, name string) (int64, *errs.CustomError) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, errs.Wrap(errs.ErrInvalidParams, fmt.Errorf("invalid %s %q", name, raw))
	}
	return v, nil
}
