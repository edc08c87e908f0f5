package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cmskit/internal/cms"
)

// maxBodyBytes caps JSON request bodies. Content itself is limited to
// 500,000 characters by the service; this leaves room for multi-byte text.
const maxBodyBytes = 4 << 20

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
// An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &cms.ValidationError{Field: "body", Message: fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes)}
		}
		return &cms.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	if dec.More() {
		return &cms.ValidationError{Field: "body", Message: "must contain a single JSON object"}
	}
	return nil
}

// ifMatch returns the raw If-Match header. Normalization happens in the
// service guard.
func ifMatch(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("If-Match"))
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &cms.ValidationError{Field: name, Value: raw, Message: "must be a non-negative integer"}
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &cms.ValidationError{Field: name, Value: raw, Message: "must be a boolean"}
	}
	return b, nil
}

// historyID parses the {historyID} path parameter.
func historyID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "historyID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &cms.ValidationError{Field: "history_id", Value: raw, Message: "must be a positive integer"}
	}
	return id, nil
}
