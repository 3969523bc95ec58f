package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// DecodeJSON strictly decodes the request body into dst. Unknown fields are
// rejected so a typo in a field name surfaces as a 400 instead of a silently
// ignored option. Returns false after writing the error response.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}
	return true
}

// WriteJSON encodes v into a buffer before touching the response, so an
// encoding failure can still become a clean 500 instead of a truncated body.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// A write failure here means the client went away; nothing to recover.
	_, _ = buf.WriteTo(w)
}

// ErrorParams carries the HTTP status, the machine-readable error code, and
// the underlying error for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes the standard error envelope: {"error": code, "message": detail}.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}
