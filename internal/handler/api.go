package handler

import (
	"encoding/json"
	"net/http"

	"github.com/adforge/adforge/internal/domain"
)

// maxJSONBody caps JSON request bodies (1MB).
const maxJSONBody = 1 << 20

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into dst, enforcing the size cap.
func decodeJSON(r *http.Request, dst any) error {
	const op = "handler.decode_json"

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalid(op, "Request body is not valid JSON")
	}
	return nil
}
