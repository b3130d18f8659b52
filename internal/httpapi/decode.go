package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// decodeJSON decodes the request body into v, rejecting unknown fields so
// typos in a client's request surface immediately rather than being
// silently ignored.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
