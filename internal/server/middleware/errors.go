package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/doccollab/pkg/api"
)

// writeJSONError отвечает в том же формате, что и handlers
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
