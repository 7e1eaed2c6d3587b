package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/farmlink/farmlink/internal/apperr"
)

type errorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Kind.Status())
	json.NewEncoder(w).Encode(errorBody{
		Success: false,
		Code:    err.Kind.Code(),
		Message: err.Message,
	})
}
