// Package respond provides small helpers for writing JSON responses.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/wb-go/wbf/zlog"
)

type response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// JSON writes v as a JSON body with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to encode response")
	}
}

// OK writes a 200 response with the given result.
func OK(w http.ResponseWriter, result any) {
	JSON(w, http.StatusOK, response{Result: result})
}

// Created writes a 201 response with the given result.
func Created(w http.ResponseWriter, result any) {
	JSON(w, http.StatusCreated, response{Result: result})
}

// Fail writes an error response with the given status code.
func Fail(w http.ResponseWriter, code int, err error) {
	JSON(w, code, response{Error: err.Error()})
}
