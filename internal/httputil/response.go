// Package httputil carries the JSON envelope of the operator API.
package httputil

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes caps operator request bodies. The largest legitimate payload
// is a settings map of short strings.
const maxBodyBytes = 64 << 10

type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Response{Status: "ok", Data: data})
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Response{Status: "error", Error: &ErrorBody{Code: code, Message: message}})
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// ReadJSON decodes the request body into dst, refusing bodies over
// maxBodyBytes.
func ReadJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
}
