package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as {"code", "message"}. Errors that are not an Errno
// are logged and reported as a bare 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := errno.FromError(err)
	if e == errno.ErrInternal {
		Logger(r.Context()).Error(err, "Request failed", "path", r.URL.Path)
	}
	WriteJSON(w, e.HTTP, e)
}
