package middleware

import "net/http"

// ErrorWriter writes the response for a failed request. The API's error
// translator satisfies it; middleware never formats error bodies itself.
type ErrorWriter interface {
	WriteError(w http.ResponseWriter, r *http.Request, err error)
}
