package middleware_test

import (
	"net/http"
	"sync"
)

// recordingWriter is a middleware.ErrorWriter that remembers what it was
// handed and answers with a fixed status.
type recordingWriter struct {
	mu     sync.Mutex
	status int
	errs   []error
}

func newRecordingWriter(status int) *recordingWriter {
	return &recordingWriter{status: status}
}

func (rw *recordingWriter) WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	rw.mu.Lock()
	rw.errs = append(rw.errs, err)
	rw.mu.Unlock()
	w.WriteHeader(rw.status)
}

func (rw *recordingWriter) calls() []error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return append([]error(nil), rw.errs...)
}
