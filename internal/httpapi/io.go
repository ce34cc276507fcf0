package httpapi

import (
	"io"
	"net/http"
)

func readAll(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func copyBuffered(w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	return io.CopyBuffer(w, r, buf)
}
