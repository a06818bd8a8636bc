package middleware

import (
	"bytes"
	"net/http"
	"strconv"
)

// CaptureWriter buffers a handler's response so it can be rewritten before
// it reaches the client. Headers are shared with the underlying writer.
type CaptureWriter struct {
	w           http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func NewCaptureWriter(w http.ResponseWriter) *CaptureWriter {
	return &CaptureWriter{w: w}
}

func (c *CaptureWriter) Header() http.Header {
	return c.w.Header()
}

func (c *CaptureWriter) WriteHeader(code int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	c.status = code
}

func (c *CaptureWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	return c.buf.Write(p)
}

// Status returns the captured status code, 200 if none was written
func (c *CaptureWriter) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *CaptureWriter) Body() []byte {
	return c.buf.Bytes()
}

// ContentType returns the response content type. Like net/http, it is
// sniffed from the body when the handler did not set one.
func (c *CaptureWriter) ContentType() string {
	h := c.Header()
	if _, set := h["Content-Type"]; !set && c.buf.Len() > 0 && h.Get("Content-Encoding") == "" {
		h.Set("Content-Type", http.DetectContentType(c.buf.Bytes()))
	}
	return h.Get("Content-Type")
}

// Commit sends the status and body to the underlying writer. When rewritten
// is true, Content-Length is corrected to the new body length.
func (c *CaptureWriter) Commit(body []byte, rewritten bool) error {
	if rewritten {
		c.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	c.w.WriteHeader(c.Status())
	if len(body) == 0 {
		return nil
	}
	_, err := c.w.Write(body)
	return err
}
