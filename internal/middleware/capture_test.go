package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCaptureWriterBuffers(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := NewCaptureWriter(rec)

	cw.Header().Set("Content-Type", "text/html")
	cw.WriteHeader(http.StatusNotFound)
	cw.WriteHeader(http.StatusOK)
	cw.Write([]byte("<html>"))
	cw.Write([]byte("</html>"))

	if rec.Body.Len() != 0 {
		t.Fatal("nothing may reach the client before Commit")
	}
	if cw.Status() != http.StatusNotFound {
		t.Errorf("expected first status to win, got %d", cw.Status())
	}
	if string(cw.Body()) != "<html></html>" {
		t.Errorf("unexpected body %q", cw.Body())
	}

	if err := cw.Commit([]byte("<html>tracked</html>"), true); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if rec.Body.String() != "<html>tracked</html>" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Length") != "20" {
		t.Errorf("expected Content-Length=20, got %q", rec.Header().Get("Content-Length"))
	}
}

func TestCaptureWriterDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := NewCaptureWriter(rec)

	if cw.Status() != http.StatusOK {
		t.Errorf("expected default status 200, got %d", cw.Status())
	}

	cw.Header().Set("Content-Length", "3")
	cw.Write([]byte("abc"))
	if err := cw.Commit(cw.Body(), false); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if rec.Header().Get("Content-Length") != "3" {
		t.Error("Content-Length must be kept when the body is not rewritten")
	}
}

func TestCaptureWriterContentType(t *testing.T) {
	tests := []struct {
		name     string
		header   map[string]string
		body     string
		expected string
	}{
		{
			name:     "explicit",
			header:   map[string]string{"Content-Type": "application/json"},
			body:     "<html></html>",
			expected: "application/json",
		},
		{
			name:     "sniffed html",
			body:     "<html><body>Hi</body></html>",
			expected: "text/html; charset=utf-8",
		},
		{
			name:     "sniffed text",
			body:     "plain words",
			expected: "text/plain; charset=utf-8",
		},
		{
			name:     "empty body",
			expected: "",
		},
		{
			name:     "encoded body is not sniffed",
			header:   map[string]string{"Content-Encoding": "gzip"},
			body:     "<html>",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cw := NewCaptureWriter(httptest.NewRecorder())
			for k, v := range tt.header {
				cw.Header().Set(k, v)
			}
			if tt.body != "" {
				cw.Write([]byte(tt.body))
			}

			if got := cw.ContentType(); got != tt.expected {
				t.Errorf("ContentType() = %q, want %q", got, tt.expected)
			}
		})
	}
}
