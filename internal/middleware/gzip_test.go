package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGzipMiddleware(t *testing.T) {
	const body = `{"message":"hello"}`

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if string(got) != body {
			t.Fatalf("request body = %q, want %q", got, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})

	handler := GzipMiddleware(next)

	tests := []struct {
		name           string
		compressBody   bool
		acceptEncoding string
		wantCompressed bool
	}{
		{
			name:           "plain request plain response",
			compressBody:   false,
			acceptEncoding: "",
			wantCompressed: false,
		},
		{
			name:           "gzip request",
			compressBody:   true,
			acceptEncoding: "",
			wantCompressed: false,
		},
		{
			name:           "gzip response",
			compressBody:   false,
			acceptEncoding: "gzip",
			wantCompressed: true,
		},
		{
			name:           "gzip both ways",
			compressBody:   true,
			acceptEncoding: "gzip",
			wantCompressed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqBody io.Reader = strings.NewReader(body)
			if tt.compressBody {
				var buf bytes.Buffer
				zw := gzip.NewWriter(&buf)
				if _, err := zw.Write([]byte(body)); err != nil {
					t.Fatalf("compress body: %v", err)
				}
				if err := zw.Close(); err != nil {
					t.Fatalf("close gzip writer: %v", err)
				}
				reqBody = &buf
			}

			r := httptest.NewRequest(http.MethodPost, "/", reqBody)
			if tt.compressBody {
				r.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				r.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			res := w.Result()
			defer res.Body.Close()

			var respReader io.Reader = res.Body
			if tt.wantCompressed {
				if res.Header.Get("Content-Encoding") != "gzip" {
					t.Fatalf("Content-Encoding = %q, want gzip", res.Header.Get("Content-Encoding"))
				}
				zr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("open gzip reader: %v", err)
				}
				defer zr.Close()
				respReader = zr
			}

			got, err := io.ReadAll(respReader)
			if err != nil {
				t.Fatalf("read response body: %v", err)
			}
			if string(got) != body {
				t.Fatalf("response body = %q, want %q", got, body)
			}
		})
	}
}
