package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// ProcessTimeHeader — заголовок с временем обработки запроса в секундах.
const ProcessTimeHeader = "X-Process-Time"

// ProcessTime добавляет X-Process-Time к каждому ответу.
// Заголовок выставляется перед первой записью статуса или тела.
func ProcessTime() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pw := &processTimeWriter{ResponseWriter: w, start: time.Now()}
			next.ServeHTTP(pw, r)
			if !pw.wroteHeader {
				pw.WriteHeader(http.StatusOK)
			}
		})
	}
}

type processTimeWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (pw *processTimeWriter) WriteHeader(code int) {
	if pw.wroteHeader {
		return
	}
	pw.wroteHeader = true
	pw.Header().Set(ProcessTimeHeader, fmt.Sprintf("%.4f", time.Since(pw.start).Seconds()))
	pw.ResponseWriter.WriteHeader(code)
}

func (pw *processTimeWriter) Write(b []byte) (int, error) {
	if !pw.wroteHeader {
		pw.WriteHeader(http.StatusOK)
	}
	return pw.ResponseWriter.Write(b)
}

func (pw *processTimeWriter) Unwrap() http.ResponseWriter {
	return pw.ResponseWriter
}
