package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
)

// sensitiveFields are matched as substrings of lower-cased field and header names.
var sensitiveFields = []string{
	"token",
	"authorization",
	"secret",
	"salt",
	"hash",
	"key",
	"session",
	"credential",
	"auth",
	"card",
	"ccnum",
	"cvv",
	"ccvv",
	"ccexp",
	"email",
	"phone",
	"firstname",
}

// maxLoggedBody caps how much of a body is read for logging.
const maxLoggedBody = 64 << 10

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, sensitiveField := range sensitiveFields {
		if strings.Contains(lower, sensitiveField) {
			return true
		}
	}
	return false
}

// LoggingMiddleware logs every request and response. Requests to opaquePaths are
// logged without body or query; their handlers log whatever they need themselves.
func LoggingMiddleware(logger *slog.Logger, opaquePaths ...string) func(next http.Handler) http.Handler {
	opaque := make(map[string]struct{}, len(opaquePaths))
	for _, p := range opaquePaths {
		opaque[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := middleware.GetReqID(r.Context())

			_, skipBody := opaque[r.URL.Path]
			logRequest(logger.With("trace_id", w.Header().Get(TraceIDHeader)), r, reqID, skipBody)

			ww := &responseWriter{
				ResponseWriter: w,
				body:           &bytes.Buffer{},
			}

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			logResponse(logger, ww, duration, reqID)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture response body
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// logRequest logs the incoming HTTP request with sensitive data filtered
func logRequest(logger *slog.Logger, r *http.Request, reqID string, skipBody bool) {
	headers := filterSensitiveHeaders(r.Header)

	query := r.URL.RawQuery
	filteredBody := ""
	if skipBody {
		query = ""
		if r.ContentLength != 0 {
			filteredBody = "[OMITTED]"
		}
	} else if r.Body != nil {
		bodyBytes, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
		r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(bodyBytes), r.Body), Closer: r.Body}
		filteredBody = filterSensitiveBody(bodyBytes, r.Header.Get("Content-Type"))
	}

	logger.Info("incoming request",
		"request_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"query", query,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", headers,
		"body", filteredBody,
	)
}

func logResponse(logger *slog.Logger, rw *responseWriter, duration time.Duration, reqID string) {
	statusCode := rw.statusCode
	if statusCode == 0 {
		statusCode = 200
	}

	filteredBody := filterSensitiveBody(rw.body.Bytes(), rw.Header().Get("Content-Type"))

	logLevel := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		logLevel = slog.LevelWarn
	} else if statusCode >= 500 {
		logLevel = slog.LevelError
	}

	logger.Log(context.Background(), logLevel, "response",
		"request_id", reqID,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.body.Len(),
		"body", filteredBody,
	)
}

// filterSensitiveHeaders removes or masks sensitive headers
func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string)

	for name, values := range headers {
		if isSensitive(name) {
			filtered[name] = "[FILTERED]"
		} else {
			filtered[name] = strings.Join(values, ", ")
		}
	}

	return filtered
}

type readCloser struct {
	io.Reader
	io.Closer
}

// filterSensitiveBody renders a JSON body with sensitive fields replaced. Form and
// multipart bodies carry gateway card fields and are never rendered.
func filterSensitiveBody(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		var jsonData interface{}
		if err := json.Unmarshal(body, &jsonData); err != nil {
			return "[FILTERED - unparsable JSON]"
		}
		filteredBytes, err := json.Marshal(filterSensitiveJSON(jsonData))
		if err != nil {
			return "[ERROR - Failed to marshal filtered JSON]"
		}
		return string(filteredBytes)
	case "":
		return "[OMITTED]"
	default:
		return "[OMITTED - " + mediaType + "]"
	}
}

// filterSensitiveJSON recursively filters sensitive fields from JSON data
func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		filtered := make(map[string]interface{})
		for key, value := range v {
			if isSensitive(key) {
				filtered[key] = "[FILTERED]"
			} else {
				filtered[key] = filterSensitiveJSON(value)
			}
		}
		return filtered
	case []interface{}:
		filtered := make([]interface{}, len(v))
		for i, item := range v {
			filtered[i] = filterSensitiveJSON(item)
		}
		return filtered
	default:
		return v
	}
}
