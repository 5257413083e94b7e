package handlers

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobportal/auth"
	"jobportal/logger"
)

// --- Middleware ---

// requireUser resolves the caller's token, from the form first and the remember-me
// session second, and rejects the request unless it belongs to an approved user.
// Bodies larger than a full upload quota are refused before anything is parsed.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.maxBody > 0 {
			if r.ContentLength > s.maxBody {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		var err error
		if isMultipart(r) {
			err = r.ParseMultipartForm(s.maxMemory)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody("invalid form"))
			return
		}

		uid, err := s.auth.IsAuthorized(r.Context(), s.userToken(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), uid)))
	}
}

func (s *Server) userToken(r *http.Request) string {
	if t := r.FormValue("token"); t != "" {
		return t
	}
	session, err := s.store.Get(r, s.cfg.Session.Name)
	if err != nil {
		return ""
	}
	t, _ := session.Values["token"].(string)
	return t
}

// internalOnly admits callers whose gate subject is one of allowed. Admin credentials
// are accepted everywhere.
func (s *Server) internalOnly(next http.HandlerFunc, allowed ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, err := s.gate.Authorize(r, allowed...)
		if err != nil {
			logger.Warn("Rejected internal request %s %s from %s: %v", r.Method, r.URL.Path, clientIP(r), err)
			writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
			return
		}
		logger.Debug("Internal request %s %s by %s", r.Method, r.URL.Path, subject)
		next.ServeHTTP(w, r)
	}
}

func (s *Server) workerOnly(next http.HandlerFunc) http.HandlerFunc {
	return s.internalOnly(next, auth.SubjectWorker)
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return s.internalOnly(next, auth.SubjectAdmin)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// withRequestLog tags every request with an id and logs one line when it finishes.
// The query string is not logged because it may carry a token.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		sr := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(sr, r)

		logger.Log(r.Context(), levelForStatus(sr.status), "http request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"bytes", sr.bytes,
			"remote_ip", clientIP(r),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// withRecover turns a panic into a 500 response.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, v, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func levelForStatus(code int) slog.Level {
	if code >= 500 {
		return slog.LevelError
	}
	if code >= 400 {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
