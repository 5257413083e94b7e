package handlers

import (
	"context"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/sessions"

	"jobportal/auth"
	"jobportal/config"
	"jobportal/database"
	"jobportal/experiments"
	"jobportal/logger"
)

// Server holds the services behind the HTTP surface.
type Server struct {
	cfg       *config.Config
	db        *database.DB
	auth      *auth.Service
	exps      *experiments.Service
	gate      auth.Gate
	store     *sessions.CookieStore
	maxMemory int64
	maxBody   int64
}

// NewServer wires the handlers. The session store is keyed by cfg.Session.SecretKey.
func NewServer(cfg *config.Config, db *database.DB, authSvc *auth.Service, expSvc *experiments.Service) *Server {
	store := sessions.NewCookieStore([]byte(cfg.Session.SecretKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Session.MaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		cfg:       cfg,
		db:        db,
		auth:      authSvc,
		exps:      expSvc,
		gate:      auth.Gate{Secret: cfg.Internal.SharedSecret, AllowLoopback: cfg.Internal.AllowLoopback},
		store:     store,
		maxMemory: cfg.Storage.MaxMemoryMB << 20,
		maxBody:   maxUploadBody(cfg.Storage),
	}
	if s.gate.AllowLoopback {
		logger.Warn("Internal endpoints trust loopback callers; any local process can approve users and drain the queue")
	}
	if cfg.UsesDefaultSessionKey() {
		logger.Warn("session.secret_key is the built-in default; remember-me cookies can be forged until it is set")
	}
	if s.gate.Secret == "" && !s.gate.AllowLoopback {
		logger.Warn("No internal shared secret configured; worker and admin endpoints will refuse every request")
	}
	return s
}

// formOverhead covers multipart boundaries and text fields on top of the file bytes.
const formOverhead = 1 << 20

// maxUploadBody is the largest request body a user may send: a full quota of
// maximum-size files. Zero means unbounded.
func maxUploadBody(st config.StorageConfig) int64 {
	if st.MaxFileSize <= 0 || st.MaxFilesPerUser <= 0 {
		return 0
	}
	files := int64(st.MaxFilesPerUser)
	if st.MaxFileSize > (math.MaxInt64-formOverhead)/files {
		return 0
	}
	return st.MaxFileSize*files + formOverhead
}

// Routes returns the portal's handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// User routes
	mux.HandleFunc("POST /users/new", s.RegisterHandler)
	mux.HandleFunc("POST /users/auth", s.LoginHandler)
	mux.HandleFunc("POST /users/logout", s.LogoutHandler)
	mux.HandleFunc("GET /users/settings", s.requireUser(s.GetSettingsHandler))
	mux.HandleFunc("POST /users/settings", s.requireUser(s.PutSettingsHandler))
	mux.HandleFunc("GET /experiments", s.requireUser(s.ListExperimentsHandler))
	mux.HandleFunc("POST /experiments/new", s.requireUser(s.NewExperimentHandler))

	// Worker routes
	mux.HandleFunc("GET /queue", s.workerOnly(s.DrainHandler))
	mux.HandleFunc("GET /queue/{uid}/{eid}/files", s.workerOnly(s.InputFilesHandler))
	mux.HandleFunc("GET /queue/{uid}/{eid}/files/{name}", s.workerOnly(s.InputFileHandler))
	mux.HandleFunc("POST /queue/{uid}/{eid}/results", s.workerOnly(s.ResultsHandler))
	mux.HandleFunc("POST /queue/{uid}/{eid}/fail", s.workerOnly(s.FailHandler))

	// Admin routes
	for _, m := range []string{"GET", "POST"} {
		mux.HandleFunc(m+" /users/approve/{uid}", s.adminOnly(s.ApproveHandler))
		mux.HandleFunc(m+" /users/deny/{uid}", s.adminOnly(s.DenyHandler))
	}
	mux.HandleFunc("GET /admin/users", s.adminOnly(s.AdminUsersHandler))
	mux.HandleFunc("DELETE /admin/experiments/{eid}/inputs", s.adminOnly(s.DeleteInputsHandler))
	mux.HandleFunc("POST /admin/purge", s.adminOnly(s.PurgeHandler))
	mux.HandleFunc("POST /admin/groups", s.adminOnly(s.CreateGroupHandler))
	mux.HandleFunc("POST /admin/groups/{gid}/members/{uid}", s.adminOnly(s.AddGroupMemberHandler))

	mux.HandleFunc("GET /healthz", s.HealthHandler)

	return s.withRecover(s.withRequestLog(mux))
}

// --- User Handlers ---

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid form"))
		return
	}

	_, token, err := s.auth.Register(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"), formValues(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	token, err := s.auth.Authenticate(r.Context(), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusOK, map[string]any{"token": nil, "error": "invalid credentials"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	if r.FormValue("remember") != "" {
		session, _ := s.store.Get(r, s.cfg.Session.Name)
		session.Values["token"] = token
		if err := session.Save(r, w); err != nil {
			logger.Warn("Failed to save session: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, s.cfg.Session.Name)
	delete(session.Values, "token")
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		logger.Warn("Failed to clear session: %v", err)
	}
	writeJSON(w, http.StatusOK, true)
}

func (s *Server) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.auth.UserSettings(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (s *Server) PutSettingsHandler(w http.ResponseWriter, r *http.Request) {
	uid := userID(r.Context())
	if err := s.auth.PutUserSettings(r.Context(), uid, formValues(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.GetSettingsHandler(w, r)
}

func (s *Server) ListExperimentsHandler(w http.ResponseWriter, r *http.Request) {
	views, err := s.exps.ListForUser(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": views})
}

func (s *Server) NewExperimentHandler(w http.ResponseWriter, r *http.Request) {
	sub := experiments.Submission{
		Label:    r.PostFormValue("label"),
		Host:     r.PostFormValue("host"),
		Settings: formValues(r),
		Files:    formUploads(r.MultipartForm),
	}
	if _, err := s.exps.Create(r.Context(), userID(r.Context()), sub); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		logger.Error("Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody("database unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helper Functions ---

type userIDKey struct{}

func withUserID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, uid)
}

func userID(ctx context.Context) int64 {
	uid, _ := ctx.Value(userIDKey{}).(int64)
	return uid
}

// formValues flattens the posted form, keeping the first value of each field.
func formValues(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// formUploads collects every file part, ordered by field name.
func formUploads(form *multipart.Form) []experiments.Upload {
	if form == nil {
		return nil
	}
	fields := make([]string, 0, len(form.File))
	for k := range form.File {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var uploads []experiments.Upload
	for _, k := range fields {
		for _, fh := range form.File[k] {
			uploads = append(uploads, experiments.Upload{
				Filename: fh.Filename,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return uploads
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
