package handlers

import (
	"net/http"
	"strconv"
	"time"

	"jobportal/logger"
)

// --- Admin Handlers ---

func (s *Server) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	if err := s.auth.Approve(r.Context(), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": uid, "approved": true})
}

func (s *Server) DenyHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	if err := s.auth.Deny(r.Context(), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": uid, "approved": false})
}

type userView struct {
	ID       int64     `json:"id"`
	Email    string    `json:"email"`
	Approved bool      `json:"approved"`
	Created  time.Time `json:"created"`
}

func (s *Server) AdminUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.Users(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{ID: u.ID, Email: u.Email, Approved: u.Approved, Created: u.Created})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Server) DeleteInputsHandler(w http.ResponseWriter, r *http.Request) {
	eid, ok := pathID(w, r, "eid")
	if !ok {
		return
	}
	n, err := s.exps.DeleteInputs(r.Context(), eid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// PurgeHandler reports, and with delete=true removes, files older than days.
// days defaults to the configured retention period.
func (s *Server) PurgeHandler(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.Retention.Days
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("days must be a non-negative integer"))
			return
		}
		days = n
	}
	destructive, _ := strconv.ParseBool(r.URL.Query().Get("delete"))

	report, err := s.exps.PurgeOlderThan(r.Context(), days, destructive)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	gid, err := s.auth.CreateGroup(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": gid, "name": name})
}

func (s *Server) AddGroupMemberHandler(w http.ResponseWriter, r *http.Request) {
	gid, ok := pathID(w, r, "gid")
	if !ok {
		return
	}
	uid, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	if err := s.auth.AddUserToGroup(r.Context(), gid, uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": gid, "user": uid})
}

// --- Worker Handlers ---

func (s *Server) DrainHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.exps.DrainQueue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) InputFilesHandler(w http.ResponseWriter, r *http.Request) {
	uid, eid, ok := jobIDs(w, r)
	if !ok {
		return
	}
	names, err := s.exps.InputFiles(r.Context(), uid, eid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": names})
}

func (s *Server) InputFileHandler(w http.ResponseWriter, r *http.Request) {
	uid, eid, ok := jobIDs(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	f, err := s.exps.OpenInput(r.Context(), uid, eid, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, name, fi.ModTime(), f)
}

func (s *Server) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	uid, eid, ok := jobIDs(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(s.maxMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}
	if err := s.exps.Complete(r.Context(), uid, eid, formUploads(r.MultipartForm)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": eid, "status": "completed"})
}

func (s *Server) FailHandler(w http.ResponseWriter, r *http.Request) {
	uid, eid, ok := jobIDs(w, r)
	if !ok {
		return
	}
	if reason := r.FormValue("reason"); reason != "" {
		logger.Info("Worker reports experiment %d failed: %s", eid, reason)
	}
	if err := s.exps.Fail(r.Context(), uid, eid); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": eid, "status": "failed"})
}

// --- Helper Functions ---

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return 0, false
	}
	return id, true
}

func jobIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	uid, ok := pathID(w, r, "uid")
	if !ok {
		return 0, 0, false
	}
	eid, ok := pathID(w, r, "eid")
	if !ok {
		return 0, 0, false
	}
	return uid, eid, true
}
