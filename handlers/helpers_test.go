package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"jobportal/auth"
	"jobportal/config"
	"jobportal/database"
	"jobportal/experiments"
	"jobportal/notify"
	"jobportal/storage"
	testutils "jobportal/test_utils"
)

const internalSecret = "internal-test-secret"

type testEnv struct {
	h      http.Handler
	cfg    *config.Config
	db     *database.DB
	layout *storage.Layout
	exps   *experiments.Service
}

func setupServer(t *testing.T, tweak func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Internal.SharedSecret = internalSecret
	if tweak != nil {
		tweak(cfg)
	}

	db := testutils.SetupTestDB(t)
	layout := testutils.SetupMemLayout()
	authSvc := auth.NewService(db, notify.Nop{}, auth.Options{
		TokenTTL:  time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		PublicURL: cfg.Server.PublicURL,
	})
	expSvc := experiments.NewService(db, layout, notify.Nop{}, experiments.Options{
		Limits: experiments.Limits{
			MaxFilesPerUser: cfg.Storage.MaxFilesPerUser,
			MaxFileSize:     cfg.Storage.MaxFileSize,
		},
	})
	srv := NewServer(cfg, db, authSvc, expSvc)
	return &testEnv{h: srv.Routes(), cfg: cfg, db: db, layout: layout, exps: expSvc}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *testEnv) internal(method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(auth.InternalSecretHeader, internalSecret)
	return e.do(req)
}

// approvedUser registers through the API and approves the account directly.
func (e *testEnv) approvedUser(t *testing.T, email string) (int64, string) {
	t.Helper()
	rr := e.postForm("/users/new", url.Values{"email": {email}, "password": {"pw"}, "confirm-password": {"pw"}})
	var body map[string]string
	decode(t, rr, &body)
	if body["token"] == "" {
		t.Fatalf("registration failed: %s", rr.Body.String())
	}
	u, err := e.db.GetUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.db.SetApproved(context.Background(), u.ID, true); err != nil {
		t.Fatal(err)
	}
	return u.ID, body["token"]
}

type filePart struct {
	field, name, content string
}

func multipartBody(t *testing.T, fields map[string]string, files []filePart) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, f.content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf, mw.FormDataContentType()
}

func (e *testEnv) submit(t *testing.T, token string, fields map[string]string, files []filePart) *httptest.ResponseRecorder {
	t.Helper()
	if fields == nil {
		fields = map[string]string{}
	}
	fields["token"] = token
	body, ctype := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, "/experiments/new", body)
	req.Header.Set("Content-Type", ctype)
	return e.do(req)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
}

func checkStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("Handler returned wrong status code: got %v want %v (body %s)", rr.Code, want, rr.Body.String())
	}
}

func regularFilesUnder(t *testing.T, e *testEnv) []string {
	t.Helper()
	var files []string
	err := afero.Walk(e.layout.Fs(), e.layout.Root(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
