package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"jobportal/auth"
	"jobportal/config"
	"jobportal/experiments"
	"jobportal/notify"
	"jobportal/storage"
	testutils "jobportal/test_utils"
)

func BenchmarkBcryptHashing(b *testing.B) {
	password := "testpassword123"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSanitizeFilename(b *testing.B) {
	names := []string{
		"../../../etc/passwd",
		"My cool movie.mov",
		"i contain cool ümläuts.txt",
		"scan_0001 (copy).nii.gz",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		storage.SanitizeFilename(names[i%len(names)])
	}
}

func BenchmarkIsAuthorized(b *testing.B) {
	db := testutils.SetupTestDB(b)
	_, token := testutils.CreateApprovedUser(b, db, "bench@example.com")
	svc := auth.NewService(db, notify.Nop{}, auth.Options{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.IsAuthorized(ctx, token); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCreateAndDrain(b *testing.B) {
	db := testutils.SetupTestDB(b)
	uid, _ := testutils.CreateApprovedUser(b, db, "drain@example.com")
	svc := experiments.NewService(db, testutils.SetupMemLayout(), notify.Nop{}, experiments.Options{
		Limits: experiments.Limits{MaxFilesPerUser: b.N + 1, MaxFileSize: 1 << 20},
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := svc.Create(ctx, uid, experiments.Submission{
			Label:    fmt.Sprintf("run-%d", i),
			Settings: map[string]string{"app": "bench"},
			Files: []experiments.Upload{{
				Filename: "input.dat",
				Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("payload")), nil },
			}},
		})
		if err != nil {
			b.Fatal(err)
		}
		if _, err := svc.DrainQueue(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNewExperimentHandler(b *testing.B) {
	cfg := config.Default()
	cfg.Storage.MaxFilesPerUser = b.N + 1
	db := testutils.SetupTestDB(b)
	_, token := testutils.CreateApprovedUser(b, db, "handler@example.com")
	srv, _ := newServer(cfg, db, testutils.SetupMemLayout(), notify.Nop{})
	h := srv.Routes()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.WriteField("token", token)
	fw, _ := mw.CreateFormFile("file0", "input.dat")
	io.WriteString(fw, strings.Repeat("x", 4096))
	mw.Close()
	body := buf.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/experiments/new", bytes.NewReader(body))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			b.Fatalf("status %d: %s", rr.Code, rr.Body.String())
		}
	}
}
