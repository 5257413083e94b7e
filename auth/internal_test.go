package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret-for-tests"

func TestInternalTokenRoundTrip(t *testing.T) {
	tok, err := MintInternalToken(testSecret, SubjectWorker, time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := ParseInternalToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, SubjectWorker, claims.Subject)

	_, err = ParseInternalToken("other-secret", tok)
	assert.Error(t, err)
}

func TestInternalTokenRejects(t *testing.T) {
	expired, err := MintInternalToken(testSecret, SubjectAdmin, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = ParseInternalToken(testSecret, expired)
	assert.Error(t, err)

	_, err = MintInternalToken(testSecret, "root", time.Hour, time.Now())
	assert.Error(t, err)
	_, err = MintInternalToken("", SubjectWorker, time.Hour, time.Now())
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = ParseInternalToken(testSecret, "not.a.jwt")
	assert.Error(t, err)
}

func TestGateCheck(t *testing.T) {
	worker, err := MintInternalToken(testSecret, SubjectWorker, time.Hour, time.Now())
	require.NoError(t, err)
	forged, err := MintInternalToken("forged", SubjectWorker, time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name     string
		gate     Gate
		remote   string
		header   string
		value    string
		wantSubj string
		wantErr  bool
	}{
		{"bearer", Gate{Secret: testSecret}, "10.0.0.5:1234", "Authorization", "Bearer " + worker, SubjectWorker, false},
		{"forged bearer", Gate{Secret: testSecret}, "10.0.0.5:1234", "Authorization", "Bearer " + forged, "", true},
		{"shared secret", Gate{Secret: testSecret}, "10.0.0.5:1234", InternalSecretHeader, testSecret, SubjectAdmin, false},
		{"wrong secret", Gate{Secret: testSecret}, "10.0.0.5:1234", InternalSecretHeader, "nope", "", true},
		{"nothing", Gate{Secret: testSecret}, "10.0.0.5:1234", "", "", "", true},
		{"loopback disabled", Gate{Secret: testSecret}, "127.0.0.1:1234", "", "", "", true},
		{"loopback enabled", Gate{AllowLoopback: true}, "127.0.0.1:1234", "", "", SubjectAdmin, false},
		{"loopback ipv6", Gate{AllowLoopback: true}, "[::1]:1234", "", "", SubjectAdmin, false},
		{"remote with loopback enabled", Gate{AllowLoopback: true}, "192.168.1.9:1234", "", "", "", true},
		{"no secret configured", Gate{}, "10.0.0.5:1234", InternalSecretHeader, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/queue", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			subj, err := tt.gate.Check(req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrForbidden)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubj, subj)
		})
	}
}

func TestGateAuthorize(t *testing.T) {
	gate := Gate{Secret: testSecret}
	worker, err := MintInternalToken(testSecret, SubjectWorker, time.Hour, time.Now())
	require.NoError(t, err)
	admin, err := MintInternalToken(testSecret, SubjectAdmin, time.Hour, time.Now())
	require.NoError(t, err)

	request := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/admin/purge", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	_, err = gate.Authorize(request(worker), SubjectAdmin)
	assert.ErrorIs(t, err, ErrForbidden, "worker on an admin route")

	subj, err := gate.Authorize(request(worker), SubjectWorker)
	require.NoError(t, err)
	assert.Equal(t, SubjectWorker, subj)

	subj, err = gate.Authorize(request(admin), SubjectWorker)
	require.NoError(t, err)
	assert.Equal(t, SubjectAdmin, subj, "admin passes worker routes")

	_, err = gate.Authorize(request("garbage"), SubjectWorker)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestNewToken(t *testing.T) {
	a, err := NewToken(32)
	require.NoError(t, err)
	b, err := NewToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)

	_, err = NewToken(8)
	assert.Error(t, err)
}
