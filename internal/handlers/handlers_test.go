package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filevault/internal/config"
	"filevault/internal/repository/memory"
	"filevault/internal/storage"
)

type testServer struct {
	engine *gin.Engine
	cfg    *config.AppConfig
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	blob, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.AppConfig{
		Environment:      "test",
		OpenRegistration: true,
		Session: config.SessionConfig{
			CookieName:  "fv_session",
			TTL:         time.Hour,
			MaxSessions: 10,
		},
		Security: config.SecurityConfig{
			JWTAccessSecret: "test-secret",
			JWTAccessTTL:    time.Minute,
		},
		Quota:  config.QuotaConfig{DefaultBytes: 1 << 20},
		Upload: config.UploadConfig{MaxBytes: 1 << 20},
		Admin: config.AdminConfig{
			Prefix:     "/admin_panel_x1",
			Username:   "admin",
			Password:   "Bootstrap1",
			QuotaBytes: 1 << 20,
		},
	}

	handlerSet := NewHandlerSet(zerolog.Nop(), cfg, nil,
		store.Users(), store.Sessions(), store.Files(), store.Shares(), store.Audit(),
		store.Ledger(), blob)

	require.NoError(t, handlerSet.AuthService().EnsureAdmin(context.Background()))

	engine := gin.New()
	handlerSet.Register(engine.Group(""))

	return &testServer{engine: engine, cfg: cfg}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// login returns the session cookie for the given credentials.
func (ts *testServer) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	w := ts.do(jsonRequest(http.MethodPost, "/api/v1/auth/login", gin.H{
		"username": username,
		"password": password,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == ts.cfg.Session.CookieName {
			require.True(t, c.HttpOnly)
			return c
		}
	}
	t.Fatal("no session cookie in login response")
	return nil
}

func (ts *testServer) register(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	w := ts.do(jsonRequest(http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": username,
		"password": password,
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == ts.cfg.Session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie in register response")
	return nil
}

func multipartUpload(t *testing.T, path, filename, content string, autoRename bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if autoRename {
		require.NoError(t, mw.WriteField("autoRename", "true"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRegisterLoginAndMe(t *testing.T) {
	ts := newTestServer(t)

	cookie := ts.register(t, "alice", "Password1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	// Without credentials the same route answers 401.
	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerTokenAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "Password1")

	w := ts.do(jsonRequest(http.MethodPost, "/api/v1/auth/login", gin.H{
		"username": "alice",
		"password": "Password1",
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w = ts.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadDownloadDelete(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.register(t, "alice", "Password1")

	req := multipartUpload(t, "/api/v1/files", "hello.txt", "hello world", false)
	req.AddCookie(cookie)
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var file struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Checksum string `json:"checksum"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, "hello.txt", file.Name)
	require.NotEmpty(t, file.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/files/"+file.ID, nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, "hello world", string(body))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "hello.txt")
	assert.Equal(t, file.Checksum, w.Header().Get("X-Checksum-Sha256"))

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/files/"+file.ID, nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/files/"+file.ID, nil)
	req.AddCookie(cookie)
	w = ts.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadDuplicateNameConflict(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.register(t, "alice", "Password1")

	req := multipartUpload(t, "/api/v1/files", "dup.txt", "one", false)
	req.AddCookie(cookie)
	require.Equal(t, http.StatusCreated, ts.do(req).Code)

	req = multipartUpload(t, "/api/v1/files", "dup.txt", "two", false)
	req.AddCookie(cookie)
	w := ts.do(req)
	assert.Equal(t, http.StatusConflict, w.Code)

	req = multipartUpload(t, "/api/v1/files", "dup.txt", "two", true)
	req.AddCookie(cookie)
	w = ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"dup_1.txt"`)
}

func TestOtherUsersFileAnswers404(t *testing.T) {
	ts := newTestServer(t)
	aliceCookie := ts.register(t, "alice", "Password1")
	bobCookie := ts.register(t, "bob", "Password1")

	req := multipartUpload(t, "/api/v1/files", "secret.txt", "private", false)
	req.AddCookie(aliceCookie)
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code)

	var file struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/files/"+file.ID, nil)
	req.AddCookie(bobCookie)
	w = ts.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSharedDownloadFlow(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.register(t, "alice", "Password1")

	req := multipartUpload(t, "/api/v1/files", "pub.txt", "shared bytes", false)
	req.AddCookie(cookie)
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code)

	var file struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))

	req = jsonRequest(http.MethodPost, "/api/v1/files/"+file.ID+"/shares", gin.H{})
	req.AddCookie(cookie)
	w = ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var share struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &share))
	require.NotEmpty(t, share.URL)

	// The shared link needs no credentials.
	w = ts.do(httptest.NewRequest(http.MethodGet, share.URL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, "shared bytes", string(body))

	// Revoke, then the same link is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/files/"+file.ID+"/shares/"+share.ID, nil)
	req.AddCookie(cookie)
	require.Equal(t, http.StatusOK, ts.do(req).Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, share.URL, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSharedDownloadUnknownToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/s/definitely-not-a-token", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminPanelCloaking(t *testing.T) {
	ts := newTestServer(t)
	userCookie := ts.register(t, "alice", "Password1")

	// Unauthenticated probes get 401 from auth, non-admin users get the same
	// 404 an unmapped path would produce.
	req := httptest.NewRequest(http.MethodGet, ts.cfg.Admin.Prefix+"/users", nil)
	req.AddCookie(userCookie)
	w := ts.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	adminCookie := ts.login(t, "admin", "Bootstrap1")
	req = httptest.NewRequest(http.MethodGet, ts.cfg.Admin.Prefix+"/users", nil)
	req.AddCookie(adminCookie)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"admin"`)
}

func TestAdminUserManagement(t *testing.T) {
	ts := newTestServer(t)
	adminCookie := ts.login(t, "admin", "Bootstrap1")

	req := jsonRequest(http.MethodPost, ts.cfg.Admin.Prefix+"/users", gin.H{
		"username":   "carol",
		"password":   "Password1",
		"quotaBytes": 4096,
	})
	req.AddCookie(adminCookie)
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	req = jsonRequest(http.MethodPut, ts.cfg.Admin.Prefix+"/users/"+created.ID+"/quota", gin.H{
		"quotaBytes": 8192,
	})
	req.AddCookie(adminCookie)
	require.Equal(t, http.StatusOK, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodDelete, ts.cfg.Admin.Prefix+"/users/"+created.ID, nil)
	req.AddCookie(adminCookie)
	require.Equal(t, http.StatusOK, ts.do(req).Code)
}

func TestRegistrationClosed(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.OpenRegistration = false

	w := ts.do(jsonRequest(http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "late",
		"password": "Password1",
	}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
