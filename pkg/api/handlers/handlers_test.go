package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/auth"
	"github.com/jordanlanch/refertrack/pkg/cache"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/jordanlanch/refertrack/pkg/referral"
	"github.com/jordanlanch/refertrack/pkg/storage"
	"github.com/jordanlanch/refertrack/pkg/testdata"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int64
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(_ context.Context, folder, filename string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	key := storage.ObjectKey(folder, filename, time.UnixMilli(m.seq))
	m.objects[key] = data
	return key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://videos.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type apiFixture struct {
	e      *echo.Echo
	svc    *referral.Service
	videos *memStore
	gen    *testdata.Generator
}

func newAPI(t *testing.T, settings Settings, withVideos bool) *apiFixture {
	t.Helper()

	db := testdata.OpenDB(t)
	mr := miniredis.RunT(t)
	redis, err := cache.NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { redis.Close() })

	roles := account.DefaultRoles()
	repo := account.NewRepository(db.DB)
	board := referral.NewLeaderboard(repo, roles, referral.LeaderboardOptions{Cache: redis, CacheTTL: time.Minute})
	svc := referral.NewService(db.DB, referral.Options{
		Roles:        roles,
		PhoneRegion:  "IN",
		PasswordCost: bcrypt.MinCost,
		Leaderboard:  board,
	})

	f := &apiFixture{e: echo.New(), svc: svc, gen: testdata.NewGenerator(7)}
	deps := Deps{
		Service:     svc,
		Leaderboard: board,
		Reconciler:  referral.NewReconciler(repo, roles, board, nil, nil),
		Issuer:      auth.NewTokenIssuer("test-secret", auth.NewTokenBlacklist(redis)),
		Settings:    settings,
	}
	if withVideos {
		f.videos = newMemStore()
		deps.Videos = f.videos
	}
	RegisterRoutes(f.e.Group("/api/v1"), deps, nil)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// signupBody builds a complete signup request for role.
func (f *apiFixture) signupBody(role account.Role, code string) models.SignupRequest {
	n := f.gen.NewAccount(role, code)
	return models.SignupRequest{
		Name:             n.Name,
		Email:            n.Email,
		PhoneNumber:      n.PhoneNumber,
		Password:         n.Password,
		ReferralCode:     code,
		SchoolName:       n.Profile.SchoolName,
		Standard:         n.Profile.Standard,
		Address:          n.Profile.Address,
		CollegeName:      n.Profile.CollegeName,
		YearOfGraduation: n.Profile.YearOfGraduation,
	}
}

func (f *apiFixture) signup(t *testing.T, role account.Role, code string) (models.AuthResponse, models.SignupRequest) {
	t.Helper()
	body := f.signupBody(role, code)
	rec := f.do(t, http.MethodPost, "/api/v1/"+string(role)+"/signup", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.AuthResponse](t, rec), body
}

func TestUserSignupLoginAndProfile(t *testing.T) {
	f := newAPI(t, Settings{}, false)

	rec := f.do(t, http.MethodPost, "/api/v1/user/signup", f.signupBody(account.RoleUser, ""), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "token" {
			cookie = ck
		}
	}
	require.NotNil(t, cookie, "user signup sets the session cookie")
	assert.True(t, cookie.HttpOnly)

	asha := decode[models.AuthResponse](t, rec)
	require.Len(t, asha.User.ReferralCode, referral.CodeLength)

	_, bodyB := f.signup(t, account.RoleUser, asha.User.ReferralCode)

	t.Run("me shows rank and referrals", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/user/me", nil, asha.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		profile := decode[referral.Profile](t, rec)
		assert.Equal(t, 1, profile.Account.ReferralCount)
		require.NotNil(t, profile.Rank)
		assert.Equal(t, 1, *profile.Rank)
		require.Len(t, profile.Referrals, 1)
		assert.Equal(t, bodyB.Name, profile.Referrals[0].Name)
	})

	t.Run("cookie authenticates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: asha.Token})
		rec := httptest.NewRecorder()
		f.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("login by phone", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/user/login", models.LoginRequest{
			PhoneNumber: bodyB.PhoneNumber,
			Password:    bodyB.Password,
		}, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotEmpty(t, decode[models.AuthResponse](t, rec).Token)
	})

	t.Run("wrong password is 400", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/user/login", models.LoginRequest{
			PhoneNumber: bodyB.PhoneNumber,
			Password:    "not-the-password",
		}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown login is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/user/login", models.LoginRequest{
			PhoneNumber: "9000000001",
			Password:    "whatever",
		}, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing token is 401", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/user/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("public leaderboard", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/user/leaderboard", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		entries := decode[[]referral.Entry](t, rec)
		require.Len(t, entries, 2)
		assert.Equal(t, asha.User.Name, entries[0].Name)
		assert.Equal(t, 1, entries[0].Rank)
		assert.NotContains(t, rec.Body.String(), asha.User.ReferralCode)
	})
}

func TestSignupValidation(t *testing.T) {
	f := newAPI(t, Settings{}, false)

	t.Run("missing role fields", func(t *testing.T) {
		body := f.signupBody(account.RoleCollege, "")
		body.CollegeName = ""
		rec := f.do(t, http.MethodPost, "/api/v1/college/signup", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "collegeName")
	})

	t.Run("malformed email", func(t *testing.T) {
		body := f.signupBody(account.RoleUser, "")
		body.Email = "not-an-email"
		rec := f.do(t, http.MethodPost, "/api/v1/user/signup", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "email")
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, first := f.signup(t, account.RoleUser, "")
		body := f.signupBody(account.RoleUser, "")
		body.Email = first.Email
		rec := f.do(t, http.MethodPost, "/api/v1/user/signup", body, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("admin signup closed", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/admin/signup", f.signupBody(account.RoleAdmin, ""), "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAPI(t, Settings{}, false)
	resp, _ := f.signup(t, account.RoleCollege, "")

	rec := f.do(t, http.MethodPost, "/api/v1/college/logout", nil, resp.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/college/me", nil, resp.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGroupsAreSeparate(t *testing.T) {
	f := newAPI(t, Settings{}, false)
	college, _ := f.signup(t, account.RoleCollege, "")

	rec := f.do(t, http.MethodGet, "/api/v1/user/me", nil, college.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/college/"+college.User.ID, nil, college.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteMe(t *testing.T) {
	f := newAPI(t, Settings{}, false)
	resp, body := f.signup(t, account.RoleUser, "")

	rec := f.do(t, http.MethodDelete, "/api/v1/user/me", nil, resp.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/user/me", nil, resp.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/user/login", models.LoginRequest{
		PhoneNumber: body.PhoneNumber,
		Password:    body.Password,
	}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "disabled accounts cannot log in")
}

func uploadVideo(t *testing.T, f *apiFixture, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "my intro.mp4")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake video bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestCollegeStudentVideos(t *testing.T) {
	f := newAPI(t, Settings{}, true)

	college, _ := f.signup(t, account.RoleCollege, "")
	other, _ := f.signup(t, account.RoleCollege, "")
	student, _ := f.signup(t, account.RoleSchool, college.User.ReferralCode)
	videoPath := "/api/v1/college/students/" + student.User.ID + "/video"

	t.Run("other college cannot upload", func(t *testing.T) {
		rec := uploadVideo(t, f, videoPath, other.Token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("upload then read signed url", func(t *testing.T) {
		rec := uploadVideo(t, f, videoPath, college.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, decode[models.VideoResponse](t, rec).VideoURL, "https://videos.test/Videos/")
		assert.Equal(t, 1, f.videos.len())

		rec = uploadVideo(t, f, videoPath, college.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, f.videos.len(), "replaced video is removed")

		rec = f.do(t, http.MethodGet, "/api/v1/college/me", nil, college.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		profile := decode[referral.Profile](t, rec)
		require.Len(t, profile.Referrals, 1)
		assert.Contains(t, profile.Referrals[0].VideoURL, "my_intro.mp4")
		assert.Equal(t, 1, profile.Account.ReferralCount)
	})

	t.Run("delete video", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, videoPath, nil, college.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Zero(t, f.videos.len())
	})

	t.Run("delete student", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/v1/college/students/"+student.User.ID, nil, college.Token)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/v1/college/me", nil, college.Token)
		profile := decode[referral.Profile](t, rec)
		assert.Empty(t, profile.Referrals)
		assert.Equal(t, 1, profile.Account.ReferralCount, "count is corrected by reconciliation, not here")
	})
}

func TestVideosWithoutStorage(t *testing.T) {
	f := newAPI(t, Settings{}, false)
	college, _ := f.signup(t, account.RoleCollege, "")
	student, _ := f.signup(t, account.RoleSchool, college.User.ReferralCode)

	rec := uploadVideo(t, f, "/api/v1/college/students/"+student.User.ID+"/video", college.Token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f := newAPI(t, Settings{AdminSignupOpen: true}, false)

	admin, _ := f.signup(t, account.RoleAdmin, "")
	asha, _ := f.signup(t, account.RoleUser, "")
	f.signup(t, account.RoleUser, asha.User.ReferralCode)

	t.Run("non-admins are refused", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/admin/accounts?role=user", nil, asha.Token)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("list accounts", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/admin/accounts?role=user&limit=10", nil, admin.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		list := decode[models.AccountListResponse](t, rec)
		assert.Len(t, list.Accounts, 2)
		assert.Equal(t, 10, list.Limit)

		rec = f.do(t, http.MethodGet, "/api/v1/admin/accounts?role=teacher", nil, admin.Token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get account", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/admin/accounts/"+asha.User.ID, nil, admin.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[referral.Profile](t, rec).Referrals, 1)
	})

	t.Run("reconcile", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/admin/reconcile?role=user", nil, admin.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		report := decode[referral.Report](t, rec)
		assert.Equal(t, 2, report.Processed)
		assert.Zero(t, report.Changed)

		rec = f.do(t, http.MethodPost, "/api/v1/admin/reconcile?role=school", nil, admin.Token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("export leaderboard", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/admin/leaderboard/user/export", nil, admin.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "spreadsheetml")
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "leaderboard-user-")
		assert.NotEmpty(t, rec.Body.Bytes())
	})

	t.Run("delete account", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/v1/admin/accounts/"+admin.User.ID, nil, admin.Token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "admins cannot delete themselves")

		rec = f.do(t, http.MethodDelete, "/api/v1/admin/accounts/"+asha.User.ID, nil, admin.Token)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/v1/user/me", nil, asha.Token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestValidateReferralCode(t *testing.T) {
	f := newAPI(t, Settings{}, false)
	college, _ := f.signup(t, account.RoleCollege, "")

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantValid  bool
	}{
		{"valid school code", "role=school&code=" + college.User.ReferralCode, http.StatusOK, true},
		{"wrong role", "role=user&code=" + college.User.ReferralCode, http.StatusOK, false},
		{"direct", "role=school&code=DIRECT", http.StatusOK, false},
		{"role cannot be referred", "role=college&code=ANY", http.StatusBadRequest, false},
		{"missing code", "role=school", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/referrals/validate?"+tt.query, nil, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				resp := decode[models.ValidateCodeResponse](t, rec)
				assert.Equal(t, tt.wantValid, resp.Valid)
				if tt.wantValid {
					assert.Equal(t, college.User.Name, resp.ReferrerName)
				}
			}
		})
	}
}
