package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dealstream/api/internal/domain"
	"github.com/dealstream/api/internal/security"
	"github.com/dealstream/api/internal/service"
)

type stubUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (s *stubUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *stubUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s *stubUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubUserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	u, err := s.GetByEmail(ctx, email)
	return u != nil, err
}

func (s *stubUserStore) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func newTestAuthHandler(t *testing.T) (*AuthHandler, *stubUserStore, *security.TokenIssuer) {
	t.Helper()
	store := newStubUserStore()
	issuer := security.NewTokenIssuer("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
	svc := service.NewAuthService(store, issuer)
	return NewAuthHandler(svc, time.Hour, 24*time.Hour, false), store, issuer
}

func seedUser(t *testing.T, store *stubUserStore, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{
		ID:           uuid.New(),
		Username:     "casey",
		Email:        "casey@example.com",
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
	}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

func cookieByName(res *http.Response, name string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func assertCookiePairSet(t *testing.T, res *http.Response) {
	t.Helper()
	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieByName(res, name)
		require.NotNil(t, c, "missing %s cookie", name)
		assert.NotEmpty(t, c.Value)
		assert.True(t, c.HttpOnly)
		assert.Positive(t, c.MaxAge)
	}
}

func assertCookiePairCleared(t *testing.T, res *http.Response) {
	t.Helper()
	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieByName(res, name)
		require.NotNil(t, c, "missing %s cookie", name)
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestAuthHandler_Register(t *testing.T) {
	h, _, issuer := newTestAuthHandler(t)

	body, _ := json.Marshal(domain.UserCreate{
		Username: "casey",
		Email:    "casey@example.com",
		Password: "hunter2hunter2",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assertCookiePairSet(t, res)

	access := cookieByName(res, "accessToken")
	_, err := issuer.VerifyAccess(access.Value)
	assert.NoError(t, err)
}

func TestAuthHandler_RegisterInvalidBody(t *testing.T) {
	h, _, _ := newTestAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestAuthHandler_Login(t *testing.T) {
	h, store, _ := newTestAuthHandler(t)
	seedUser(t, store, "hunter2hunter2")

	body, _ := json.Marshal(domain.UserLogin{Email: "casey@example.com", Password: "hunter2hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assertCookiePairSet(t, res)
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	h, store, _ := newTestAuthHandler(t)
	seedUser(t, store, "hunter2hunter2")

	body, _ := json.Marshal(domain.UserLogin{Email: "casey@example.com", Password: "wrong-password"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestAuthHandler_RefreshRotatesPair(t *testing.T) {
	h, store, issuer := newTestAuthHandler(t)
	user := seedUser(t, store, "hunter2hunter2")

	pair, err := issuer.Issue(user.ID, user.Role)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: pair.RefreshToken})
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assertCookiePairSet(t, res)

	claims, err := issuer.VerifyAccess(cookieByName(res, "accessToken").Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestAuthHandler_RefreshFailureClearsBothCookies(t *testing.T) {
	expiredIssuer := security.NewTokenIssuer("access-secret", "refresh-secret", -time.Minute, -time.Minute)

	tests := []struct {
		name   string
		cookie func(t *testing.T, store *stubUserStore) *http.Cookie
	}{
		{
			name:   "no cookie",
			cookie: func(*testing.T, *stubUserStore) *http.Cookie { return nil },
		},
		{
			name: "tampered token",
			cookie: func(*testing.T, *stubUserStore) *http.Cookie {
				return &http.Cookie{Name: "refreshToken", Value: "not-a-jwt"}
			},
		},
		{
			name: "expired token",
			cookie: func(t *testing.T, store *stubUserStore) *http.Cookie {
				user := seedUser(t, store, "hunter2hunter2")
				pair, err := expiredIssuer.Issue(user.ID, user.Role)
				require.NoError(t, err)
				return &http.Cookie{Name: "refreshToken", Value: pair.RefreshToken}
			},
		},
		{
			name: "account deleted",
			cookie: func(t *testing.T, store *stubUserStore) *http.Cookie {
				user := seedUser(t, store, "hunter2hunter2")
				issuer := security.NewTokenIssuer("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
				pair, err := issuer.Issue(user.ID, user.Role)
				require.NoError(t, err)
				store.remove(user.ID)
				return &http.Cookie{Name: "refreshToken", Value: pair.RefreshToken}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _ := newTestAuthHandler(t)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
			if c := tt.cookie(t, store); c != nil {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			h.Refresh(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assertCookiePairCleared(t, rec.Result())
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	h, _, _ := newTestAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assertCookiePairCleared(t, rec.Result())
}
