package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/approval"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type memUserRepo struct {
	mu      sync.Mutex
	users   []*models.User
	updates int
}

func (r *memUserRepo) GetByID(ctx context.Context, id int64) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, true, nil
		}
	}
	return nil, false, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return nil, false, nil
}

func (r *memUserRepo) Create(ctx context.Context, tx *sql.Tx, user *models.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = int64(len(r.users) + 1)
	r.users = append(r.users, user)
	return user.ID, nil
}

func (r *memUserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	return nil
}

func (r *memUserRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.users {
		if u.ID == id {
			r.users = append(r.users[:i], r.users[i+1:]...)
			break
		}
	}
	return nil
}

type memKeyRepo struct {
	keys    []*models.ApiKey
	touched map[int64]time.Time
}

func (r *memKeyRepo) GetByHash(ctx context.Context, keyHash string) (*models.ApiKey, error) {
	for _, k := range r.keys {
		if k.KeyHash == keyHash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memKeyRepo) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	if r.touched == nil {
		r.touched = map[int64]time.Time{}
	}
	r.touched[id] = at
	return nil
}

func (r *memKeyRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	var out []*models.ApiKey
	for _, k := range r.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *memKeyRepo) Create(ctx context.Context, apiKey *models.ApiKey) (int64, error) {
	cp := *apiKey
	cp.ID = int64(len(r.keys) + 1)
	r.keys = append(r.keys, &cp)
	return cp.ID, nil
}

func (r *memKeyRepo) CheckByUserID(ctx context.Context, keyID, userID int64) (bool, error) {
	for _, k := range r.keys {
		if k.ID == keyID {
			return k.UserID == userID, nil
		}
	}
	return false, nil
}

func (r *memKeyRepo) Remove(ctx context.Context, id int64) error {
	for i, k := range r.keys {
		if k.ID == id {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	return nil
}

func newGoogleServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "google-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "g-1", "email": "clinic@example.com", "name": "Clinic"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAuthService(srv *httptest.Server, users *memUserRepo) *authService {
	return &authService{
		oauth2Config: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost:3000/login/callback",
			Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		},
		userInfoURL: srv.URL + "/userinfo",
		u:           users,
	}
}

func TestLoginCallback_RegistersOnce(t *testing.T) {
	srv := newGoogleServer(t)
	users := &memUserRepo{}
	auth := newTestAuthService(srv, users)

	first, err := auth.LoginCallback(context.Background(), "google-code")
	require.NoError(t, err)
	assert.Equal(t, "clinic@example.com", first.Email)
	assert.Equal(t, "owner", first.Role)

	second, err := auth.LoginCallback(context.Background(), "google-code")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, users.users, 1)
	assert.Zero(t, users.updates)
}

func TestLoginCallback_RefreshesProfileKeepsRole(t *testing.T) {
	srv := newGoogleServer(t)
	users := &memUserRepo{users: []*models.User{{ID: 4, GoogleID: "g-1", Email: "clinic@example.com", Name: "Old Clinic", Role: "editor"}}}
	auth := newTestAuthService(srv, users)

	user, err := auth.LoginCallback(context.Background(), "google-code")
	require.NoError(t, err)
	assert.Equal(t, int64(4), user.ID)
	assert.Equal(t, "Clinic", user.Name)
	assert.Equal(t, "editor", user.Role)
	assert.Equal(t, 1, users.updates)
}

func TestLoginCallback_Errors(t *testing.T) {
	srv := newGoogleServer(t)
	auth := newTestAuthService(srv, &memUserRepo{})

	_, err := auth.LoginCallback(context.Background(), "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = auth.LoginCallback(context.Background(), "stolen")
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
}

func TestAuthURL_CarriesState(t *testing.T) {
	srv := newGoogleServer(t)
	auth := newTestAuthService(srv, &memUserRepo{})

	u, err := url.Parse(auth.AuthURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
}

func TestPlatformService(t *testing.T) {
	accounts := newMemAccountRepo(connectedAccount())
	svc := &platformService{sa: accounts}
	svc.cfg.InstagramClientID = "ig-client"

	link, err := svc.GetAuthURL(context.Background(), "instagram", "session-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, INSTAGRAM_AUTH_URL))
	assert.Contains(t, link, "state=session-token")

	_, err = svc.GetAuthURL(context.Background(), "tiktok", "session-token")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	list, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = svc.Delete(context.Background(), 8, 3)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	require.NoError(t, svc.Delete(context.Background(), 7, 3))
	list, _ = svc.List(context.Background(), 7)
	assert.Empty(t, list)
}

func TestApiKeyService(t *testing.T) {
	keys := &memKeyRepo{}
	svc := NewApiKeyService(keys).(*apiKeyService)
	svc.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	created, err := svc.Create(ctx, owner, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Key, "pp_"))
	assert.Equal(t, "owner", created.Role)
	assert.Equal(t, created.Key[:10], created.Prefix)

	// only the hash is stored
	stored := keys.keys[0]
	assert.NotEqual(t, created.Key, stored.KeyHash)
	assert.NotContains(t, stored.KeyHash, created.Key)

	resolved, err := svc.Resolve(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), resolved.UserID)
	assert.Equal(t, "owner", resolved.Role)
	assert.Empty(t, resolved.Key)
	assert.Equal(t, fixedNow, keys.touched[created.ID])

	_, err = svc.Resolve(ctx, "pp_unknown")
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))

	listed, err := svc.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	for i := 1; i < maxApiKeys; i++ {
		_, err = svc.Create(ctx, owner, approval.RoleEditor)
		require.NoError(t, err)
	}
	_, err = svc.Create(ctx, owner, "")
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	err = svc.RemoveAPIKey(ctx, 8, created.ID)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	require.NoError(t, svc.RemoveAPIKey(ctx, 7, created.ID))
}

func TestApiKeyService_RoleScope(t *testing.T) {
	svc := NewApiKeyService(&memKeyRepo{})
	ctx := context.Background()
	editor := Actor{UserID: 9, Role: approval.RoleEditor}

	key, err := svc.Create(ctx, editor, "")
	require.NoError(t, err)
	assert.Equal(t, "editor", key.Role)

	_, err = svc.Create(ctx, editor, approval.RoleOwner)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	_, err = svc.Create(ctx, Actor{UserID: 9, Role: approval.RoleApprover}, approval.RoleEditor)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	key, err = svc.Create(ctx, owner, approval.RoleApprover)
	require.NoError(t, err)
	resolved, err := svc.Resolve(ctx, key.Key)
	require.NoError(t, err)
	assert.Equal(t, "approver", resolved.Role)
}

func TestUserService(t *testing.T) {
	users := &memUserRepo{users: []*models.User{{ID: 7, Email: "clinic@example.com"}}}
	svc := NewUserService(users)

	u, err := svc.GetUserInfo(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "clinic@example.com", u.Email)

	_, err = svc.GetUserInfo(context.Background(), 9)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	require.NoError(t, svc.RemoveUser(context.Background(), 7))
	assert.Empty(t, users.users)
}
