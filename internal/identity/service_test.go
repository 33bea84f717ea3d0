package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/rescuers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	users         map[string]*domain.User
	createUserErr error
	getByEmailErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*domain.User)}
}

func (m *mockRepository) CreateUser(_ context.Context, user *domain.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
	user.ID = "user-" + user.Email
	m.users[user.Email] = user
	return nil
}

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if m.getByEmailErr != nil {
		return nil, m.getByEmailErr
	}
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

// mockRescuers implements RescuerLookup for testing.
type mockRescuers struct {
	byEmail map[string]*domain.Rescuer
}

func (m *mockRescuers) Get(_ context.Context, id string) (*domain.Rescuer, error) {
	for _, r := range m.byEmail {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, rescuers.ErrRescuerNotFound
}

func (m *mockRescuers) GetByEmail(_ context.Context, email string) (*domain.Rescuer, error) {
	if r, ok := m.byEmail[email]; ok {
		return r, nil
	}
	return nil, rescuers.ErrRescuerNotFound
}

// mockAuthenticator implements Authenticator for testing.
type mockAuthenticator struct {
	generateErr error
}

func (m *mockAuthenticator) GenerateToken(_ context.Context, p *Principal) (*Token, error) {
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &Token{
		Value:     "token:" + p.ID + ":" + string(p.Role),
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockAuthenticator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] != "token" {
		return "", "", errors.New("malformed")
	}
	return parts[1], domain.Role(parts[2]), nil
}

func (m *mockAuthenticator) Type() string {
	return "mock"
}

type testEnv struct {
	service  *Service
	repo     *mockRepository
	rescuers *mockRescuers
	auth     *mockAuthenticator
}

func newTestEnv(t *testing.T, config Config) *testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rescuer-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		repo: newMockRepository(),
		rescuers: &mockRescuers{byEmail: map[string]*domain.Rescuer{
			"ravi@example.com": {
				ID:           "rescuer-1",
				Name:         "Ravi",
				Email:        "ravi@example.com",
				PasswordHash: string(hash),
				Role:         domain.RoleRescuer,
			},
		}},
		auth: &mockAuthenticator{},
	}
	env.service = NewService(env.repo, env.rescuers, env.auth, config)
	env.service.hashCost = bcrypt.MinCost
	return env
}

func TestService_Register(t *testing.T) {
	env := newTestEnv(t, Config{})

	user, err := env.service.Register(context.Background(), RegisterInput{
		Name:     " Asha ",
		Email:    " Asha@Example.com ",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Equal(t, "asha@example.com", user.Email)
	assert.Equal(t, "Asha", user.Name)
	assert.Equal(t, domain.RoleOfficer, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}

func TestService_Register_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		input   RegisterInput
		wantErr error
	}{
		{
			name:    "admin signup disabled",
			input:   RegisterInput{Email: "a@example.com", Password: "password123", Role: domain.RoleAdmin},
			wantErr: ErrAdminSignupDisabled,
		},
		{
			name:    "rescuer role",
			input:   RegisterInput{Email: "a@example.com", Password: "password123", Role: domain.RoleRescuer},
			wantErr: ErrInvalidRole,
		},
		{
			name:    "unknown role",
			input:   RegisterInput{Email: "a@example.com", Password: "password123", Role: "chief"},
			wantErr: ErrInvalidRole,
		},
		{
			name:    "email taken by rescuer",
			input:   RegisterInput{Email: "RAVI@example.com", Password: "password123"},
			wantErr: ErrEmailExists,
		},
		{
			name:    "password over bcrypt limit",
			input:   RegisterInput{Email: "a@example.com", Password: strings.Repeat("é", 40)},
			wantErr: ErrPasswordTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.config)
			_, err := env.service.Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, env.repo.users)
		})
	}
}

func TestService_Register_AdminAllowed(t *testing.T) {
	env := newTestEnv(t, Config{AllowAdminSignup: true})

	user, err := env.service.Register(context.Background(), RegisterInput{
		Email: "root@example.com", Password: "password123", Role: domain.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t, Config{})
	input := RegisterInput{Email: "asha@example.com", Password: "password123"}

	_, err := env.service.Register(context.Background(), input)
	require.NoError(t, err)

	_, err = env.service.Register(context.Background(), input)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestService_Register_RepositoryError(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.repo.createUserErr = errors.New("connection reset")

	_, err := env.service.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "password123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t, Config{})

	created, err := env.service.EnsureAdmin(context.Background(), "Admin@Example.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoleAdmin, env.repo.users["admin@example.com"].Role)

	created, err = env.service.EnsureAdmin(context.Background(), "admin@example.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, env.repo.users, 1)
}

func TestService_Login(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, err := env.service.Register(context.Background(), RegisterInput{
		Name: "Asha", Email: "asha@example.com", Password: "password123",
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    LoginInput
		wantID   string
		wantRole domain.Role
		wantErr  error
	}{
		{
			name:     "officer",
			input:    LoginInput{Email: "ASHA@example.com", Password: "password123"},
			wantID:   "user-asha@example.com",
			wantRole: domain.RoleOfficer,
		},
		{
			name:     "rescuer fallback",
			input:    LoginInput{Email: "ravi@example.com", Password: "rescuer-pass"},
			wantID:   "rescuer-1",
			wantRole: domain.RoleRescuer,
		},
		{
			name:    "wrong password",
			input:   LoginInput{Email: "asha@example.com", Password: "nope"},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "wrong rescuer password",
			input:   LoginInput{Email: "ravi@example.com", Password: "password123"},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "unknown email",
			input:   LoginInput{Email: "ghost@example.com", Password: "password123"},
			wantErr: ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.service.Login(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, result.User.ID)
			assert.Equal(t, tt.wantRole, result.User.Role)
			assert.Equal(t, "token:"+tt.wantID+":"+string(tt.wantRole), result.Token)
			assert.False(t, result.ExpiresAt.IsZero())
		})
	}
}

func TestService_Login_TokenError(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.auth.generateErr = errors.New("signing failed")

	_, err := env.service.Login(context.Background(), LoginInput{Email: "ravi@example.com", Password: "rescuer-pass"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login_StorageError(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.repo.getByEmailErr = errors.New("db down")

	_, err := env.service.Login(context.Background(), LoginInput{Email: "ravi@example.com", Password: "rescuer-pass"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestService_ValidateToken(t *testing.T) {
	env := newTestEnv(t, Config{})

	userID, role, err := env.service.ValidateToken(context.Background(), "token:u-1:officer")
	require.NoError(t, err)
	assert.Equal(t, "u-1", userID)
	assert.Equal(t, domain.RoleOfficer, role)

	_, _, err = env.service.ValidateToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Me(t *testing.T) {
	env := newTestEnv(t, Config{})
	user, err := env.service.Register(context.Background(), RegisterInput{
		Name: "Asha", Email: "asha@example.com", Password: "password123",
	})
	require.NoError(t, err)

	principal, err := env.service.Me(context.Background(), domain.Actor{UserID: user.ID, Role: domain.RoleOfficer})
	require.NoError(t, err)
	assert.Equal(t, "Asha", principal.Name)

	principal, err = env.service.Me(context.Background(), domain.Actor{UserID: "rescuer-1", Role: domain.RoleRescuer})
	require.NoError(t, err)
	assert.Equal(t, "Ravi", principal.Name)
	assert.Equal(t, domain.RoleRescuer, principal.Role)

	_, err = env.service.Me(context.Background(), domain.Actor{UserID: "missing", Role: domain.RoleRescuer})
	assert.ErrorIs(t, err, ErrUserNotFound)
}
