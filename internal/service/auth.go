package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/auth"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// AuthService handles registration and the two ways of logging in.
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)  ↘ PasswordService (bcrypt)
//
// It never touches cookies: it returns the token and the handler decides how
// to deliver it.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	cache     *cache.ReadThrough
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	rt *cache.ReadThrough,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		cache:     rt,
		logger:    logger,
	}
}

// AuthResult bundles the user with their freshly signed session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a local account with a hashed password.
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if !usernamePattern.MatchString(username) {
		return nil, apperror.ValidationFailed("username",
			"Username must be 3-32 characters of letters, digits, '.', '_' or '-'")
	}
	if !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "A valid email address is required")
	}
	if err := auth.CheckPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Privacy:      model.PrivacyPrivate,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("username", "Username or Email already in use")
		}
		return nil, fmt.Errorf("service/auth: creating user %s: %w", username, err)
	}

	s.cache.Invalidate(ctx, cache.AllUsersKey())
	s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("username", username))
	return user, nil
}

// Login checks the password and issues a session token.
// Unknown users yield ErrNotFound and wrong passwords ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.ValidationFailed("username", "Username and password are required")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: login for %s: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("login failed: wrong password", slog.String("username", username))
			return nil, apperror.Unauthorized("Invalid password")
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", username, err)
	}

	return s.issue(user)
}

// LoginWithGitHub finds the account matching the GitHub login or email, or
// creates one, and issues a session token. GitHub accounts have no local
// password, so they can only ever log in through GitHub.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.Login == "" {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.FindUserByUsernameOrEmail(ctx, gh.Login, gh.Email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		email := gh.Email
		if email == "" {
			email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, gh.Login)
		}
		user = &model.User{Username: gh.Login, Email: email, Privacy: model.PrivacyPrivate}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating GitHub user %s: %w", gh.Login, err)
		}
		s.cache.Invalidate(ctx, cache.AllUsersKey())
		s.logger.Info("user registered via GitHub", slog.String("userID", user.ID), slog.String("username", user.Username))
	default:
		return nil, fmt.Errorf("service/auth: finding GitHub user %s: %w", gh.Login, err)
	}

	return s.issue(user)
}

// Me returns the account behind a session identity.
func (s *AuthService) Me(ctx context.Context, id auth.Identity) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id.UserID, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.Username, err)
	}
	s.logger.Info("user logged in", slog.String("userID", user.ID), slog.String("username", user.Username))
	return &AuthResult{User: user, Token: token}, nil
}
