package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

var validUsername = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,37}[a-zA-Z0-9])?$`)

const minPasswordLength = 8

type UserService struct {
	db       database.DB
	auth     *auth.Service
	activity *ActivityService
}

func NewUserService(db database.DB, authSvc *auth.Service, activity *ActivityService) *UserService {
	return &UserService{db: db, auth: authSvc, activity: activity}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if !validUsername.MatchString(username) {
		return nil, invalid("invalid username %q", username)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, invalid("password must be at least %d characters", minPasswordLength)
	}
	if _, err := s.db.GetOrg(ctx, username); err == nil {
		return nil, mapDBErr(database.ErrDuplicate, "user "+username)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	return user, nil
}

// Login checks credentials for a username or email and returns a session token.
func (s *UserService) Login(ctx context.Context, login, password string) (string, *models.User, error) {
	login = strings.TrimSpace(login)
	var (
		user *models.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.db.GetUserByEmail(ctx, login)
	} else {
		user, err = s.db.GetUserByUsername(ctx, login)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("load user: %w", err)
	}
	if err := s.auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, err
	}
	token, err := s.auth.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, user, nil
}

// Actor resolves authenticated claims into an Actor, reloading the admin flag.
func (s *UserService) Actor(ctx context.Context, claims *auth.Claims) (*Actor, error) {
	if claims == nil {
		return nil, nil
	}
	user, err := s.db.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, mapDBErr(err, "session user")
	}
	return &Actor{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}, nil
}

func (s *UserService) Get(ctx context.Context, username string) (*models.User, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapDBErr(err, fmt.Sprintf("user %d", id))
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, page, perPage int) ([]models.User, error) {
	limit, offset := normalizePage(page, perPage, 30, 100)
	users, err := s.db.ListUsers(ctx, limit, offset)
	return users, mapDBErr(err, "list users")
}

// ProfileUpdate carries the profile fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name            *string `json:"name"`
	Bio             *string `json:"bio"`
	Location        *string `json:"location"`
	Company         *string `json:"company"`
	Website         *string `json:"website"`
	TwitterUsername *string `json:"twitter_username"`
}

func (s *UserService) UpdateProfile(ctx context.Context, actor *Actor, in ProfileUpdate) (*models.User, error) {
	if !actor.authenticated() {
		return nil, forbidden("profile update requires authentication")
	}
	user, err := s.db.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, mapDBErr(err, "user")
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&user.Name, in.Name)
	set(&user.Bio, in.Bio)
	set(&user.Location, in.Location)
	set(&user.Company, in.Company)
	set(&user.Website, in.Website)
	set(&user.TwitterUsername, in.TwitterUsername)
	if err := s.db.UpdateUserProfile(ctx, user); err != nil {
		return nil, mapDBErr(err, "update profile")
	}
	return user, nil
}

// --- Follows ---

func (s *UserService) Follow(ctx context.Context, actor *Actor, username string) error {
	if !actor.authenticated() {
		return forbidden("follow requires authentication")
	}
	target, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	if target.ID == actor.ID {
		return invalid("users cannot follow themselves")
	}
	if err := s.db.FollowUser(ctx, actor.ID, target.ID); err != nil {
		return mapDBErr(err, "follow "+username)
	}
	s.activity.Record(ctx, actor, models.EventFollow, nil, map[string]any{"target": target.Username})
	return nil
}

func (s *UserService) Unfollow(ctx context.Context, actor *Actor, username string) error {
	if !actor.authenticated() {
		return forbidden("unfollow requires authentication")
	}
	target, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	return mapDBErr(s.db.UnfollowUser(ctx, actor.ID, target.ID), "follow of "+username)
}

func (s *UserService) IsFollowing(ctx context.Context, follower, following string) (bool, error) {
	a, err := s.Get(ctx, follower)
	if err != nil {
		return false, err
	}
	b, err := s.Get(ctx, following)
	if err != nil {
		return false, err
	}
	ok, err := s.db.IsFollowing(ctx, a.ID, b.ID)
	return ok, mapDBErr(err, "follow lookup")
}

func (s *UserService) Followers(ctx context.Context, username string, page, perPage int) ([]models.User, error) {
	user, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	users, err := s.db.ListFollowers(ctx, user.ID, limit, offset)
	return users, mapDBErr(err, "list followers")
}

func (s *UserService) Following(ctx context.Context, username string, page, perPage int) ([]models.User, error) {
	user, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	users, err := s.db.ListFollowing(ctx, user.ID, limit, offset)
	return users, mapDBErr(err, "list following")
}

// --- SSH keys ---

// AddSSHKey parses an authorized_keys line and stores it under its SHA256 fingerprint.
func (s *UserService) AddSSHKey(ctx context.Context, actor *Actor, title, key string) (*models.SSHKey, error) {
	if !actor.authenticated() {
		return nil, forbidden("ssh keys require authentication")
	}
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(key)))
	if err != nil {
		return nil, invalid("invalid public key: %v", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = comment
	}
	if title == "" {
		return nil, invalid("title is required")
	}
	k := &models.SSHKey{
		UserID:      actor.ID,
		Title:       title,
		Key:         strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))),
		Fingerprint: ssh.FingerprintSHA256(pub),
		KeyType:     pub.Type(),
	}
	if err := s.db.CreateSSHKey(ctx, k); err != nil {
		return nil, mapDBErr(err, "ssh key "+k.Fingerprint)
	}
	return k, nil
}

func (s *UserService) ListSSHKeys(ctx context.Context, actor *Actor) ([]models.SSHKey, error) {
	if !actor.authenticated() {
		return nil, forbidden("ssh keys require authentication")
	}
	keys, err := s.db.ListSSHKeys(ctx, actor.ID)
	return keys, mapDBErr(err, "list ssh keys")
}

func (s *UserService) DeleteSSHKey(ctx context.Context, actor *Actor, id int64) error {
	if !actor.authenticated() {
		return forbidden("ssh keys require authentication")
	}
	return mapDBErr(s.db.DeleteSSHKey(ctx, id, actor.ID), fmt.Sprintf("ssh key %d", id))
}

// --- Access tokens ---

// CreateAccessToken mints a personal access token. The plaintext is returned
// once; only its hash is stored.
func (s *UserService) CreateAccessToken(ctx context.Context, actor *Actor, name string, scopes []string, ttl time.Duration) (string, *models.AccessToken, error) {
	if !actor.authenticated() {
		return "", nil, forbidden("access tokens require authentication")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, invalid("token name is required")
	}
	if len(scopes) == 0 {
		scopes = []string{auth.ScopeRead}
	}
	for _, sc := range scopes {
		if !auth.IsScope(sc) {
			return "", nil, invalid("unknown scope %q", sc)
		}
		if sc == auth.ScopeAdmin && !actor.IsAdmin {
			return "", nil, forbidden("admin scope requires a site administrator")
		}
	}
	if ttl < 0 {
		return "", nil, invalid("expiry must be in the future")
	}
	plain, prefix, hash, err := auth.NewAccessToken()
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	tok := &models.AccessToken{
		UserID:      actor.ID,
		Name:        name,
		TokenHash:   hash,
		TokenPrefix: prefix,
		Scopes:      scopes,
	}
	if ttl > 0 {
		exp := time.Now().UTC().Add(ttl)
		tok.ExpiresAt = &exp
	}
	if err := s.db.CreateAccessToken(ctx, tok); err != nil {
		return "", nil, mapDBErr(err, "access token")
	}
	return plain, tok, nil
}

func (s *UserService) ListAccessTokens(ctx context.Context, actor *Actor) ([]models.AccessToken, error) {
	if !actor.authenticated() {
		return nil, forbidden("access tokens require authentication")
	}
	toks, err := s.db.ListAccessTokens(ctx, actor.ID)
	return toks, mapDBErr(err, "list access tokens")
}

func (s *UserService) DeleteAccessToken(ctx context.Context, actor *Actor, id int64) error {
	if !actor.authenticated() {
		return forbidden("access tokens require authentication")
	}
	return mapDBErr(s.db.DeleteAccessToken(ctx, id, actor.ID), fmt.Sprintf("access token %d", id))
}

// ResolveAccessToken implements auth.TokenResolver.
func (s *UserService) ResolveAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	tok, err := s.db.GetAccessTokenByHash(ctx, auth.HashAccessToken(token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if tok.ExpiresAt != nil && !now.Before(*tok.ExpiresAt) {
		return nil, auth.ErrTokenExpired
	}
	user, err := s.db.GetUserByID(ctx, tok.UserID)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	if err := s.db.TouchAccessToken(ctx, tok.ID, now); err != nil {
		slog.Warn("touch access token", "token_id", tok.ID, "error", err)
	}
	return &auth.Claims{UserID: user.ID, Username: user.Username, Scopes: tok.Scopes, AccessToken: true}, nil
}

var _ auth.TokenResolver = (*UserService)(nil)
