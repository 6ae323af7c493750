package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AdminUsername is the built-in account the spec requires to be undeletable.
const AdminUsername = "admin"

var (
	ErrUserExists     = errors.New("auth: user already exists")
	ErrUserNotFound   = errors.New("auth: user not found")
	ErrAdminImmutable = errors.New("auth: the built-in admin user cannot be deleted")
	ErrBadCredentials = errors.New("auth: invalid username or password")
)

// User is one gateway account. PasswordHash/Salt are never serialized to API
// responses (see PublicUser).
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Salt         string    `json:"salt"`
	Roles        []string  `json:"roles"`
	AllowedTools []string  `json:"allowed_tools,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) hasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether u carries the admin role.
func (u *User) IsAdmin() bool { return u.hasRole("admin") }

// ToolAllowed reports whether u may invoke tool. An empty AllowedTools list
// means no restriction.
func (u *User) ToolAllowed(tool string) bool {
	if len(u.AllowedTools) == 0 {
		return true
	}
	for _, t := range u.AllowedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// PublicUser is the API-facing projection with secrets stripped.
type PublicUser struct {
	Username     string    `json:"username"`
	Roles        []string  `json:"roles"`
	AllowedTools []string  `json:"allowed_tools,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) Public() PublicUser {
	return PublicUser{Username: u.Username, Roles: u.Roles, AllowedTools: u.AllowedTools, CreatedAt: u.CreatedAt}
}

type userDocument struct {
	Users map[string]User `json:"users"`
}

// UserStore is a file-backed account directory, persisted the same way as
// pkg/keystore: whole-document JSON with atomic temp-file rename.
type UserStore struct {
	mu   sync.RWMutex
	path string
	doc  userDocument
	now  func() time.Time
}

// OpenUserStore loads (or creates) the user directory file at path.
func OpenUserStore(path string) (*UserStore, error) {
	s := &UserStore{path: path, doc: userDocument{Users: map[string]User{}}, now: time.Now}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, s.persist()
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("auth: parse %s: %w", path, err)
	}
	return s, nil
}

func (s *UserStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("auth: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("auth: write tmp: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// EnsureAdmin creates the built-in admin user with the given password if it
// does not already exist; a no-op otherwise. Called at startup with the
// bootstrap admin password from the environment configuration. The account
// is always named AdminUsername; a configured admin username is not used.
func (s *UserStore) EnsureAdmin(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Users[AdminUsername]; ok {
		return nil
	}
	u, err := newUser(AdminUsername, password, []string{"admin"}, nil, s.now())
	if err != nil {
		return err
	}
	s.doc.Users[AdminUsername] = *u
	return s.persist()
}

// Create registers a new user. Fails if the username is already taken.
func (s *UserStore) Create(username, password string, roles, allowedTools []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Users[username]; ok {
		return ErrUserExists
	}
	u, err := newUser(username, password, roles, allowedTools, s.now())
	if err != nil {
		return err
	}
	s.doc.Users[username] = *u
	return s.persist()
}

func newUser(username, password string, roles, allowedTools []string, now time.Time) (*User, error) {
	hash, salt, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	return &User{
		Username:     username,
		PasswordHash: base64.StdEncoding.EncodeToString(hash),
		Salt:         base64.StdEncoding.EncodeToString(salt),
		Roles:        roles,
		AllowedTools: allowedTools,
		CreatedAt:    now.UTC(),
	}, nil
}

// Authenticate verifies username/password and returns the matching user.
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	s.mu.RLock()
	u, ok := s.doc.Users[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBadCredentials
	}

	hash, err := base64.StdEncoding.DecodeString(u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth: corrupt password hash for %q: %w", username, err)
	}
	salt, err := base64.StdEncoding.DecodeString(u.Salt)
	if err != nil {
		return nil, fmt.Errorf("auth: corrupt salt for %q: %w", username, err)
	}
	if !verifyPassword(password, hash, salt) {
		return nil, ErrBadCredentials
	}
	out := u
	return &out, nil
}

// SetPassword rotates a user's password hash.
func (s *UserStore) SetPassword(username, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.doc.Users[username]
	if !ok {
		return ErrUserNotFound
	}
	hash, salt, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = base64.StdEncoding.EncodeToString(hash)
	u.Salt = base64.StdEncoding.EncodeToString(salt)
	s.doc.Users[username] = u
	return s.persist()
}

// Delete removes a user. The built-in admin account can never be deleted.
func (s *UserStore) Delete(username string) error {
	if username == AdminUsername {
		return ErrAdminImmutable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Users[username]; !ok {
		return ErrUserNotFound
	}
	delete(s.doc.Users, username)
	return s.persist()
}

// SetPermissions replaces a user's roles and tool scope.
func (s *UserStore) SetPermissions(username string, roles, allowedTools []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.doc.Users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.Roles = roles
	u.AllowedTools = allowedTools
	s.doc.Users[username] = u
	return s.persist()
}

// Get returns one user by name.
func (s *UserStore) Get(username string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.doc.Users[username]
	if !ok {
		return nil, false
	}
	out := u
	return &out, true
}

// List returns every user, sorted by no particular order.
func (s *UserStore) List() []PublicUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PublicUser, 0, len(s.doc.Users))
	for _, u := range s.doc.Users {
		out = append(out, u.Public())
	}
	return out
}
