// Package auth verifies login credentials and maps them to a role.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role is the view a session may open.
type Role int

const (
	RoleNone Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	}
	return "none"
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(username, password string) (Role, error)
}

// NormalizeUsername trims surrounding whitespace. Case is preserved for display.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func isAdminName(candidate, admin string) bool {
	return strings.EqualFold(NormalizeUsername(candidate), NormalizeUsername(admin))
}

// StaticVerifier compares against fixed literals. It exists for demos and tests only;
// real deployments use HashedVerifier.
type StaticVerifier struct {
	AdminUsername  string
	AdminPassword  string
	SharedPassword string
}

// DemoVerifier returns the admin/1234 + shared "demo" password pair.
func DemoVerifier() StaticVerifier {
	return StaticVerifier{
		AdminUsername:  "admin",
		AdminPassword:  "1234",
		SharedPassword: "demo",
	}
}

func (v StaticVerifier) Verify(username, password string) (Role, error) {
	if isAdminName(username, v.AdminUsername) && constantTimeEqual(password, v.AdminPassword) {
		return RoleAdmin, nil
	}
	if NormalizeUsername(username) != "" && constantTimeEqual(password, v.SharedPassword) {
		return RoleUser, nil
	}
	return RoleNone, ErrInvalidCredentials
}

// HashedVerifier checks passwords against bcrypt hashes taken from configuration.
type HashedVerifier struct {
	AdminUsername string
	AdminHash     []byte
	SharedHash    []byte
}

// NewHashedVerifier rejects hashes bcrypt cannot read.
func NewHashedVerifier(adminUsername, adminHash, sharedHash string) (*HashedVerifier, error) {
	if NormalizeUsername(adminUsername) == "" {
		return nil, errors.New("admin username is required")
	}
	if _, err := bcrypt.Cost([]byte(adminHash)); err != nil {
		return nil, errors.New("admin password hash is not a bcrypt hash")
	}
	v := &HashedVerifier{
		AdminUsername: adminUsername,
		AdminHash:     []byte(adminHash),
	}
	if sharedHash != "" {
		if _, err := bcrypt.Cost([]byte(sharedHash)); err != nil {
			return nil, errors.New("shared password hash is not a bcrypt hash")
		}
		v.SharedHash = []byte(sharedHash)
	}
	return v, nil
}

func (v *HashedVerifier) Verify(username, password string) (Role, error) {
	if password == "" {
		return RoleNone, ErrInvalidCredentials
	}
	if isAdminName(username, v.AdminUsername) && bcrypt.CompareHashAndPassword(v.AdminHash, []byte(password)) == nil {
		return RoleAdmin, nil
	}
	if len(v.SharedHash) > 0 && NormalizeUsername(username) != "" &&
		bcrypt.CompareHashAndPassword(v.SharedHash, []byte(password)) == nil {
		return RoleUser, nil
	}
	return RoleNone, ErrInvalidCredentials
}

// HashPassword produces a bcrypt hash suitable for ADMIN_PASSWORD_HASH / SHARED_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
