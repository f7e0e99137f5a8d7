package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const MaxNameLen = 100

var usernameRe = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// UserPublic is the profile every signed-in user may read.
type UserPublic struct {
	ID       string    `gorm:"primaryKey;type:text" json:"id"`
	Name     string    `gorm:"not null;default:''" json:"name"`
	Username string    `gorm:"type:text;uniqueIndex" json:"username"`
	Image    string    `gorm:"not null;default:''" json:"image"`
	JoinedAt time.Time `gorm:"not null" json:"joinedAt"`
	Version  int64     `gorm:"not null;index" json:"-"`
}

func (UserPublic) TableName() string { return "user_public" }

// UserState holds per-user client preferences; only its owner sees it.
type UserState struct {
	UserID   string `gorm:"primaryKey;type:text" json:"userId"`
	DarkMode bool   `gorm:"not null;default:false" json:"darkMode"`
	Version  int64  `gorm:"not null;index" json:"-"`
}

func (UserState) TableName() string { return "user_state" }

// Account is the credential row behind a UserPublic. It is never synced.
type Account struct {
	ID           string    `gorm:"primaryKey;type:text"`
	Email        string    `gorm:"type:text;uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// NormalizeUsername lower-cases and validates a username.
func NormalizeUsername(u string) (string, error) {
	u = strings.ToLower(strings.TrimSpace(u))
	if !usernameRe.MatchString(u) {
		return "", fmt.Errorf("%w: username must be 3-32 characters of a-z, 0-9 or _", ErrInvalid)
	}
	return u, nil
}

func NormalizeName(n string) (string, error) {
	n = strings.TrimSpace(n)
	if len([]rune(n)) > MaxNameLen {
		return "", fmt.Errorf("%w: name longer than %d characters", ErrInvalid, MaxNameLen)
	}
	return n, nil
}

func NormalizeEmail(e string) (string, error) {
	e = strings.ToLower(strings.TrimSpace(e))
	at := strings.LastIndex(e, "@")
	if at < 1 || at == len(e)-1 || strings.ContainsAny(e, " \t") {
		return "", fmt.Errorf("%w: invalid email", ErrInvalid)
	}
	return e, nil
}
