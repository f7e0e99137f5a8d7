package domain

import (
	"fmt"
	"strings"
	"time"
)

const MaxTodoTextLen = 2000

// Todo is a single item in a user's list. Rows are soft-deleted so the
// deletion can be replayed to clients that pulled the row earlier.
type Todo struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	UserID    string    `gorm:"type:text;not null;index" json:"userId"`
	Text      string    `gorm:"not null" json:"text"`
	Completed bool      `gorm:"not null;default:false" json:"completed"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	Version   int64     `gorm:"not null;index" json:"-"`
	Deleted   bool      `gorm:"not null;default:false" json:"-"`
}

func (Todo) TableName() string { return "todos" }

// NormalizeTodoText trims the text and checks its length.
func NormalizeTodoText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text cannot be empty", ErrInvalid)
	}
	if len([]rune(text)) > MaxTodoTextLen {
		return "", fmt.Errorf("%w: text longer than %d characters", ErrInvalid, MaxTodoTextLen)
	}
	return text, nil
}
