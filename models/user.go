package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const passwordCost = 12

// User is a staff account. SchemaName binds it to its tenant.
type User struct {
	Id         string    `json:"id" gorm:"primaryKey"`
	FirstName  string    `json:"first_name" gorm:"not null"`
	LastName   string    `json:"last_name" gorm:"not null"`
	Password   []byte    `json:"-" gorm:"not null"`
	Email      string    `json:"email" gorm:"unique;not null"`
	SchemaName string    `json:"-" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	return
}

func (user *User) SetPassword(password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return err
	}
	user.Password = hashed
	return nil
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}
