package models

import (
	"strings"
	"time"
)

// Customer is a CRM client in the tenant schema. A signature request may
// name one as its signer.
type Customer struct {
	Id           uint      `json:"id" gorm:"primaryKey"`
	CompanyName  string    `json:"company_name" gorm:"not null;unique"`
	Address      string    `json:"address" gorm:"not null"`
	City         string    `json:"city" gorm:"not null"`
	Country      string    `json:"country" gorm:"not null"`
	Zip          string    `json:"zip" gorm:"not null"`
	Homepage     string    `json:"homepage" gorm:"null"`
	UID          string    `json:"uid" gorm:"null"`
	Email        string    `json:"email" gorm:"unique;not null"`
	FirstName    string    `json:"first_name" gorm:"not null"`
	LastName     string    `json:"last_name" gorm:"not null"`
	PhoneNumber  string    `json:"phone_number"`
	MobileNumber string    `json:"mobile_number"`
	Salutation   string    `json:"salutation"`
	Title        string    `json:"title"`
	Active       bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName is the contact's full name, falling back to the company.
func (c Customer) DisplayName() string {
	if name := strings.TrimSpace(c.FirstName + " " + c.LastName); name != "" {
		return name
	}
	return c.CompanyName
}
