package models

import (
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// OperatorUser is an operator account for the operations API.
type OperatorUser struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:100;not null"`
	Role         string    `json:"role" gorm:"size:20;default:operator"`
	IsActive     bool      `json:"is_active" gorm:"default:true"`
	LastLoginAt  time.Time `json:"last_login_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// SetPassword hashes and stores the password.
func (u *OperatorUser) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a password against the stored hash.
func (u *OperatorUser) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// MigrateOperatorModels migrates operator account models.
func MigrateOperatorModels(db *gorm.DB) error {
	return db.AutoMigrate(&OperatorUser{})
}

// SeedDefaultOperator creates the default operator account if none exists.
// The initial password comes from OPERATOR_PASSWORD and must be rotated after
// first login.
func SeedDefaultOperator(db *gorm.DB) error {
	var count int64
	if err := db.Model(&OperatorUser{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("OPERATOR_PASSWORD")
	if password == "" {
		log.Println("OPERATOR_PASSWORD not set, skipping operator seed")
		return nil
	}

	operator := OperatorUser{
		Username: "operator",
		Role:     "admin",
		IsActive: true,
	}
	if err := operator.SetPassword(password); err != nil {
		return err
	}
	if err := db.Create(&operator).Error; err != nil {
		return err
	}

	log.Println("Seeded default operator account")
	return nil
}
