package model

import "time"

// User is the identity record. Username is stored lower-cased; at most one
// refresh token is valid per user at any instant and the stored value is the
// validity oracle for rotation.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email         string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	FullName      string    `gorm:"size:128;not null" json:"full_name"`
	PasswordHash  string    `gorm:"size:255;not null" json:"-"`
	AvatarURL     string    `gorm:"size:512;not null" json:"avatar_url"`
	CoverImageURL string    `gorm:"size:512" json:"cover_image_url"`
	RefreshToken  string    `gorm:"size:512" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PublicUser is the outward projection of a User with credential fields
// stripped.
type PublicUser struct {
	ID            uint      `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	AvatarURL     string    `json:"avatar_url"`
	CoverImageURL string    `json:"cover_image_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u *User) Sanitize() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
