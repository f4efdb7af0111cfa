// Package models contains the data structures shared by the client packages.
package models

import "time"

// Role is a profile's permission level.
type Role string

// Profile roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated session record. It is persisted as
// {"email","id","token"} in the session slot.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Valid reports whether the identity carries both an id and an email.
func (i *Identity) Valid() bool {
	return i != nil && i.ID != "" && i.Email != ""
}

// Credentials are submitted to the authentication endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile is the full user record derived from an Identity.
type Profile struct {
	ID      string `json:"_id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Surname string `json:"surname" yaml:"surname"`
	Handle  string `json:"pseudo" yaml:"handle"`
	Email   string `json:"email" yaml:"email"`
	Role    Role   `json:"role" yaml:"role"`
}

// IsAdmin reports whether the profile has the admin role.
func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// Photo is a picture tagged with a film roll.
type Photo struct {
	ID            string `json:"_id" yaml:"id"`
	URL           string `json:"photoURL" yaml:"url"`
	Caption       string `json:"legende,omitempty" yaml:"caption,omitempty"`
	OwnerID       string `json:"userId" yaml:"owner_id"`
	FilmRollID    string `json:"pelliculeId" yaml:"film_roll_id"`
	LikesCount    int    `json:"likesCount" yaml:"likes"`
	CommentsCount int    `json:"commentsCount" yaml:"comments"`
	// Liked is derived per view for the current identity and never sent to the server.
	Liked bool `json:"-" yaml:"liked"`
}

// Like links a user to a photo. At most one exists per (PhotoID, UserID).
type Like struct {
	PhotoID string `json:"photoId" yaml:"photo_id"`
	UserID  string `json:"userId" yaml:"user_id"`
}

// Comment is a message left on a photo.
type Comment struct {
	ID           string    `json:"_id" yaml:"id"`
	PhotoID      string    `json:"photoId" yaml:"photo_id"`
	AuthorHandle string    `json:"pseudo,omitempty" yaml:"author,omitempty"`
	AuthorID     string    `json:"userId" yaml:"author_id"`
	Content      string    `json:"content" yaml:"content"`
	CreatedAt    time.Time `json:"date" yaml:"created_at"`
}

// FilmRoll is the named batch a photo belongs to.
type FilmRoll struct {
	ID   string `json:"_id" yaml:"id"`
	Name string `json:"nom" yaml:"name"`
}
