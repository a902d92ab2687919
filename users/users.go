package users

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// RoleType discriminates the two account kinds the marketplace knows about.
type RoleType string

const (
	RoleClient  RoleType = "client"  // Books sessions with trainers
	RoleTrainer RoleType = "trainer" // Offers sessions, registers with documents
)

// User is the cached remote profile. The server owns the record; this struct
// is a snapshot used for display and offline fallback, never a source of truth.
type User struct {
	ID           string   `json:"id,omitempty"`
	Email        string   `json:"email,omitempty"`
	Username     string   `json:"username,omitempty"`
	BusinessName string   `json:"business_name,omitempty"`
	Address      string   `json:"address,omitempty"`
	ContactNo    string   `json:"contact_no,omitempty"`
	BusinessType string   `json:"business_type,omitempty"`
	PanVatNo     string   `json:"pan_vat_no,omitempty"`
	ProfileImage string   `json:"profile_image,omitempty"`
	Role         RoleType `json:"role,omitempty"`
}

// IsTrainer reports whether the profile carries the trainer role.
func (u User) IsTrainer() bool {
	return u.Role == RoleTrainer
}

// Marshal serializes a profile for the credential cache.
func Marshal(u *User) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", errors.Wrap(err, "[users.Marshal] json.Marshal")
	}
	return string(b), nil
}

// Unmarshal decodes a cached profile previously produced by Marshal.
func Unmarshal(serialized string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(serialized), &u); err != nil {
		return nil, errors.Wrap(err, "[users.Unmarshal] json.Unmarshal")
	}
	return &u, nil
}

// NormalizeEmail applies the canonical form used everywhere an email is sent
// or stored: surrounding whitespace dropped, lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
