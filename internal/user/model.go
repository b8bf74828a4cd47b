package user

// User is the full account row. PasswordHash never leaves the package.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
	DeletedAt    *int64 `json:"-"`
	IsOnline     bool   `json:"isOnline"`
	LastSeenAt   *int64 `json:"lastSeenAt,omitempty"`
}

// Deleted reports whether the account is soft-deleted.
func (u *User) Deleted() bool {
	return u.DeletedAt != nil
}

type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ID          string `json:"id"`
	Username    string `json:"username"`
}

// Profile is the public view of an account returned by search.
type Profile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	IsOnline   bool   `json:"isOnline"`
	LastSeenAt *int64 `json:"lastSeenAt,omitempty"`
}
