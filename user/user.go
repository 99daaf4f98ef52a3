// Package user defines the identity aggregate and its lifecycle rules:
// field validation, the explicit password-hashing pipeline applied on every
// write path, and the one-way password check used for sign-in.
package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/c360/socialgate/errors"
)

// HashCost is the bcrypt cost factor for passwords at rest.
const HashCost = 10

const (
	minPasswordLen = 7
	maxPasswordLen = 60
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// User is the persisted identity aggregate. Password holds a bcrypt hash at
// rest; it only ever contains plaintext between SetPassword and the
// HashPassword pipeline step, which every write path runs before committing.
type User struct {
	ID        string    `validate:"required"`
	Username  string    `validate:"required"`
	Email     string    `validate:"required,email"`
	Password  string    `validate:"required"`
	Role      string    `validate:"omitempty,oneof=ADMIN"`
	Name      string    `validate:"-"`
	Bio       string    `validate:"-"`
	AvatarID  string    `validate:"-"`
	CoverID   string    `validate:"-"`
	CreatedAt time.Time `validate:"-"`
	UpdatedAt time.Time `validate:"-"`

	// Relation sets: ids of other users. Membership is one-directional;
	// following does not imply followers.
	FollowerIDs  []string `validate:"-"`
	FollowingIDs []string `validate:"-"`

	// passwordChanged guards the hash pipeline: saves that do not touch
	// the password field must not re-hash an already-hashed value.
	passwordChanged bool
}

// New constructs an unsaved user with a plaintext password. Hashing is
// deferred to the write path via HashPassword.
func New(id, username, email, password string) (*User, error) {
	u := &User{
		ID:       id,
		Username: username,
		Email:    email,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword replaces the password with a new plaintext value and marks the
// field changed so the next write re-runs the hash pipeline.
func (u *User) SetPassword(plain string) error {
	if len(plain) < minPasswordLen || len(plain) > maxPasswordLen {
		return errors.WrapValidation(errors.ErrInvalidConfig, "user", "SetPassword",
			"password must be between 7 and 60 characters")
	}
	u.Password = plain
	u.passwordChanged = true
	return nil
}

// PasswordChanged reports whether the password field was modified since the
// last hash step.
func (u *User) PasswordChanged() bool {
	return u.passwordChanged
}

// HashPassword is the explicit pre-persist pipeline step: when the password
// field changed, replace the plaintext with a salted bcrypt hash before the
// write commits. Saves that did not touch the password are a no-op, so an
// already-hashed value is never hashed twice.
func (u *User) HashPassword() error {
	if !u.passwordChanged {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), HashCost)
	if err != nil {
		return errors.WrapTransient(err, "user", "HashPassword", "bcrypt")
	}
	u.Password = string(hash)
	u.passwordChanged = false
	return nil
}

// ValidatePassword compares a candidate plaintext against the stored hash.
// The hash is never reversed.
func (u *User) ValidatePassword(candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate)) == nil
}

// Validate checks field-level rules. Uniqueness of username and email is a
// store concern and checked there.
func (u *User) Validate() error {
	if err := validate.Struct(u); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			return errors.WrapValidation(err, "user", "Validate", validationMessage(invalid[0]))
		}
		return errors.WrapValidation(err, "user", "Validate", "invalid user")
	}
	return nil
}

// validationMessage maps a field violation to its domain message.
func validationMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		return "No valid email address provided."
	case "Username":
		return "Username is required."
	case "Password":
		return "Password is required."
	case "Role":
		return "Unknown role."
	default:
		return "Invalid user."
	}
}

// Clone returns a deep copy. Stores hand out clones so callers cannot mutate
// persisted state through shared slices.
func (u *User) Clone() *User {
	c := *u
	c.FollowerIDs = append([]string(nil), u.FollowerIDs...)
	c.FollowingIDs = append([]string(nil), u.FollowingIDs...)
	return &c
}
