package app

import (
	"fmt"
	"strings"
	"time"

	"bookshelf/pkg/domain"
)

// ProfileUpdate carries the editable fields of the caller's own profile.
type ProfileUpdate struct {
	Username       *string
	Bio            *string
	Avatar         *string
	FavoriteGenres *[]string
}

// GetUser fetches a user's public profile.
func (a *App) GetUser(id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile applies the caller's profile changes. Nil fields are left
// untouched.
func (a *App) UpdateProfile(userID string, upd ProfileUpdate) (domain.User, error) {
	user, err := a.GetUser(userID)
	if err != nil {
		return domain.User{}, err
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return domain.User{}, validationErr("username", "must not be empty")
		}
		user.Username = username
	}
	if upd.Bio != nil {
		user.Bio = *upd.Bio
	}
	if upd.Avatar != nil {
		user.Avatar = *upd.Avatar
	}
	if upd.FavoriteGenres != nil {
		user.FavoriteGenres = *upd.FavoriteGenres
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}
