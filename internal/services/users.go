package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"room-chat-service/internal/models"
	"room-chat-service/internal/repositories"
)

// LoginRequest identifies a user by nickname and optionally updates the profile.
type LoginRequest struct {
	Nickname     string
	ProfileColor string
	ProfileImage string
}

// UserDirectory resolves and registers users by nickname.
type UserDirectory struct {
	store repositories.Store
	clock Clock
}

// NewUserDirectory constructs a UserDirectory.
func NewUserDirectory(store repositories.Store, clock Clock) *UserDirectory {
	return &UserDirectory{store: store, clock: orSystemClock(clock)}
}

// Login returns the user with req.Nickname, creating it on first use. An
// existing user's activity time and any supplied profile fields are refreshed.
func (d *UserDirectory) Login(ctx context.Context, req LoginRequest) (user models.User, created bool, err error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	if err := validateInput(nicknameInput{Nickname: req.Nickname}); err != nil {
		return models.User{}, false, err
	}

	user, err = d.store.Users().GetUserByNickname(ctx, req.Nickname)
	if errors.Is(err, repositories.ErrUserNotFound) {
		user, err = d.create(ctx, req)
		if errors.Is(err, repositories.ErrNicknameTaken) {
			// lost a registration race; the winner's row is ours
			return d.Login(ctx, req)
		}
		if err != nil {
			return models.User{}, false, err
		}
		return user, true, nil
	}
	if err != nil {
		return models.User{}, false, err
	}

	user.LastActiveAt = d.clock()
	if req.ProfileColor != "" {
		user.ProfileColor = req.ProfileColor
	}
	if req.ProfileImage != "" {
		user.ProfileImage = req.ProfileImage
	}
	if err := d.store.Users().UpdateUser(ctx, user); err != nil {
		return models.User{}, false, err
	}
	log.Info().Int64("user_id", user.ID).Msg("user logged in")
	return user, false, nil
}

// Register creates a user, failing with Conflict when the nickname is taken.
func (d *UserDirectory) Register(ctx context.Context, req LoginRequest) (models.User, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	if err := validateInput(nicknameInput{Nickname: req.Nickname}); err != nil {
		return models.User{}, err
	}
	exists, err := d.store.Users().NicknameExists(ctx, req.Nickname)
	if err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, repositories.ErrNicknameTaken
	}
	return d.create(ctx, req)
}

func (d *UserDirectory) create(ctx context.Context, req LoginRequest) (models.User, error) {
	user := models.User{
		Nickname:     req.Nickname,
		ProfileColor: req.ProfileColor,
		ProfileImage: req.ProfileImage,
	}
	if user.ProfileColor == "" {
		user.ProfileColor = models.DefaultProfileColor
	}
	if err := d.store.Users().CreateUser(ctx, &user); err != nil {
		return models.User{}, err
	}
	log.Info().Int64("user_id", user.ID).Str("nickname", user.Nickname).Msg("user registered")
	return user, nil
}

func (d *UserDirectory) GetUser(ctx context.Context, userID int64) (models.User, error) {
	return d.store.Users().GetUser(ctx, userID)
}

func (d *UserDirectory) GetUserByNickname(ctx context.Context, nickname string) (models.User, error) {
	return d.store.Users().GetUserByNickname(ctx, strings.TrimSpace(nickname))
}

// NicknameAvailable reports whether nickname is valid and unused.
func (d *UserDirectory) NicknameAvailable(ctx context.Context, nickname string) (bool, error) {
	nickname = strings.TrimSpace(nickname)
	if err := validateInput(nicknameInput{Nickname: nickname}); err != nil {
		return false, err
	}
	exists, err := d.store.Users().NicknameExists(ctx, nickname)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
