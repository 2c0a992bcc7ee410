package orm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

func (db *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, &BadInputError{Reason: "user id must be provided"}
	}

	user, err := gorm.G[User](db.gormDB).Where(&User{ID: id}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get user by id", id)
	}

	return &user, nil
}

func (db *DB) CreateUser(ctx context.Context, user *User) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(user).Error,
		"create user",
		user.ID,
	)
}

func (db *DB) SaveUser(ctx context.Context, user *User) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Save(user).Error,
		"save user",
		user.ID,
	)
}

// GetUserByTokenHash resolves an API token hash to its non-deleted
// owner. Revoked tokens and deleted users both come back NotFound.
func (db *DB) GetUserByTokenHash(ctx context.Context, hash string) (*User, error) {
	if hash == "" {
		return nil, &BadInputError{Reason: "token hash must be provided"}
	}

	token, err := gorm.G[APIToken](
		db.gormDB,
	).Where(&APIToken{Hash: hash}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get api token", "")
	}
	if token.RevokedAt != nil {
		return nil, &NotFoundError{Search: "api token (revoked)"}
	}

	user, err := db.GetUserByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if user.DeletedAt != nil {
		return nil, &NotFoundError{Search: "user for api token (deleted)"}
	}

	return user, nil
}

func (db *DB) CreateToken(ctx context.Context, token *APIToken) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(token).Error,
		"create api token",
		fmt.Sprintf("user=%s, label=%s", token.UserID, token.Label),
	)
}

func (db *DB) RevokeToken(ctx context.Context, hash string) error {
	now := time.Now().UTC()

	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Model(&APIToken{}).
			Where("hash = ?", hash).
			Update("revoked_at", &now).Error,
		"revoke api token",
		"",
	)
}
