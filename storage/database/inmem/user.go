package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/masomo/feeledger/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, excl := range excludedUsers {
		if excl.ID == usr.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	for _, usr := range repo.db.view().users {
		if isExcluded(usr, excludedUsers) {
			continue
		}
		if (username != "" && usr.Username == username) || (email != "" && usr.Email == email) {
			return user.ErrUserExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.update(func(t *tables) error {
		if err := repo.CheckUniqueness(ctx, usr.Username, usr.Email); err != nil {
			return err
		}
		usr.ID = uuid.New().String()
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	users := repo.db.view().users
	if filter.ID != "" {
		if usr, ok := users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.UsernameOrEmail != "" {
		for _, usr := range users {
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.update(func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		if err := repo.CheckUniqueness(ctx, usr.Username, usr.Email, usr); err != nil {
			return err
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}
