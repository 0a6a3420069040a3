package user

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/masomo/feeledger/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user not found")
	ErrUserExists           = errors.New("a user with this username or email already exists")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUserExists when another user (not in excludedUsers) holds username or email.
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclUsers...); err != nil {
		if errors.Cause(err) == ErrUserExists {
			return core.NewValidationError(err,
				core.FieldError{Field: "username", Error: err.Error()},
				core.FieldError{Field: "email", Error: err.Error()},
			)
		}
		return errors.Wrap(err, "checking uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Authenticate checks the credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = nowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

// AddOrUpdate creates the user or resets an existing one's password (and roles when admin is set).
func (svc *Service) AddOrUpdate(ctx context.Context, uname, email, pwd string, isAdmin bool) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: lookup})
	if err != nil && errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "finding user")
	}
	exists := err == nil

	if err := validatePassword(pwd, usr.Name, uname, email); err != nil {
		return User{}, err
	}

	now := nowFunc().UTC()
	if !exists {
		usr = User{Name: uname, Username: uname, Email: email, CreatedAt: now}
	}
	if isAdmin {
		usr.Roles = []string{RoleAdminOwner}
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	if exists {
		return svc.repo.UpdateUser(ctx, usr)
	}
	return svc.repo.CreateUser(ctx, usr)
}
