package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
	appfs "github.com/masomo/feeledger/fs"
	"github.com/masomo/feeledger/services/email"
	"github.com/masomo/feeledger/services/logger"
	"github.com/masomo/feeledger/storage/database/inmem"
)

// Env is an in-memory application: services wired on an inmem database.
type Env struct {
	Conf     *core.Config
	DB       *inmemdb.DB
	Store    fee.Store
	UserRepo user.Repository
	UserSvc  *user.Service
	FeeSvc   *fee.Service
	Logger   core.Logger
	Mailer   core.EmailService
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	conf := core.NewTestConfig()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	if err = core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true); err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	emailsvc.ResetSentMessages()

	env := &Env{
		Conf:     conf,
		DB:       db,
		Store:    inmemdb.NewFeeStore(db),
		UserRepo: inmemdb.NewUserRepository(db),
		Logger:   logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf),
	}
	env.Mailer = emailsvc.NewConsoleServiceMock(conf, env.Logger)
	env.UserSvc = user.NewService(env.UserRepo)
	env.FeeSvc = fee.NewService(conf, env.Store, env.UserSvc, env.Mailer, env.Logger)
	return env
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (env *Env) AddClass(t *testing.T, name, year string) fee.Class {
	t.Helper()
	class, err := env.DB.AddClass(fee.Class{Name: name, Year: year, IsActive: true})
	if err != nil {
		t.Fatalf("AddClass() failed: %v", err)
	}
	return class
}

// AddStudent seeds a student with `wallet` in its wallet; `accounts` links its own user
// account, then its parent's.
func (env *Env) AddStudent(t *testing.T, classID, wallet string, accounts ...string) fee.Student {
	t.Helper()
	std := fee.Student{ClassID: classID, Name: "student", WalletBalance: decimal.RequireFromString(wallet)}
	if len(accounts) > 0 && accounts[0] != "" {
		std.UserID = null.StringFrom(accounts[0])
	}
	if len(accounts) > 1 && accounts[1] != "" {
		std.ParentID = null.StringFrom(accounts[1])
	}
	std, err := env.DB.AddStudent(std)
	if err != nil {
		t.Fatalf("AddStudent() failed: %v", err)
	}
	return std
}

func (env *Env) CreateCategory(t *testing.T, name string) fee.Category {
	t.Helper()
	cat, err := env.FeeSvc.CreateCategory(context.Background(), fee.NewCategory{Name: name})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}

func (env *Env) CreateStructure(t *testing.T, classID, categoryID, amount string, dueDate fee.Date) fee.Structure {
	t.Helper()
	st, err := env.FeeSvc.CreateStructure(context.Background(), fee.NewStructure{
		ClassID:    classID,
		CategoryID: categoryID,
		Amount:     decimal.RequireFromString(amount),
		DueDate:    dueDate,
	})
	if err != nil {
		t.Fatalf("CreateStructure() failed: %v", err)
	}
	return st
}

// Wallet returns the committed wallet balance of a student.
func (env *Env) Wallet(t *testing.T, studentID string) decimal.Decimal {
	t.Helper()
	balance, err := env.Store.Wallet().Balance(context.Background(), studentID)
	if err != nil {
		t.Fatalf("Wallet() failed: %v", err)
	}
	return balance
}

// NextMonth is a due date safely in the future.
func NextMonth() fee.Date {
	return fee.DateOf(time.Now().UTC().AddDate(0, 1, 0))
}
