package fee

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/shopspring/decimal"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/user"
)

var nowFunc = time.Now // mockable

type (
	// UserGetter resolves the user accounts receipts are mailed to.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		conf   core.FeesConfig
		store  Store
		users  UserGetter
		mailer core.EmailService
		logger core.Logger
	}
)

func NewService(conf *core.Config, store Store, users UserGetter, mailer core.EmailService, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(mailer, "mailer"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	fees := conf.Fees
	if fees.Location == nil {
		fees.Location = time.UTC
	}
	return &Service{
		conf:   fees,
		store:  store,
		users:  users,
		mailer: mailer,
		logger: logger,
	}
}

func (svc *Service) now() time.Time {
	return nowFunc().In(svc.conf.Location)
}

// today returns the current calendar date in the configured location.
func (svc *Service) today() Date {
	return DateOf(svc.now())
}

// checkAmount validates a money input and returns it rounded.
func (svc *Service) checkAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = core.RoundMoney(amount)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if max := svc.conf.MaxPaymentAmount; max.IsPositive() && amount.GreaterThan(max) {
		return decimal.Zero, amountTooLargeError(max)
	}
	return amount, nil
}

// checkDueDate rejects zero and (unless allowed) past due dates.
func (svc *Service) checkDueDate(d Date) error {
	if d.IsZero() {
		return ErrDueDateRequired
	}
	if !svc.conf.AllowPastDueDate && d.Before(svc.today().Time) {
		return ErrPastDueDate
	}
	return nil
}

func newID() string {
	return uuid.New().String()
}

// newTransactionID returns a caller-visible id like `TXN-1612345678901-3F2A9C01`.
func newTransactionID(now time.Time, auto bool) string {
	prefix := "TXN-"
	if auto {
		prefix = "TXN-AUTO-"
	}
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("%s%d-%s", prefix, now.UnixNano()/int64(time.Millisecond), suffix)
}
