package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
)

const idempotencyKeyHeader = "Idempotency-Key"

type feeApi struct {
	svc      *fee.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := feeApi{
		svc:      deps.FeeSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	fg := g.Group("/fees", jwt)
	admin := adminMiddleware()
	manager := feeManagerMiddleware()

	// catalog
	fg.POST("/categories", api.createCategory, manager)
	fg.GET("/categories", api.queryCategories, admin)
	fg.PUT("/categories/:id", api.updateCategory, manager)
	fg.DELETE("/categories/:id", api.deleteCategory, manager)

	// structures
	fg.POST("/structures", api.createStructure, manager)
	fg.GET("/structures/class/:classId", api.queryClassStructures, admin)
	fg.PUT("/structures/:id", api.updateStructure, manager)
	fg.DELETE("/structures/:id", api.deleteStructure, manager)

	// ledger
	fg.POST("/assign/bulk", api.assignToClass, manager)
	fg.DELETE("/assign/:ledgerId", api.unassign, manager)
	fg.GET("/dues/class/:classId", api.classDues, admin)
	fg.PUT("/dues/adjust/:ledgerId", api.adjust, manager)
	fg.GET("/dues/student/:studentId", api.studentDues, api.studentAccessMiddleware())
	fg.GET("/wallet/:studentId", api.studentWallet, api.studentAccessMiddleware())

	// payments
	fg.POST("/pay", api.collect, admin)
	fg.GET("/history/:studentId", api.paymentHistory, api.studentAccessMiddleware())
	fg.GET("/receipt/:transactionId", api.receipt)

	// reports
	fg.GET("/reports/daily", api.dailyCollection, admin)
	fg.GET("/reports/pending", api.pendingDues, admin)
}

// checkStudentAccess lets admins through, and otherwise only the student's own account or
// parent. Others get a 404 so student ids cannot be probed.
func (api *feeApi) checkStudentAccess(ctx echo.Context, studentID string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if claims.IsAdmin {
		return nil
	}
	std, err := api.svc.GetStudent(ctx.Request().Context(), studentID)
	if err != nil {
		if errors.Cause(err) == fee.ErrStudentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding student")
	}
	switch {
	case claims.IsStudent && std.UserID.Valid && std.UserID.String == claims.Subject:
		return nil
	case claims.IsParent && std.ParentID.Valid && std.ParentID.String == claims.Subject:
		return nil
	}
	return errHttpNotFound
}

func (api *feeApi) studentAccessMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := api.checkStudentAccess(ctx, ctx.Param("studentId")); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func (api *feeApi) actor(ctx echo.Context) (fee.Actor, error) {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return fee.Actor{}, errors.Wrap(err, "getting context user")
	}
	return fee.Actor{ID: usr.ID, Name: usr.Name}, nil
}

// Catalog

func (api *feeApi) createCategory(ctx echo.Context) error {
	var data fee.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *feeApi) queryCategories(ctx echo.Context) error {
	cats, err := api.svc.QueryCategories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *feeApi) updateCategory(ctx echo.Context) error {
	var data fee.UpdateCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.UpdateCategory(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *feeApi) deleteCategory(ctx echo.Context) error {
	if err := api.svc.DeleteCategory(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Structures

func (api *feeApi) createStructure(ctx echo.Context) error {
	var data fee.NewStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStructure")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.CreateStructure(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating structure")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *feeApi) queryClassStructures(ctx echo.Context) error {
	sts, err := api.svc.QueryStructuresByClass(ctx.Request().Context(), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "querying class structures")
	}
	return ctx.JSON(http.StatusOK, sts)
}

func (api *feeApi) updateStructure(ctx echo.Context) error {
	var data fee.UpdateStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStructure")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	update, err := api.svc.UpdateStructure(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating structure")
	}
	return ctx.JSON(http.StatusOK, update)
}

func (api *feeApi) deleteStructure(ctx echo.Context) error {
	summary, err := api.svc.DeleteStructure(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting structure")
	}
	return ctx.JSON(http.StatusOK, summary)
}

// Ledger

func (api *feeApi) assignToClass(ctx echo.Context) error {
	var data fee.Assignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Assignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	summary, err := api.svc.AssignToClass(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "assigning structure")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *feeApi) unassign(ctx echo.Context) error {
	summary, err := api.svc.Unassign(ctx.Request().Context(), ctx.Param("ledgerId"))
	if err != nil {
		return errors.Wrap(err, "unassigning structure")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *feeApi) classDues(ctx echo.Context) error {
	ledgers, err := api.svc.ClassLedgers(ctx.Request().Context(), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "querying class dues")
	}
	return ctx.JSON(http.StatusOK, ledgers)
}

func (api *feeApi) adjust(ctx echo.Context) error {
	var data fee.Adjustment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Adjustment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ledger, err := api.svc.ApplyAdjustment(ctx.Request().Context(), ctx.Param("ledgerId"), data)
	if err != nil {
		return errors.Wrap(err, "adjusting ledger")
	}
	return ctx.JSON(http.StatusOK, ledger)
}

func (api *feeApi) studentDues(ctx echo.Context) error {
	ledgers, err := api.svc.StudentLedgers(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "querying student dues")
	}
	return ctx.JSON(http.StatusOK, ledgers)
}

func (api *feeApi) studentWallet(ctx echo.Context) error {
	stmt, err := api.svc.StudentWallet(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "reading student wallet")
	}
	return ctx.JSON(http.StatusOK, stmt)
}

// Payments

func (api *feeApi) collect(ctx echo.Context) error {
	var data fee.Payment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Payment")
	}
	data.IdempotencyKey = ctx.Request().Header.Get(idempotencyKeyHeader)
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	rcpt, err := api.svc.Collect(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "collecting payment")
	}
	code := http.StatusCreated
	if rcpt.Replayed {
		code = http.StatusOK
	}
	return ctx.JSON(code, rcpt)
}

func (api *feeApi) paymentHistory(ctx echo.Context) error {
	txns, err := api.svc.PaymentHistory(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "querying payment history")
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *feeApi) receipt(ctx echo.Context) error {
	rcpt, err := api.svc.GetReceipt(ctx.Request().Context(), ctx.Param("transactionId"))
	if err != nil {
		return errors.Wrap(err, "fetching receipt")
	}
	if err = api.checkStudentAccess(ctx, rcpt.Transaction.StudentID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

// Reports

func (api *feeApi) dailyCollection(ctx echo.Context) error {
	var date fee.Date
	if s := ctx.QueryParam("date"); s != "" {
		var err error
		if date, err = fee.ParseDate(s); err != nil {
			return err
		}
	}

	report, err := api.svc.DailyCollection(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "building daily collection report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *feeApi) pendingDues(ctx echo.Context) error {
	report, err := api.svc.PendingDues(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building pending dues report")
	}
	return ctx.JSON(http.StatusOK, report)
}
