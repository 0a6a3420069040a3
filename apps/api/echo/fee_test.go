package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
	"github.com/masomo/feeledger/tests"
)

// feeApp is a class of two students (one linked to a student & a parent account) and the
// tokens of every kind of user.
type feeApp struct {
	*testApp
	class      fee.Class
	own, other fee.Student
	owner      string
	accountant string
	student    string
	parent     string
	stranger   string
}

func setupFees(t *testing.T) *feeApp {
	t.Helper()
	app := &feeApp{testApp: setup(t)}
	stdUsr := app.user(t, "kid", user.RoleStudent)
	parentUsr := app.user(t, "mama", user.RoleParent)

	app.class = app.env.AddClass(t, "Grade 5", "2024")
	app.own = app.env.AddStudent(t, app.class.ID, "0", stdUsr.ID, parentUsr.ID)
	app.other = app.env.AddStudent(t, app.class.ID, "0")

	app.owner = app.token(t, app.user(t, "owner", user.RoleAdminOwner))
	app.accountant = app.token(t, app.user(t, "bursar", user.RoleAdminAccountant))
	app.student = app.token(t, stdUsr)
	app.parent = app.token(t, parentUsr)
	app.stranger = app.token(t, app.user(t, "nosy", user.RoleParent))
	return app
}

func (app *feeApp) post(t *testing.T, path, token string, body interface{}, headers ...string) []byte {
	t.Helper()
	rec := app.do(http.MethodPost, path, token, marshalObj(t, body), headers...)
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code, rec.Body.String())
	return rec.Body.Bytes()
}

func Test_feeApi_permissions(t *testing.T) {
	app := setupFees(t)

	tests := []httpTest{
		{name: "auth required", path: "/v1/fees/categories", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "student cannot list categories", path: "/v1/fees/categories", token: app.student, wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"})},
		{name: "accountant can list categories", path: "/v1/fees/categories", token: app.accountant, wantCode: http.StatusOK},
		{
			name: "accountant cannot create structures", method: http.MethodPost, path: "/v1/fees/structures",
			body: []byte(`{}`), token: app.accountant, wantCode: http.StatusForbidden,
		},
		{name: "accountant reads reports", path: "/v1/fees/reports/pending", token: app.accountant, wantCode: http.StatusOK},
		{name: "parent cannot read reports", path: "/v1/fees/reports/daily", token: app.parent, wantCode: http.StatusForbidden},
		{name: "own student dues", path: "/v1/fees/dues/student/" + app.own.ID, token: app.student, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "own child dues", path: "/v1/fees/dues/student/" + app.own.ID, token: app.parent, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "other student dues", path: "/v1/fees/dues/student/" + app.other.ID, token: app.student, wantCode: http.StatusNotFound},
		{name: "stranger dues", path: "/v1/fees/history/" + app.own.ID, token: app.stranger, wantCode: http.StatusNotFound},
		{name: "unknown student", path: "/v1/fees/wallet/nope", token: app.parent, wantCode: http.StatusNotFound},
		{name: "admin unknown student", path: "/v1/fees/dues/student/nope", token: app.owner, wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "student not found"})},
	}
	runHTTPTests(t, app.testApp, tests)
}

func Test_feeApi_collect(t *testing.T) {
	app := setupFees(t)

	var cat fee.Category
	unmarshal(t, app.do(http.MethodPost, "/v1/fees/categories", app.owner, []byte(`{"name": "Tuition"}`)), &cat)
	assert.Equal(t, "TUITION", cat.Name)

	var st fee.Structure
	body := map[string]interface{}{
		"class_id":    app.class.ID,
		"category_id": cat.ID,
		"amount":      "500",
		"due_date":    testutil.NextMonth(),
	}
	unmarshalBytes(t, app.post(t, "/v1/fees/structures", app.owner, body), &st)
	assert.Equal(t, "500", st.Amount.String())

	var summary fee.AssignSummary
	unmarshalBytes(t, app.post(t, "/v1/fees/assign/bulk", app.owner, fee.Assignment{ClassID: app.class.ID, StructureID: st.ID}), &summary)
	assert.Equal(t, 2, summary.Created)

	var dues []fee.Ledger
	unmarshal(t, app.do(http.MethodGet, "/v1/fees/dues/student/"+app.own.ID, app.parent, nil), &dues)
	require.Len(t, dues, 1)
	ledger := dues[0]
	assert.Equal(t, fee.StatusUnpaid, ledger.Status)
	assert.Equal(t, st.Title, ledger.Title)
	assert.Equal(t, app.own.Name, ledger.StudentName)

	// pay more than due: the overflow goes to the wallet
	payment := map[string]interface{}{"ledger_id": ledger.ID, "amount": 600, "method": fee.MethodUPI}
	rec := app.do(http.MethodPost, "/v1/fees/pay", app.accountant, marshalObj(t, payment), "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rcpt fee.Receipt
	unmarshal(t, rec, &rcpt)
	assert.Equal(t, "600", rcpt.Transaction.Amount.String())
	assert.Equal(t, "100", rcpt.AddedToWallet.String())
	require.NotNil(t, rcpt.Ledger)
	assert.Equal(t, fee.StatusPaid, rcpt.Ledger.Status)

	// replay
	rec = app.do(http.MethodPost, "/v1/fees/pay", app.accountant, marshalObj(t, payment), "Idempotency-Key", "pay-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var replay fee.Receipt
	unmarshal(t, rec, &replay)
	assert.True(t, replay.Replayed)
	assert.Equal(t, rcpt.Transaction.TransactionID, replay.Transaction.TransactionID)

	tests := []httpTest{
		{
			name: "already paid", method: http.MethodPost, path: "/v1/fees/pay", token: app.accountant,
			body:     marshalObj(t, map[string]interface{}{"ledger_id": ledger.ID, "amount": 10, "method": fee.MethodCash}),
			wantCode: http.StatusUnprocessableEntity, wantData: marshalObj(t, httpErr{Error: "fee is already fully paid"}),
		},
		{
			name: "unknown ledger", method: http.MethodPost, path: "/v1/fees/pay", token: app.accountant,
			body:     marshalObj(t, map[string]interface{}{"ledger_id": "nope", "amount": 10, "method": fee.MethodCash}),
			wantCode: http.StatusNotFound,
		},
		{
			name: "wallet is not a collectable method", method: http.MethodPost, path: "/v1/fees/pay", token: app.accountant,
			body:     marshalObj(t, map[string]interface{}{"ledger_id": ledger.ID, "amount": 10, "method": fee.MethodWallet}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "student cannot collect", method: http.MethodPost, path: "/v1/fees/pay", token: app.student,
			body: marshalObj(t, payment), wantCode: http.StatusForbidden,
		},
		{name: "own receipt", path: "/v1/fees/receipt/" + rcpt.Transaction.TransactionID, token: app.student, wantCode: http.StatusOK},
		{name: "stranger receipt", path: "/v1/fees/receipt/" + rcpt.Transaction.TransactionID, token: app.stranger, wantCode: http.StatusNotFound},
		{name: "bad report date", path: "/v1/fees/reports/daily?date=01-02-2024", token: app.accountant, wantCode: http.StatusBadRequest},
	}
	runHTTPTests(t, app.testApp, tests)

	var history []fee.Transaction
	unmarshal(t, app.do(http.MethodGet, "/v1/fees/history/"+app.own.ID, app.parent, nil), &history)
	require.Len(t, history, 1)

	var stmt fee.WalletStatement
	unmarshal(t, app.do(http.MethodGet, "/v1/fees/wallet/"+app.own.ID, app.student, nil), &stmt)
	assert.Equal(t, "100", stmt.Balance.String())
	require.Len(t, stmt.Entries, 1)
	assert.Equal(t, fee.ReasonOverpayment, stmt.Entries[0].Reason)

	var daily fee.DailyCollection
	unmarshal(t, app.do(http.MethodGet, "/v1/fees/reports/daily", app.accountant, nil), &daily)
	assert.Equal(t, "600", daily.Total.String())
	assert.Equal(t, "600", daily.OnlineTotal.String())
	assert.Equal(t, 1, daily.Count)

	var pending fee.PendingDues
	unmarshal(t, app.do(http.MethodGet, "/v1/fees/reports/pending", app.accountant, nil), &pending)
	assert.Equal(t, "500", pending.TotalOutstanding.String())
	assert.Equal(t, 1, pending.Count)
}

func Test_feeApi_structureChanges(t *testing.T) {
	app := setupFees(t)
	cat := app.env.CreateCategory(t, "Transport")
	st := app.env.CreateStructure(t, app.class.ID, cat.ID, "300", testutil.NextMonth())
	app.post(t, "/v1/fees/assign/bulk", app.owner, fee.Assignment{ClassID: app.class.ID, StructureID: st.ID})

	var dues []fee.Ledger
	unmarshal(t, app.do(http.MethodGet, "/v1/fees/dues/class/"+app.class.ID, app.accountant, nil), &dues)
	require.Len(t, dues, 2)
	app.post(t, "/v1/fees/pay", app.accountant, map[string]interface{}{"ledger_id": dues[0].ID, "amount": 300, "method": fee.MethodCash})

	tests := []httpTest{
		{
			name: "validation", method: http.MethodPut, path: "/v1/fees/structures/" + st.ID, token: app.owner,
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "provide at least one field"}),
		},
		{
			name: "category in use", method: http.MethodDelete, path: "/v1/fees/categories/" + cat.ID, token: app.owner,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "fee category is used in fee structures"}),
		},
		{
			name: "duplicate category", method: http.MethodPost, path: "/v1/fees/categories", token: app.owner,
			body: []byte(`{"name": " transport "}`), wantCode: http.StatusConflict,
		},
		{
			name: "blank category", method: http.MethodPost, path: "/v1/fees/categories", token: app.owner,
			body: []byte(`{"name": "  "}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name: "negative discount", method: http.MethodPut, path: "/v1/fees/dues/adjust/" + dues[1].ID, token: app.owner,
			body: []byte(`{"discount_amount": -5}`), wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app.testApp, tests)

	// reduce the fee: the paid student gets the difference back in the wallet
	rec := app.do(http.MethodPut, "/v1/fees/structures/"+st.ID, app.owner, []byte(`{"amount": 250}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var update fee.StructureUpdate
	unmarshal(t, rec, &update)
	require.NotNil(t, update.Propagation)
	assert.Equal(t, 2, update.Propagation.RowsUpdated)
	assert.Equal(t, 1, update.Propagation.StudentsCredited)
	assert.Equal(t, "50", update.Propagation.WalletCredited.String())

	// adjust & unassign the unpaid row
	rec = app.do(http.MethodPut, "/v1/fees/dues/adjust/"+dues[1].ID, app.owner, []byte(`{"discount_amount": 50, "remarks": "sibling"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var adjusted fee.Ledger
	unmarshal(t, rec, &adjusted)
	assert.Equal(t, "200", adjusted.TotalPayable.String())

	rec = app.do(http.MethodDelete, "/v1/fees/assign/"+dues[1].ID, app.owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// delete: remaining paid row refunded
	rec = app.do(http.MethodDelete, "/v1/fees/structures/"+st.ID, app.owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var deleted fee.DeleteSummary
	unmarshal(t, rec, &deleted)
	assert.Equal(t, 1, deleted.LedgersDeleted)
	assert.True(t, deleted.WalletCredited.Equal(decimal.NewFromInt(250)), deleted.WalletCredited.String())

	rec = app.do(http.MethodGet, "/v1/fees/structures/class/"+app.class.ID, app.owner, nil)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`[]`)}, rec)
}
