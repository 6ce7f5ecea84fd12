package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/fredWelfare/pkg/ledger"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/notify"
	"github.com/mcclellann/fredWelfare/pkg/otp"
	"github.com/mcclellann/fredWelfare/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCode = "246810"

type recordingNotifier struct {
	messages []notify.Message
}

func (n *recordingNotifier) Notify(msg notify.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

type testAPI struct {
	server   *Server
	router   *mux.Router
	notifier *recordingNotifier
}

func setupTestServer(t *testing.T) *testAPI {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tokens := otp.NewStore(time.Minute, otp.WithCodeGenerator(func() (string, error) { return testCode, nil }))
	notifier := &recordingNotifier{}

	server := NewServer(s, tokens, notifier, logger)
	return &testAPI{server: server, router: server.Router(), notifier: notifier}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func (a *testAPI) createMember(t *testing.T, name, contribution string) models.Member {
	t.Helper()
	rr := a.do(t, "POST", "/members", map[string]any{"name": name, "phone": "0771234567", "shares": 10}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var m models.Member
	decodeBody(t, rr, &m)

	if contribution != "" {
		rr = a.do(t, "POST", "/cashbook", map[string]any{
			"member_id": m.ID.String(),
			"date":      "2023-01-05",
			"category":  "share_contribution",
			"amount":    contribution,
		}, nil)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	return m
}

// approve issues and verifies a token for op, returning the header to send it in.
func (a *testAPI) approve(t *testing.T, op otp.Operation, approver models.Member) http.Header {
	t.Helper()
	rr := a.do(t, "POST", "/otp", map[string]any{"operation": string(op), "member_id": approver.ID.String()}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var ch otp.Challenge
	decodeBody(t, rr, &ch)
	assert.NotContains(t, rr.Body.String(), testCode)

	rr = a.do(t, "POST", "/otp/"+ch.Token+"/verify", map[string]any{"code": testCode}, nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	return http.Header{otpHeader: []string{ch.Token}}
}

func (a *testAPI) createLoan(t *testing.T, borrower models.Member, principal string, daily bool) models.Loan {
	t.Helper()
	rr := a.do(t, "POST", "/loans", map[string]any{
		"member_id":      borrower.ID.String(),
		"principal":      principal,
		"interest_rate":  "5",
		"daily_interest": daily,
		"start_date":     "2023-01-01",
	}, a.approve(t, otp.OpLoanDisbursement, borrower))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var loan models.Loan
	decodeBody(t, rr, &loan)
	return loan
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	api := setupTestServer(t)
	borrower := api.createMember(t, "Nimal", "")

	body := map[string]any{
		"member_id":     borrower.ID.String(),
		"principal":     "100000",
		"interest_rate": "5",
		"start_date":    "2023-01-01",
	}
	rr := api.do(t, "POST", "/loans", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	loan := api.createLoan(t, borrower, "100000", true)
	assert.True(t, loan.Balance.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, models.LoanStatusActive, loan.Status)

	rr = api.do(t, "GET", "/loans/"+loan.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched models.Loan
	decodeBody(t, rr, &fetched)
	assert.Equal(t, loan.ID, fetched.ID)

	rr = api.do(t, "GET", "/loans", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var loans []models.Loan
	decodeBody(t, rr, &loans)
	assert.Len(t, loans, 1)

	rr = api.do(t, "GET", "/loans/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, "GET", "/loans/00000000-0000-0000-0000-000000000001", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_CreateLoanValidation(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do(t, "POST", "/loans", map[string]any{"member_id": "nope", "start_date": "01/01/2023"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "MemberID failed uuid")
	assert.Contains(t, rr.Body.String(), "Principal failed required")
	assert.Contains(t, rr.Body.String(), "StartDate failed datetime")
}

func TestAPI_RejectedLoanKeepsApproval(t *testing.T) {
	api := setupTestServer(t)
	borrower := api.createMember(t, "Nimal", "")
	header := api.approve(t, otp.OpLoanDisbursement, borrower)

	body := map[string]any{
		"member_id":     borrower.ID.String(),
		"principal":     "1000",
		"interest_rate": "0",
		"start_date":    "2023-01-01",
	}
	rr := api.do(t, "POST", "/loans", body, header)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	body["interest_rate"] = "5"
	rr = api.do(t, "POST", "/loans", body, header)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// spent once the loan is issued
	rr = api.do(t, "POST", "/loans", body, header)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())
}

func TestAPI_RecordPayment(t *testing.T) {
	api := setupTestServer(t)
	borrower := api.createMember(t, "Nimal", "")
	loan := api.createLoan(t, borrower, "80000", true)

	rr := api.do(t, "POST", "/loans/"+loan.ID.String()+"/payments", map[string]any{
		"date":             "2023-01-15",
		"principal_amount": "1000",
		"interest_amount":  "500",
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp paymentResponse
	decodeBody(t, rr, &resp)
	assert.True(t, resp.Loan.Balance.Equal(decimal.NewFromInt(79000)))
	assert.True(t, resp.Payment.ExcessInterest.Equal(decimal.RequireFromString("346.58")), resp.Payment.ExcessInterest.String())

	require.NotEmpty(t, api.notifier.messages)
	last := api.notifier.messages[len(api.notifier.messages)-1]
	assert.Equal(t, "Nimal", last.MemberName)
	assert.Contains(t, last.Text, "Rs. 1500.00")

	rr = api.do(t, "GET", "/loans/"+loan.ID.String()+"/payments", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var payments []models.Payment
	decodeBody(t, rr, &payments)
	assert.Len(t, payments, 1)

	// interest on the remaining balance from the payment date
	rr = api.do(t, "GET", "/loans/"+loan.ID.String()+"/interest?as_of=2023-01-30", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var interest interestResponse
	decodeBody(t, rr, &interest)
	assert.True(t, interest.InterestDue.Equal(decimal.RequireFromString("162.33")), interest.InterestDue.String())
}

func TestAPI_RecordPaymentRejected(t *testing.T) {
	api := setupTestServer(t)
	borrower := api.createMember(t, "Nimal", "")
	loan := api.createLoan(t, borrower, "5000", false)
	path := "/loans/" + loan.ID.String() + "/payments"

	rr := api.do(t, "POST", path, map[string]any{"date": "2023-02-01", "principal_amount": "5001"}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, "POST", path, map[string]any{"date": "2023-02-01"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, "POST", path, map[string]any{"date": "2023-02-01", "interest_amount": "10"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = api.do(t, "POST", path, map[string]any{"date": "2023-01-20", "principal_amount": "10"}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, "GET", "/loans/"+loan.ID.String(), nil, nil)
	var stored models.Loan
	decodeBody(t, rr, &stored)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(5000)))
}

func TestAPI_LoanStatus(t *testing.T) {
	api := setupTestServer(t)
	borrower := api.createMember(t, "Ruwan", "")
	loan := api.createLoan(t, borrower, "5000", false)
	path := "/loans/" + loan.ID.String() + "/status"

	rr := api.do(t, "POST", path, map[string]any{"status": "defaulted"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated models.Loan
	decodeBody(t, rr, &updated)
	assert.Equal(t, models.LoanStatusDefaulted, updated.Status)

	rr = api.do(t, "POST", path, map[string]any{"status": "completed"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, "POST", "/loans/"+loan.ID.String()+"/payments", map[string]any{"date": "2023-01-01", "principal_amount": "5000"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, "POST", path, map[string]any{"status": "active"}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAPI_InterestStatement(t *testing.T) {
	api := setupTestServer(t)
	borrower := api.createMember(t, "Nimal", "")
	api.createLoan(t, borrower, "100000", true)

	rr := api.do(t, "GET", "/interest?as_of=2023-02-01", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var lines []ledger.InterestLine
	decodeBody(t, rr, &lines)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Accrued.Equal(decimal.RequireFromString("424.66")), lines[0].Accrued.String())

	rr = api.do(t, "GET", "/interest?as_of=tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_DividendFlow(t *testing.T) {
	api := setupTestServer(t)
	a := api.createMember(t, "Amara", "300000")
	b := api.createMember(t, "Bandara", "700000")

	rr := api.do(t, "GET", "/organization/assets?as_of=2023-03-31", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var org ledger.AssetSummary
	decodeBody(t, rr, &org)
	assert.True(t, org.Total.Equal(decimal.NewFromInt(1000000)))

	rr = api.do(t, "GET", "/members/"+a.ID.String()+"/assets?as_of=2023-03-31", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var assets ledger.MemberAssetSummary
	decodeBody(t, rr, &assets)
	assert.True(t, assets.Proportion.Equal(decimal.RequireFromString("0.3")), assets.Proportion.String())

	body := map[string]any{"quarter_end": "2023-03-31", "profit": "100000", "rate": "10"}
	rr = api.do(t, "POST", "/dividends", body, api.approve(t, otp.OpDividendPayout, a))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	header := api.approve(t, otp.OpDividendDistribution, a)
	before := len(api.notifier.messages)
	rr = api.do(t, "POST", "/dividends", body, header)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var dist dividendResponse
	decodeBody(t, rr, &dist)
	assert.True(t, dist.Dividend.Pool.Equal(decimal.NewFromInt(10000)))
	amounts := map[string]decimal.Decimal{}
	var paymentForA *models.DividendPayment
	for _, p := range dist.Payments {
		amounts[p.MemberID.String()] = p.Amount
		if p.MemberID == a.ID {
			paymentForA = p
		}
	}
	assert.True(t, amounts[a.ID.String()].Equal(decimal.NewFromInt(3000)))
	assert.True(t, amounts[b.ID.String()].Equal(decimal.NewFromInt(7000)))
	assert.Len(t, api.notifier.messages[before:], 2)

	rr = api.do(t, "GET", "/dividends/"+dist.Dividend.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	require.NotNil(t, paymentForA)
	paidPath := "/dividends/" + dist.Dividend.ID.String() + "/payments/" + paymentForA.ID.String() + "/paid"
	rr = api.do(t, "POST", paidPath, nil, api.approve(t, otp.OpDividendPayout, a))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var paid models.DividendPayment
	decodeBody(t, rr, &paid)
	assert.Equal(t, models.DividendPaymentPaid, paid.Status)

	rr = api.do(t, "POST", paidPath, nil, api.approve(t, otp.OpDividendPayout, a))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, "GET", "/cashbook?member_id="+a.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []models.CashbookEntry
	decodeBody(t, rr, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, models.CategoryDividendPayout, entries[1].Category)
}

func TestAPI_DistributeWithoutMembers(t *testing.T) {
	api := setupTestServer(t)
	approver := api.createMember(t, "Treasurer", "")
	header := api.approve(t, otp.OpDividendDistribution, approver)

	// the only member leaves before the run
	rr := api.do(t, "POST", "/members/"+approver.ID.String()+"/status", map[string]any{"status": "inactive"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	run := map[string]any{"quarter_end": "2023-03-31", "profit": "1000", "rate": "10"}
	rr = api.do(t, "POST", "/dividends", run, header)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	var resp dividendResponse
	decodeBody(t, rr, &resp)
	require.NotNil(t, resp.Dividend)
	assert.True(t, resp.Dividend.Pool.Equal(decimal.NewFromInt(100)), "pool %s", resp.Dividend.Pool)
	assert.NotNil(t, resp.Payments)
	assert.Empty(t, resp.Payments)

	rr = api.do(t, "GET", "/dividends", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var dividends []models.Dividend
	decodeBody(t, rr, &dividends)
	assert.Empty(t, dividends)

	// the approval survives the rejected run
	rr = api.do(t, "POST", "/members/"+approver.ID.String()+"/status", map[string]any{"status": "active"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = api.do(t, "POST", "/dividends", run, header)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, "POST", "/members/"+approver.ID.String()+"/status", map[string]any{"status": "suspended"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_ProtectedCashbookCategories(t *testing.T) {
	api := setupTestServer(t)
	approver := api.createMember(t, "Treasurer", "")
	expense := map[string]any{"date": "2023-02-01", "category": "expense", "amount": "-250", "description": "stationery"}

	rr := api.do(t, "POST", "/cashbook", expense, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, "POST", "/cashbook", expense, http.Header{otpHeader: []string{"unknown"}})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	header := api.approve(t, otp.OpExpense, approver)
	rr = api.do(t, "POST", "/cashbook", expense, header)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// tokens are single use
	rr = api.do(t, "POST", "/cashbook", expense, header)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, "POST", "/cashbook", map[string]any{"date": "2023-02-01", "category": "bribes", "amount": "1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_VerifyWrongCode(t *testing.T) {
	api := setupTestServer(t)
	approver := api.createMember(t, "Treasurer", "")

	rr := api.do(t, "POST", "/otp", map[string]any{"operation": "expense", "member_id": approver.ID.String()}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var ch otp.Challenge
	decodeBody(t, rr, &ch)

	rr = api.do(t, "POST", "/otp/"+ch.Token+"/verify", map[string]any{"code": "000000"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, "POST", "/cashbook", map[string]any{"date": "2023-02-01", "category": "expense", "amount": "-1"},
		http.Header{otpHeader: []string{ch.Token}})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, "POST", "/otp", map[string]any{"operation": "wire_transfer", "member_id": approver.ID.String()}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	last := api.notifier.messages[len(api.notifier.messages)-1]
	assert.Contains(t, last.Text, testCode)
}

func TestAPI_BankAccounts(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do(t, "POST", "/bank-accounts", map[string]any{"bank_name": "People's Bank", "account_number": "001-2345"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var account models.BankAccount
	decodeBody(t, rr, &account)

	rr = api.do(t, "POST", "/bank-accounts/"+account.ID.String()+"/transactions", map[string]any{"date": "2023-03-01", "amount": "25000"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, "GET", "/organization/assets?as_of=2023-03-31", nil, nil)
	var org ledger.AssetSummary
	decodeBody(t, rr, &org)
	assert.True(t, org.Bank.Equal(decimal.NewFromInt(25000)))

	rr = api.do(t, "GET", "/bank-accounts", nil, nil)
	var accounts []models.BankAccount
	decodeBody(t, rr, &accounts)
	assert.Len(t, accounts, 1)
}

func TestAPI_Metrics(t *testing.T) {
	api := setupTestServer(t)
	rr := api.do(t, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "fredwelfare_otp_tokens")
}
