package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/ledger"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/mcclellann/fredWelfare/pkg/store"
	"github.com/shopspring/decimal"
)

type createMemberRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Shares   int64  `json:"shares" validate:"gte=0"`
	JoinedAt string `json:"joined_at" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) createMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if !s.decode(w, r, &req) {
		return
	}

	var joined time.Time
	if req.JoinedAt != "" {
		joined, _ = money.ParseDate(req.JoinedAt)
	}
	member, err := s.ledger.CreateMember(ledger.MemberRequest{
		Name:     req.Name,
		Phone:    req.Phone,
		Shares:   req.Shares,
		JoinedAt: joined,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.GetMembers()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type memberStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

func (s *Server) memberStatusHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req memberStatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	member, err := s.ledger.SetMemberStatus(memberID, models.MemberStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) memberAssetsHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	asOf, ok := dateParam(w, r, "as_of")
	if !ok {
		return
	}

	summary, err := s.ledger.MemberAssets(memberID, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) organizationAssetsHandler(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, "as_of")
	if !ok {
		return
	}

	summary, err := s.ledger.OrganizationAssets(asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type cashbookEntryRequest struct {
	MemberID    string           `json:"member_id" validate:"omitempty,uuid"`
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
	Category    string           `json:"category" validate:"required,oneof=share_contribution savings loan_disbursement loan_repayment interest_income dividend_payout expense other_income"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Description string           `json:"description" validate:"max=255"`
}

// createCashbookEntryHandler records a manual cash movement. Categories the
// policy protects need a verified token.
func (s *Server) createCashbookEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req cashbookEntryRequest
	if !s.decode(w, r, &req) {
		return
	}

	category := models.EntryCategory(req.Category)
	var token string
	op, protected := s.policy.ForCategory(category)
	if protected {
		var ok bool
		if token, ok = s.reserveOTP(w, r, op); !ok {
			return
		}
	}

	entryReq := ledger.EntryRequest{
		Category:    category,
		Amount:      *req.Amount,
		Description: req.Description,
	}
	entryReq.Date, _ = money.ParseDate(req.Date)
	if req.MemberID != "" {
		id := uuid.MustParse(req.MemberID)
		entryReq.MemberID = &id
	}

	entry, err := s.ledger.AddCashbookEntry(entryReq)
	if protected {
		s.settleOTP(token, err)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// listCashbookHandler accepts optional member_id, from and to query parameters.
func (s *Server) listCashbookHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.EntryFilter

	if raw := q.Get("member_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid member_id", http.StatusBadRequest)
			return
		}
		filter.MemberID = &id
	}
	var err error
	if filter.From, err = optionalDate(q.Get("from")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.To, err = optionalDate(q.Get("to")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := s.ledger.GetCashbookEntries(filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.CashbookEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := money.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type bankAccountRequest struct {
	BankName      string `json:"bank_name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" validate:"required,max=64"`
}

func (s *Server) createBankAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req bankAccountRequest
	if !s.decode(w, r, &req) {
		return
	}

	account, err := s.ledger.CreateBankAccount(req.BankName, req.AccountNumber)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) listBankAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.GetBankAccounts()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

type bankTransactionRequest struct {
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Description string           `json:"description" validate:"max=255"`
}

func (s *Server) createBankTransactionHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bankTransactionRequest
	if !s.decode(w, r, &req) {
		return
	}

	on, _ := money.ParseDate(req.Date)
	t, err := s.ledger.AddBankTransaction(accountID, ledger.BankTransactionRequest{
		Date:        on,
		Amount:      *req.Amount,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
