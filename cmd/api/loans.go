package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/ledger"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/mcclellann/fredWelfare/pkg/notify"
	"github.com/mcclellann/fredWelfare/pkg/otp"
	"github.com/shopspring/decimal"
)

type createLoanRequest struct {
	MemberID      string           `json:"member_id" validate:"required,uuid"`
	Principal     *decimal.Decimal `json:"principal" validate:"required"`
	InterestRate  *decimal.Decimal `json:"interest_rate" validate:"required"`
	DailyInterest bool             `json:"daily_interest"`
	StartDate     string           `json:"start_date" validate:"required,datetime=2006-01-02"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, ok := s.reserveOTP(w, r, otp.OpLoanDisbursement)
	if !ok {
		return
	}

	start, _ := money.ParseDate(req.StartDate)
	loan, err := s.ledger.CreateLoan(ledger.LoanRequest{
		MemberID:      uuid.MustParse(req.MemberID),
		Principal:     *req.Principal,
		InterestRate:  *req.InterestRate,
		DailyInterest: req.DailyInterest,
		StartDate:     start,
	})
	s.settleOTP(token, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

type loanStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active defaulted"`
}

func (s *Server) loanStatusHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req loanStatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	loan, err := s.ledger.SetLoanStatus(loanID, models.LoanStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

type paymentRequest struct {
	Date            string           `json:"date" validate:"required,datetime=2006-01-02"`
	PrincipalAmount *decimal.Decimal `json:"principal_amount"`
	InterestAmount  *decimal.Decimal `json:"interest_amount"`
}

type paymentResponse struct {
	Payment *models.Payment `json:"payment"`
	Loan    *models.Loan    `json:"loan"`
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req paymentRequest
	if !s.decode(w, r, &req) {
		return
	}

	paidOn, _ := money.ParseDate(req.Date)
	payment, loan, err := s.ledger.RecordPayment(loanID, ledger.PaymentRequest{
		Date:            paidOn,
		PrincipalAmount: amountOrZero(req.PrincipalAmount),
		InterestAmount:  amountOrZero(req.InterestAmount),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if member, err := s.ledger.GetMember(loan.MemberID); err == nil {
		s.notify(notify.PaymentReceived(member, loan, payment))
	} else {
		s.logger.WithField("loan_id", loan.ID).WithError(err).Warn("could not load member to notify")
	}

	writeJSON(w, http.StatusCreated, paymentResponse{Payment: payment, Loan: loan})
}

func amountOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payments, err := s.ledger.GetPayments(loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, payments)
}

type interestResponse struct {
	LoanID      uuid.UUID       `json:"loan_id"`
	AsOf        time.Time       `json:"as_of"`
	InterestDue decimal.Decimal `json:"interest_due"`
}

func (s *Server) loanInterestHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	asOf, ok := dateParam(w, r, "as_of")
	if !ok {
		return
	}

	due, err := s.ledger.InterestDue(loanID, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, interestResponse{LoanID: loanID, AsOf: asOf, InterestDue: due})
}

func (s *Server) interestStatementHandler(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, "as_of")
	if !ok {
		return
	}

	lines, err := s.ledger.InterestStatement(asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lines)
}
