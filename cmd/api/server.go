package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredWelfare/pkg/ledger"
	"github.com/mcclellann/fredWelfare/pkg/metrics"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/mcclellann/fredWelfare/pkg/notify"
	"github.com/mcclellann/fredWelfare/pkg/otp"
	"github.com/mcclellann/fredWelfare/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const otpHeader = "X-OTP-Token"

// Server holds the ledger instance and the collaborators the handlers need.
type Server struct {
	ledger   *ledger.Ledger
	storage  store.Storage // Keep a reference to the storage to close it
	otp      *otp.Store
	policy   otp.Policy
	notifier notify.Notifier
	logger   *logrus.Logger
	validate *validator.Validate
}

func NewServer(s store.Storage, tokens *otp.Store, notifier notify.Notifier, logger *logrus.Logger) *Server {
	return &Server{
		ledger:   ledger.NewLedger(s, logger),
		storage:  s,
		otp:      tokens,
		policy:   otp.DefaultPolicy(),
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
	}
}

// Router mounts every route on a new mux router.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/status", s.loanStatusHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/interest", s.loanInterestHandler).Methods("GET")
	router.HandleFunc("/interest", s.interestStatementHandler).Methods("GET")

	router.HandleFunc("/members", s.listMembersHandler).Methods("GET")
	router.HandleFunc("/members", s.createMemberHandler).Methods("POST")
	router.HandleFunc("/members/{id}/status", s.memberStatusHandler).Methods("POST")
	router.HandleFunc("/members/{id}/assets", s.memberAssetsHandler).Methods("GET")

	router.HandleFunc("/cashbook", s.listCashbookHandler).Methods("GET")
	router.HandleFunc("/cashbook", s.createCashbookEntryHandler).Methods("POST")
	router.HandleFunc("/bank-accounts", s.listBankAccountsHandler).Methods("GET")
	router.HandleFunc("/bank-accounts", s.createBankAccountHandler).Methods("POST")
	router.HandleFunc("/bank-accounts/{id}/transactions", s.createBankTransactionHandler).Methods("POST")
	router.HandleFunc("/organization/assets", s.organizationAssetsHandler).Methods("GET")

	router.HandleFunc("/dividends", s.listDividendsHandler).Methods("GET")
	router.HandleFunc("/dividends", s.distributeDividendHandler).Methods("POST")
	router.HandleFunc("/dividends/{id}", s.getDividendHandler).Methods("GET")
	router.HandleFunc("/dividends/{id}/payments/{paymentID}/paid", s.markDividendPaidHandler).Methods("POST")

	router.HandleFunc("/otp", s.issueOTPHandler).Methods("POST")
	router.HandleFunc("/otp/{token}/verify", s.verifyOTPHandler).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps ledger, store and verification errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidInput), errors.Is(err, otp.ErrUnknownOperation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrOverpayment), errors.Is(err, ledger.ErrInvalidDate),
		errors.Is(err, ledger.ErrLoanNotActive), errors.Is(err, store.ErrAlreadyPaid),
		errors.Is(err, otp.ErrTokenInUse):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, otp.ErrUnknownToken), errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrInvalidCode), errors.Is(err, otp.ErrTooManyAttempts):
		return http.StatusUnauthorized
	case errors.Is(err, otp.ErrNotVerified), errors.Is(err, otp.ErrWrongOperation):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := s.logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status}).WithError(err)
	if status == http.StatusInternalServerError {
		entry.Error("request failed")
		http.Error(w, "internal error", status)
		return
	}
	entry.Debug("request rejected")
	http.Error(w, err.Error(), status)
}

// decode reads a JSON body into dst and runs its validation tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			http.Error(w, "invalid request: "+describeValidation(verrs), http.StatusBadRequest)
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func describeValidation(verrs validator.ValidationErrors) string {
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	sort.Strings(fields)
	return strings.Join(fields, ", ")
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s", key), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// dateParam reads an optional ISO date query parameter, falling back to today.
func dateParam(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return money.Date(time.Now()), true
	}
	d, err := money.ParseDate(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return time.Time{}, false
	}
	return d, true
}

// reserveOTP claims the verified token in the request header for op. The
// handler must pass it to settleOTP once the operation has run.
func (s *Server) reserveOTP(w http.ResponseWriter, r *http.Request, op otp.Operation) (string, bool) {
	token := r.Header.Get(otpHeader)
	if token == "" {
		http.Error(w, otpHeader+" header is required", http.StatusUnauthorized)
		return "", false
	}
	if err := s.otp.Reserve(token, op); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	return token, true
}

// settleOTP spends a reserved token when the operation succeeded and hands
// it back otherwise, so a rejected request does not burn the approval.
func (s *Server) settleOTP(token string, err error) {
	if err != nil {
		s.otp.Release(token)
		return
	}
	s.otp.Spend(token)
	metrics.OTPTokens.Set(float64(s.otp.Len()))
}

// notify delivers msg; a failed notification never fails the request.
func (s *Server) notify(msg notify.Message) {
	if err := s.notifier.Notify(msg); err != nil {
		s.logger.WithField("member", msg.MemberName).WithError(err).Warn("notification failed")
	}
}
