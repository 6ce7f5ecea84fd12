package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredWelfare/pkg/metrics"
	"github.com/mcclellann/fredWelfare/pkg/notify"
	"github.com/mcclellann/fredWelfare/pkg/otp"
)

type issueOTPRequest struct {
	Operation string `json:"operation" validate:"required,oneof=loan_disbursement dividend_distribution dividend_payout expense"`
	MemberID  string `json:"member_id" validate:"required,uuid"`
}

// issueOTPHandler sends a code to the approving member. Only the token is
// returned to the caller.
func (s *Server) issueOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req issueOTPRequest
	if !s.decode(w, r, &req) {
		return
	}

	member, err := s.ledger.GetMember(uuid.MustParse(req.MemberID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	challenge, err := s.otp.Issue(otp.Operation(req.Operation))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.OTPTokens.Set(float64(s.otp.Len()))

	s.notify(notify.VerificationCode(member, challenge.Code, challenge.ExpiresAt))
	writeJSON(w, http.StatusCreated, challenge)
}

type verifyOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (s *Server) verifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	var req verifyOTPRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.otp.Verify(token, req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
