package main

import (
	"errors"
	"net/http"

	"github.com/mcclellann/fredWelfare/pkg/ledger"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/mcclellann/fredWelfare/pkg/notify"
	"github.com/mcclellann/fredWelfare/pkg/otp"
	"github.com/shopspring/decimal"
)

type distributeRequest struct {
	QuarterEnd string           `json:"quarter_end" validate:"required,datetime=2006-01-02"`
	Profit     *decimal.Decimal `json:"profit" validate:"required"`
	Rate       *decimal.Decimal `json:"rate" validate:"required"`
}

type dividendResponse struct {
	Dividend *models.Dividend          `json:"dividend"`
	Payments []*models.DividendPayment `json:"payments"`
}

func (s *Server) distributeDividendHandler(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, ok := s.reserveOTP(w, r, otp.OpDividendDistribution)
	if !ok {
		return
	}

	quarterEnd, _ := money.ParseDate(req.QuarterEnd)
	dist, err := s.ledger.DistributeDividend(quarterEnd, *req.Profit, *req.Rate)
	s.settleOTP(token, err)
	if errors.Is(err, ledger.ErrInsufficientData) && dist != nil {
		// Nothing was stored; the computed pool is still reported.
		s.logger.WithField("path", r.URL.Path).WithError(err).Debug("request rejected")
		writeJSON(w, http.StatusUnprocessableEntity, dividendResponse{Dividend: &dist.Dividend, Payments: []*models.DividendPayment{}})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := dividendResponse{Dividend: &dist.Dividend, Payments: make([]*models.DividendPayment, len(dist.Payments))}
	for i := range dist.Payments {
		p := &dist.Payments[i]
		resp.Payments[i] = p
		if !p.Amount.IsPositive() {
			continue
		}
		member, err := s.ledger.GetMember(p.MemberID)
		if err != nil {
			s.logger.WithField("member_id", p.MemberID).WithError(err).Warn("could not load member to notify")
			continue
		}
		s.notify(notify.DividendAllotted(member, &dist.Dividend, p))
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listDividendsHandler(w http.ResponseWriter, r *http.Request) {
	dividends, err := s.ledger.GetDividends()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dividends)
}

func (s *Server) getDividendHandler(w http.ResponseWriter, r *http.Request) {
	dividendID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	dividend, payments, err := s.ledger.GetDividend(dividendID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dividendResponse{Dividend: dividend, Payments: payments})
}

func (s *Server) markDividendPaidHandler(w http.ResponseWriter, r *http.Request) {
	dividendID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	token, ok := s.reserveOTP(w, r, otp.OpDividendPayout)
	if !ok {
		return
	}

	payment, err := s.ledger.MarkDividendPaid(dividendID, paymentID)
	s.settleOTP(token, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}
