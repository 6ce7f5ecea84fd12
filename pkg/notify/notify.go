// Package notify delivers member notifications after ledger writes succeed.
package notify

import (
	"fmt"
	"time"

	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	"github.com/sirupsen/logrus"
)

type Message struct {
	MemberName string
	Phone      string
	Text       string
}

// Notifier sends a message to a member. Implementations own the transport.
type Notifier interface {
	Notify(msg Message) error
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) Notify(msg Message) error {
	n.Logger.WithFields(logrus.Fields{
		"member": msg.MemberName,
		"phone":  msg.Phone,
	}).Info(msg.Text)
	return nil
}

func PaymentReceived(member *models.Member, loan *models.Loan, payment *models.Payment) Message {
	text := fmt.Sprintf("Received Rs. %s (principal %s, interest %s) on %s. Loan balance Rs. %s.",
		payment.PrincipalAmount.Add(payment.InterestAmount).StringFixed(2),
		payment.PrincipalAmount.StringFixed(2),
		payment.InterestAmount.StringFixed(2),
		money.FormatDate(payment.Date),
		loan.Balance.StringFixed(2))
	if loan.Status == models.LoanStatusCompleted {
		text += " Your loan is fully settled."
	}
	return Message{MemberName: member.Name, Phone: member.Phone, Text: text}
}

func DividendAllotted(member *models.Member, dividend *models.Dividend, payment *models.DividendPayment) Message {
	return Message{
		MemberName: member.Name,
		Phone:      member.Phone,
		Text: fmt.Sprintf("A dividend of Rs. %s has been allotted to you for the quarter ending %s.",
			payment.Amount.StringFixed(2), money.FormatDate(dividend.QuarterEndDate)),
	}
}

// VerificationCode carries a one-time code to the member approving an operation.
func VerificationCode(member *models.Member, code string, expires time.Time) Message {
	return Message{
		MemberName: member.Name,
		Phone:      member.Phone,
		Text:       fmt.Sprintf("Your verification code is %s. It expires at %s.", code, expires.Format("15:04")),
	}
}
