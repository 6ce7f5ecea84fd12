package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentReceived(t *testing.T) {
	member := &models.Member{Name: "Amara", Phone: "+94771234567"}
	loan := &models.Loan{Balance: decimal.Zero, Status: models.LoanStatusCompleted}
	payment := &models.Payment{
		Date:            time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		PrincipalAmount: decimal.NewFromInt(1000),
		InterestAmount:  decimal.RequireFromString("12.5"),
	}

	msg := PaymentReceived(member, loan, payment)
	assert.Equal(t, "+94771234567", msg.Phone)
	assert.Contains(t, msg.Text, "Rs. 1012.50")
	assert.Contains(t, msg.Text, "2023-03-01")
	assert.Contains(t, msg.Text, "fully settled")
}

func TestDividendAllotted(t *testing.T) {
	msg := DividendAllotted(
		&models.Member{Name: "Bandara"},
		&models.Dividend{QuarterEndDate: time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)},
		&models.DividendPayment{Amount: decimal.NewFromInt(3000)},
	)
	assert.Contains(t, msg.Text, "Rs. 3000.00")
	assert.Contains(t, msg.Text, "2023-03-31")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	err := LogNotifier{Logger: logger}.Notify(Message{MemberName: "Amara", Phone: "0771", Text: "hello"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"member":"Amara"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestVerificationCode(t *testing.T) {
	msg := VerificationCode(&models.Member{Name: "Chaminda", Phone: "0772"}, "042917", time.Date(2023, 4, 2, 9, 5, 0, 0, time.UTC))
	assert.Equal(t, "0772", msg.Phone)
	assert.Contains(t, msg.Text, "042917")
	assert.Contains(t, msg.Text, "09:05")
}
