package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredWelfare/pkg/models"
	"github.com/mcclellann/fredWelfare/pkg/money"
	log "github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"
)

var ErrAlreadyPaid = errors.New("dividend payment already paid")

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// One connection: SQLite has a single writer and the PRAGMAs below are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.WithField("dsn", dataSourceName).Info("database connection established and schema initialized")
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Amounts are TEXT so no precision is lost; calendar dates are ISO TEXT so
// they compare correctly with <=.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		shares INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		balance TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		daily_interest INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		last_interest_paid_date TEXT,
		unpaid_interest TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS loan_payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		date TEXT NOT NULL,
		principal_amount TEXT NOT NULL,
		interest_amount TEXT NOT NULL,
		interest_due TEXT NOT NULL DEFAULT '0',
		excess_interest TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS cashbook_entries (
		id TEXT PRIMARY KEY,
		member_id TEXT,
		date TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS bank_accounts (
		id TEXT PRIMARY KEY,
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS bank_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(account_id) REFERENCES bank_accounts(id)
	);
	CREATE TABLE IF NOT EXISTS dividends (
		id TEXT PRIMARY KEY,
		quarter_end_date TEXT NOT NULL,
		total_shares INTEGER NOT NULL,
		profit_amount TEXT NOT NULL,
		dividend_rate TEXT NOT NULL,
		pool TEXT NOT NULL,
		calculation_date TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS dividend_payments (
		id TEXT PRIMARY KEY,
		dividend_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		date TEXT NOT NULL,
		shares INTEGER NOT NULL,
		proportion TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at DATETIME,
		FOREIGN KEY(dividend_id) REFERENCES dividends(id),
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE INDEX IF NOT EXISTS idx_cashbook_member_date ON cashbook_entries(member_id, date);
	CREATE INDEX IF NOT EXISTS idx_loan_payments_loan ON loan_payments(loan_id, date);
	CREATE INDEX IF NOT EXISTS idx_dividend_payments_dividend ON dividend_payments(dividend_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDate(raw string) (time.Time, error) {
	return money.ParseDate(raw)
}

func nullableID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func nullableDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: money.FormatDate(*t), Valid: true}
}

// ---- loans ----

const loanColumns = `id, member_id, principal, balance, interest_rate, daily_interest, start_date, last_interest_paid_date, unpaid_interest, status, created_at, updated_at`

// CreateLoan inserts a new loan and, when given, its disbursement entry.
func (s *SQLiteStore) CreateLoan(loan *models.Loan, disbursement *models.CashbookEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.MemberID.String(), loan.Principal, loan.Balance, loan.InterestRate, loan.DailyInterest,
		money.FormatDate(loan.StartDate), nullableDate(loan.LastInterestPaidDate), loan.UnpaidInterest, string(loan.Status),
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	if disbursement != nil {
		if err := insertCashbookEntry(tx, disbursement); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanLoan(row scanner) (*models.Loan, error) {
	var loan models.Loan
	var id, memberID, startDate, status string
	var lastPaid sql.NullString
	if err := row.Scan(&id, &memberID, &loan.Principal, &loan.Balance, &loan.InterestRate, &loan.DailyInterest,
		&startDate, &lastPaid, &loan.UnpaidInterest, &status, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if loan.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt loan id %q: %w", id, err)
	}
	if loan.MemberID, err = uuid.Parse(memberID); err != nil {
		return nil, fmt.Errorf("corrupt member id on loan %s: %w", id, err)
	}
	if loan.StartDate, err = scanDate(startDate); err != nil {
		return nil, err
	}
	if lastPaid.Valid {
		d, err := scanDate(lastPaid.String)
		if err != nil {
			return nil, err
		}
		loan.LastInterestPaidDate = &d
	}
	loan.Status = models.LoanStatus(status)
	return &loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

const updateLoanSQL = `UPDATE loans SET member_id = ?, principal = ?, balance = ?, interest_rate = ?, daily_interest = ?, start_date = ?, last_interest_paid_date = ?, unpaid_interest = ?, status = ?, updated_at = ? WHERE id = ?`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func updateLoan(db execer, loan *models.Loan) error {
	result, err := db.Exec(updateLoanSQL,
		loan.MemberID.String(), loan.Principal, loan.Balance, loan.InterestRate, loan.DailyInterest,
		money.FormatDate(loan.StartDate), nullableDate(loan.LastInterestPaidDate), loan.UnpaidInterest, string(loan.Status),
		loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
	}
	return nil
}

// UpdateLoan reads the loan, hands it to apply and writes back what apply
// returns, all in one transaction. The store holds a single connection, so
// updates run one after another and apply always sees the last committed
// state. apply must not call back into the store. An error from apply rolls
// the transaction back and is returned unchanged.
func (s *SQLiteStore) UpdateLoan(id uuid.UUID, apply func(models.Loan) (LoanChange, error)) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := scanLoan(tx.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to get loan: %w", err)
	}

	change, err := apply(*loan)
	if err != nil {
		return err
	}
	change.Loan.ID = loan.ID
	if err := updateLoan(tx, &change.Loan); err != nil {
		return err
	}
	if change.Payment != nil {
		if err := insertPayment(tx, change.Payment); err != nil {
			return err
		}
	}
	for _, entry := range change.Cash {
		if err := insertCashbookEntry(tx, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT ` + loanColumns + ` FROM loans ORDER BY start_date, created_at`)
}

// GetOpenLoans retrieves every loan that is not completed.
func (s *SQLiteStore) GetOpenLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE status <> ? ORDER BY start_date, created_at`, string(models.LoanStatusCompleted))
}

func (s *SQLiteStore) queryLoans(query string, args ...any) ([]*models.Loan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// ---- loan payments ----

const paymentColumns = `id, loan_id, date, principal_amount, interest_amount, interest_due, excess_interest, created_at`

func insertPayment(db execer, payment *models.Payment) error {
	_, err := db.Exec(
		`INSERT INTO loan_payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), money.FormatDate(payment.Date), payment.PrincipalAmount,
		payment.InterestAmount, payment.InterestDue, payment.ExcessInterest, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	var p models.Payment
	var id, loanID, date string
	if err := row.Scan(&id, &loanID, &date, &p.PrincipalAmount, &p.InterestAmount, &p.InterestDue, &p.ExcessInterest, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt payment id %q: %w", id, err)
	}
	if p.LoanID, err = uuid.Parse(loanID); err != nil {
		return nil, fmt.Errorf("corrupt loan id on payment %s: %w", id, err)
	}
	if p.Date, err = scanDate(date); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentsForLoan retrieves all payments for a loan in date order.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	return s.queryPayments(`SELECT `+paymentColumns+` FROM loan_payments WHERE loan_id = ? ORDER BY date, created_at`, loanID.String())
}

// GetLoanPayments retrieves every payment booked on or before asOf.
func (s *SQLiteStore) GetLoanPayments(asOf time.Time) ([]*models.Payment, error) {
	return s.queryPayments(`SELECT `+paymentColumns+` FROM loan_payments WHERE date <= ? ORDER BY date, created_at`, money.FormatDate(asOf))
}

func (s *SQLiteStore) queryPayments(query string, args ...any) ([]*models.Payment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

// ---- members ----

const memberColumns = `id, name, phone, shares, status, joined_at, created_at`

func (s *SQLiteStore) CreateMember(member *models.Member) error {
	_, err := s.db.Exec(
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		member.ID.String(), member.Name, member.Phone, member.Shares, string(member.Status),
		money.FormatDate(member.JoinedAt), member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func scanMember(row scanner) (*models.Member, error) {
	var m models.Member
	var id, status, joined string
	if err := row.Scan(&id, &m.Name, &m.Phone, &m.Shares, &status, &joined, &m.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt member id %q: %w", id, err)
	}
	if m.JoinedAt, err = scanDate(joined); err != nil {
		return nil, err
	}
	m.Status = models.MemberStatus(status)
	return &m, nil
}

func (s *SQLiteStore) GetMember(id uuid.UUID) (*models.Member, error) {
	m, err := scanMember(s.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) SetMemberStatus(id uuid.UUID, status models.MemberStatus) error {
	result, err := s.db.Exec(`UPDATE members SET status = ? WHERE id = ?`, string(status), id.String())
	if err != nil {
		return fmt.Errorf("failed to update member status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetAllMembers() ([]*models.Member, error) {
	return s.queryMembers(`SELECT ` + memberColumns + ` FROM members ORDER BY name`)
}

func (s *SQLiteStore) GetActiveMembers() ([]*models.Member, error) {
	return s.queryMembers(`SELECT `+memberColumns+` FROM members WHERE status = ? ORDER BY name`, string(models.MemberStatusActive))
}

func (s *SQLiteStore) queryMembers(query string, args ...any) ([]*models.Member, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for members: %w", err)
	}
	return members, nil
}

// ---- cashbook ----

const entryColumns = `id, member_id, date, category, amount, description, created_at`

func insertCashbookEntry(db execer, entry *models.CashbookEntry) error {
	_, err := db.Exec(
		`INSERT INTO cashbook_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), nullableID(entry.MemberID), money.FormatDate(entry.Date), string(entry.Category),
		entry.Amount, entry.Description, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create cashbook entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateCashbookEntry(entry *models.CashbookEntry) error {
	return insertCashbookEntry(s.db, entry)
}

// GetCashbookEntries returns entries matching filter in date order.
func (s *SQLiteStore) GetCashbookEntries(filter EntryFilter) ([]*models.CashbookEntry, error) {
	var where []string
	var args []any
	if filter.MemberID != nil {
		where = append(where, "member_id = ?")
		args = append(args, filter.MemberID.String())
	}
	if filter.From != nil {
		where = append(where, "date >= ?")
		args = append(args, money.FormatDate(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "date <= ?")
		args = append(args, money.FormatDate(*filter.To))
	}

	query := `SELECT ` + entryColumns + ` FROM cashbook_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cashbook entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.CashbookEntry
	for rows.Next() {
		var e models.CashbookEntry
		var id, date, category string
		var memberID sql.NullString
		if err := rows.Scan(&id, &memberID, &date, &category, &e.Amount, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cashbook row: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt cashbook id %q: %w", id, err)
		}
		if memberID.Valid {
			mid, err := uuid.Parse(memberID.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt member id on cashbook entry %s: %w", id, err)
			}
			e.MemberID = &mid
		}
		if e.Date, err = scanDate(date); err != nil {
			return nil, err
		}
		e.Category = models.EntryCategory(category)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for cashbook: %w", err)
	}
	return entries, nil
}

// ---- bank ----

func (s *SQLiteStore) CreateBankAccount(account *models.BankAccount) error {
	_, err := s.db.Exec(
		`INSERT INTO bank_accounts (id, bank_name, account_number, created_at) VALUES (?, ?, ?, ?)`,
		account.ID.String(), account.BankName, account.AccountNumber, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bank account: %w", err)
	}
	return nil
}

func scanBankAccount(row scanner) (*models.BankAccount, error) {
	var a models.BankAccount
	var id string
	if err := row.Scan(&id, &a.BankName, &a.AccountNumber, &a.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt bank account id %q: %w", id, err)
	}
	return &a, nil
}

func (s *SQLiteStore) GetBankAccount(id uuid.UUID) (*models.BankAccount, error) {
	a, err := scanBankAccount(s.db.QueryRow(`SELECT id, bank_name, account_number, created_at FROM bank_accounts WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bank account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) GetBankAccounts() ([]*models.BankAccount, error) {
	rows, err := s.db.Query(`SELECT id, bank_name, account_number, created_at FROM bank_accounts ORDER BY bank_name, account_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for bank accounts: %w", err)
	}
	return accounts, nil
}

func (s *SQLiteStore) CreateBankTransaction(t *models.BankTransaction) error {
	_, err := s.db.Exec(
		`INSERT INTO bank_transactions (id, account_id, date, amount, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.AccountID.String(), money.FormatDate(t.Date), t.Amount, t.Description, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bank transaction: %w", err)
	}
	return nil
}

// GetBankTransactions retrieves every bank transaction dated on or before asOf.
func (s *SQLiteStore) GetBankTransactions(asOf time.Time) ([]*models.BankTransaction, error) {
	rows, err := s.db.Query(`SELECT id, account_id, date, amount, description, created_at FROM bank_transactions WHERE date <= ? ORDER BY date, created_at`, money.FormatDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query bank transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.BankTransaction
	for rows.Next() {
		var t models.BankTransaction
		var id, accountID, date string
		if err := rows.Scan(&id, &accountID, &date, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank transaction row: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt bank transaction id %q: %w", id, err)
		}
		if t.AccountID, err = uuid.Parse(accountID); err != nil {
			return nil, fmt.Errorf("corrupt account id on bank transaction %s: %w", id, err)
		}
		if t.Date, err = scanDate(date); err != nil {
			return nil, err
		}
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for bank transactions: %w", err)
	}
	return txs, nil
}

// ---- dividends ----

const dividendColumns = `id, quarter_end_date, total_shares, profit_amount, dividend_rate, pool, calculation_date, created_at`
const dividendPaymentColumns = `id, dividend_id, member_id, date, shares, proportion, amount, status, paid_at`

// SaveDividend stores a dividend and all of its member payments in one transaction.
func (s *SQLiteStore) SaveDividend(d *models.Dividend, payments []*models.DividendPayment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO dividends (`+dividendColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), money.FormatDate(d.QuarterEndDate), d.TotalShares, d.ProfitAmount, d.DividendRate, d.Pool,
		money.FormatDate(d.CalculationDate), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dividend: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO dividend_payments (` + dividendPaymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare dividend payment insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range payments {
		if _, err := stmt.Exec(p.ID.String(), p.DividendID.String(), p.MemberID.String(), money.FormatDate(p.Date),
			p.Shares, p.Proportion, p.Amount, string(p.Status), p.PaidAt); err != nil {
			return fmt.Errorf("failed to create dividend payment for member %s: %w", p.MemberID, err)
		}
	}

	return tx.Commit()
}

func scanDividend(row scanner) (*models.Dividend, error) {
	var d models.Dividend
	var id, quarterEnd, calculated string
	if err := row.Scan(&id, &quarterEnd, &d.TotalShares, &d.ProfitAmount, &d.DividendRate, &d.Pool, &calculated, &d.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt dividend id %q: %w", id, err)
	}
	if d.QuarterEndDate, err = scanDate(quarterEnd); err != nil {
		return nil, err
	}
	if d.CalculationDate, err = scanDate(calculated); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) GetDividend(id uuid.UUID) (*models.Dividend, error) {
	d, err := scanDividend(s.db.QueryRow(`SELECT `+dividendColumns+` FROM dividends WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("dividend %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dividend: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) GetDividends() ([]*models.Dividend, error) {
	rows, err := s.db.Query(`SELECT ` + dividendColumns + ` FROM dividends ORDER BY quarter_end_date DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var dividends []*models.Dividend
	for rows.Next() {
		d, err := scanDividend(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dividend row: %w", err)
		}
		dividends = append(dividends, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for dividends: %w", err)
	}
	return dividends, nil
}

func (s *SQLiteStore) GetDividendPayment(id uuid.UUID) (*models.DividendPayment, error) {
	payments, err := s.queryDividendPayments(`SELECT `+dividendPaymentColumns+` FROM dividend_payments WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("dividend payment %s: %w", id, ErrNotFound)
	}
	return payments[0], nil
}

func (s *SQLiteStore) GetDividendPayments(dividendID uuid.UUID) ([]*models.DividendPayment, error) {
	return s.queryDividendPayments(`SELECT `+dividendPaymentColumns+` FROM dividend_payments WHERE dividend_id = ? ORDER BY member_id`, dividendID.String())
}

// GetMemberDividendPayments retrieves every dividend allotment dated on or before asOf.
func (s *SQLiteStore) GetMemberDividendPayments(asOf time.Time) ([]*models.DividendPayment, error) {
	return s.queryDividendPayments(`SELECT `+dividendPaymentColumns+` FROM dividend_payments WHERE date <= ? ORDER BY date`, money.FormatDate(asOf))
}

func (s *SQLiteStore) queryDividendPayments(query string, args ...any) ([]*models.DividendPayment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividend payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.DividendPayment
	for rows.Next() {
		var p models.DividendPayment
		var id, dividendID, memberID, date, status string
		var paidAt sql.NullTime
		if err := rows.Scan(&id, &dividendID, &memberID, &date, &p.Shares, &p.Proportion, &p.Amount, &status, &paidAt); err != nil {
			return nil, fmt.Errorf("failed to scan dividend payment row: %w", err)
		}
		if p.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt dividend payment id %q: %w", id, err)
		}
		if p.DividendID, err = uuid.Parse(dividendID); err != nil {
			return nil, fmt.Errorf("corrupt dividend id on payment %s: %w", id, err)
		}
		if p.MemberID, err = uuid.Parse(memberID); err != nil {
			return nil, fmt.Errorf("corrupt member id on payment %s: %w", id, err)
		}
		if p.Date, err = scanDate(date); err != nil {
			return nil, err
		}
		p.Status = models.DividendPaymentStatus(status)
		if paidAt.Valid {
			p.PaidAt = &paidAt.Time
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for dividend payments: %w", err)
	}
	return payments, nil
}

// MarkDividendPaymentPaid moves a pending allotment to paid and books the
// payout, if any, against cash.
func (s *SQLiteStore) MarkDividendPaymentPaid(id uuid.UUID, paidAt time.Time, payout *models.CashbookEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE dividend_payments SET status = ?, paid_at = ? WHERE id = ? AND status = ?`,
		string(models.DividendPaymentPaid), paidAt, id.String(), string(models.DividendPaymentPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark dividend payment paid: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		if payout != nil {
			if err := insertCashbookEntry(tx, payout); err != nil {
				return err
			}
		}
		return tx.Commit()
	}

	var exists int
	err = tx.QueryRow(`SELECT COUNT(1) FROM dividend_payments WHERE id = ?`, id.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up dividend payment: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("dividend payment %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("dividend payment %s: %w", id, ErrAlreadyPaid)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
