package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the current balance of one ledger account.
type Account struct {
	ID        string          `json:"id"`
	Principal string          `json:"principal,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewAccount describes an account to create.
type NewAccount struct {
	ID             string
	Principal      string
	InitialBalance decimal.Decimal
}

// Operation is an immutable record of one applied deposit or withdraw.
type Operation struct {
	ID          int64           `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        Kind            `json:"kind"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewOperation is the input to Tx.AppendOperation.
type NewOperation struct {
	AccountID   string
	Amount      decimal.Decimal
	Kind        Kind
	Description string
}

// Before reports whether o sorts before other: by CreatedAt, ties broken by ID.
func (o Operation) Before(other Operation) bool {
	if o.CreatedAt.Equal(other.CreatedAt) {
		return o.ID < other.ID
	}
	return o.CreatedAt.Before(other.CreatedAt)
}

// Result is returned by a successful apply.
type Result struct {
	Operation  Operation       `json:"operation"`
	OldBalance decimal.Decimal `json:"old_balance"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Sort directions for Filter.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Filter selects a page of operations.
type Filter struct {
	// Search is a case-insensitive substring match on description
	Search  string
	Sort    string
	Page    int
	PerPage int
}

// Normalize fills defaults and clamps the page size.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	if strings.ToLower(f.Sort) == SortAsc {
		f.Sort = SortAsc
	} else {
		f.Sort = SortDesc
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

// Offset returns the number of rows skipped before the page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// Page is one page of operations with pagination metadata.
// From and To are 1-based positions of the first and last item, zero when empty.
type Page struct {
	Items       []Operation `json:"data"`
	CurrentPage int         `json:"current_page"`
	LastPage    int         `json:"last_page"`
	PerPage     int         `json:"per_page"`
	Total       int         `json:"total"`
	From        int         `json:"from"`
	To          int         `json:"to"`
}

// NewPage builds page metadata for items taken from a result set of size total.
// f must already be normalized.
func NewPage(items []Operation, total int, f Filter) Page {
	lastPage := 1
	if total > 0 {
		lastPage = (total + f.PerPage - 1) / f.PerPage
	}
	p := Page{
		Items:       items,
		CurrentPage: f.Page,
		LastPage:    lastPage,
		PerPage:     f.PerPage,
		Total:       total,
	}
	if p.Items == nil {
		p.Items = []Operation{}
	}
	if len(items) > 0 {
		p.From = f.Offset() + 1
		p.To = f.Offset() + len(items)
	}
	return p
}

// KindTotals aggregates operations of one kind.
type KindTotals struct {
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
	Max   decimal.Decimal `json:"max"`
}

// Totals aggregates all operations of an account.
type Totals struct {
	Deposits        KindTotals `json:"deposits"`
	Withdrawals     KindTotals `json:"withdrawals"`
	LastOperationAt *time.Time `json:"last_operation_at,omitempty"`
}

// Add folds op into t.
func (t *Totals) Add(op Operation) {
	var kt *KindTotals
	switch op.Kind {
	case KindDeposit:
		kt = &t.Deposits
	case KindWithdraw:
		kt = &t.Withdrawals
	default:
		return
	}
	kt.Count++
	kt.Sum = kt.Sum.Add(op.Amount)
	if op.Amount.GreaterThan(kt.Max) {
		kt.Max = op.Amount
	}
	if t.LastOperationAt == nil || op.CreatedAt.After(*t.LastOperationAt) {
		at := op.CreatedAt
		t.LastOperationAt = &at
	}
}

// MonthTotal is the sum of one kind within one calendar month.
type MonthTotal struct {
	Month time.Month
	Kind  Kind
	Sum   decimal.Decimal
}
