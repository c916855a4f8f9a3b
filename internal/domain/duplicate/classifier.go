// Package duplicate scores an expense against same-company candidates and classifies it as a
// potential or strong duplicate. Classification is advisory and never blocks a write.
package duplicate

import (
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/similarity"
)

// Signal names, in the fixed order they appear in a reason
const (
	SignalVendor    = "vendor"
	SignalAmount    = "amount"
	SignalDate      = "date"
	SignalInvoiceID = "invoice_id"
)

// MinPotentialSignals is how many signals must match for a POTENTIAL_DUPLICATE
const MinPotentialSignals = 3

const reasonSeparator = " + "

// Result is the classification of one expense. A nil Flag means "not a duplicate".
type Result struct {
	Flag        *entity.DuplicateFlag `json:"flag"`
	Reason      *string               `json:"reason"`
	CandidateID int64                 `json:"candidate_id,omitempty"`
}

// IsDuplicate reports whether the result carries a flag
func (r Result) IsDuplicate() bool {
	return r.Flag != nil
}

// None is the empty classification
func None() Result {
	return Result{}
}

func flagged(flag entity.DuplicateFlag, reason string, candidateID int64) Result {
	return Result{Flag: &flag, Reason: &reason, CandidateID: candidateID}
}

// Subject is the normalised view of the expense being checked
type Subject struct {
	Vendor    string
	Amount    float64
	Date      time.Time
	InvoiceID string
	WindowLo  time.Time
	WindowHi  time.Time
}

// NewSubject builds the comparison view of e. ok is false when there is not enough data to
// classify (empty vendor or missing date); such expenses are never flagged.
func NewSubject(e *entity.Expense) (Subject, bool) {
	if e == nil {
		return Subject{}, false
	}

	vendor := similarity.NormalizeVendor(e.Vendor)
	date := e.ComparisonDate()
	if vendor == "" || date.IsZero() {
		return Subject{}, false
	}

	lo, hi := similarity.DayBounds(date)
	return Subject{
		Vendor:    vendor,
		Amount:    similarity.NormalizeAmount(e.ComparisonAmount()),
		Date:      date,
		InvoiceID: similarity.NormalizeInvoiceID(e.InvoiceID),
		WindowLo:  lo,
		WindowHi:  hi,
	}, true
}

// Signals holds the four boolean match signals between a subject and one candidate
type Signals struct {
	Vendor    bool
	Amount    bool
	Date      bool
	InvoiceID bool
}

// Count returns how many signals matched
func (s Signals) Count() int {
	n := 0
	for _, ok := range []bool{s.Vendor, s.Amount, s.Date, s.InvoiceID} {
		if ok {
			n++
		}
	}
	return n
}

// Names lists matched signal names in fixed order, at most MinPotentialSignals of them
func (s Signals) Names() []string {
	names := make([]string, 0, 4)
	if s.Vendor {
		names = append(names, SignalVendor)
	}
	if s.Amount {
		names = append(names, SignalAmount)
	}
	if s.Date {
		names = append(names, SignalDate)
	}
	if s.InvoiceID {
		names = append(names, SignalInvoiceID)
	}
	if len(names) > MinPotentialSignals {
		names = names[:MinPotentialSignals]
	}
	return names
}

// Score computes the match signals between subject and candidate
func Score(subject Subject, candidate *entity.Expense) Signals {
	var s Signals

	s.Vendor = similarity.NormalizeVendor(candidate.Vendor) == subject.Vendor
	s.Amount = similarity.NormalizeAmount(candidate.ComparisonAmount()) == subject.Amount

	s.Date = similarity.InWindow(candidate.ExpenseDate, subject.WindowLo, subject.WindowHi)
	if !s.Date && candidate.InvoiceDate != nil {
		s.Date = similarity.InWindow(*candidate.InvoiceDate, subject.WindowLo, subject.WindowHi)
	}

	if subject.InvoiceID != "" {
		other := similarity.NormalizeInvoiceID(candidate.InvoiceID)
		s.InvoiceID = other != "" && other == subject.InvoiceID
	}
	return s
}

// Classify applies the priority rules to candidates in the order given:
// an invoice-id match wins immediately, otherwise the first candidate with at least
// MinPotentialSignals matching signals, otherwise no flag.
func Classify(subject Subject, candidates []*entity.Expense) Result {
	var potential *Result

	for _, c := range candidates {
		if c == nil {
			continue
		}
		s := Score(subject, c)
		if s.InvoiceID {
			return flagged(entity.DuplicateStrong, SignalInvoiceID, c.ID)
		}
		if potential == nil && s.Count() >= MinPotentialSignals {
			r := flagged(entity.DuplicatePotential, strings.Join(s.Names(), reasonSeparator), c.ID)
			potential = &r
		}
	}

	if potential != nil {
		return *potential
	}
	return None()
}

// Check classifies e against candidates, skipping the expense itself and excluded statuses
func Check(e *entity.Expense, candidates []*entity.Expense) Result {
	subject, ok := NewSubject(e)
	if !ok {
		return None()
	}

	filtered := make([]*entity.Expense, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || (e.ID != 0 && c.ID == e.ID) || entity.IsExcludedFromDuplicateSearch(c.Status) {
			continue
		}
		filtered = append(filtered, c)
	}
	return Classify(subject, filtered)
}
