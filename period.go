package ledger

// Period service: fiscal period lifecycle and the posting gate every
// journal write passes through. Grounded on the teacher's Period type
// and PostingEngine.validatePeriod stub in posting_engine.go, generalized
// from a single soft/hard-closed boolean pair into the full
// OPEN -> CLOSING -> CLOSED -> LOCKED state machine.

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// PeriodStatus is a FiscalPeriod's lifecycle state.
type PeriodStatus string

const (
	PeriodOpen    PeriodStatus = "OPEN"
	PeriodClosing PeriodStatus = "CLOSING"
	PeriodClosed  PeriodStatus = "CLOSED"
	PeriodLocked  PeriodStatus = "LOCKED"
)

// FiscalPeriod is one accounting period and its lifecycle state.
type FiscalPeriod struct {
	ID                string       `json:"id"`
	PeriodCode        string       `json:"period_code"`
	StartDate         string       `json:"start_date"`
	EndDate           string       `json:"end_date"`
	Status            PeriodStatus `json:"status"`
	AllowsAdjustments bool         `json:"allows_adjustments"`
	ClosingRunID      string       `json:"closing_run_id,omitempty"`
}

// PeriodService owns FiscalPeriod storage and lifecycle transitions.
type PeriodService struct {
	storage *Storage
}

// NewPeriodService binds a PeriodService to storage.
func NewPeriodService(storage *Storage) *PeriodService {
	return &PeriodService{storage: storage}
}

// Open creates a new OPEN period.
func (ps *PeriodService) Open(period *FiscalPeriod) error {
	period.Status = PeriodOpen
	return ps.storage.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx, bucketPeriods, period.PeriodCode, period)
	})
}

// Get loads a period by its canonical code.
func (ps *PeriodService) Get(periodCode string) (*FiscalPeriod, error) {
	var p FiscalPeriod
	err := ps.storage.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketPeriods, periodCode, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetForDate loads the period whose [start_date, end_date] window
// contains date (format "2006-01-02").
func (ps *PeriodService) GetForDate(date string) (*FiscalPeriod, error) {
	var found *FiscalPeriod
	err := ps.storage.db.View(func(tx *bbolt.Tx) error {
		return iterate(tx, bucketPeriods, func(_, v []byte) error {
			var p FiscalPeriod
			if err := decodeJSONInto(v, &p); err != nil {
				return err
			}
			if date >= p.StartDate && date <= p.EndDate {
				found = &p
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no fiscal period covers date %s", ErrNotFound, date)
	}
	return found, nil
}

// PostingKind distinguishes an ordinary posting from the special kinds
// the period gate treats differently.
type PostingKind struct {
	IsClosePosting bool // posted by the close orchestrator itself, during CLOSING
	IsAdjustment   bool // an explicitly flagged correction, requires allows_adjustments
}

// ValidateEffectiveDate is the posting gate called by the journal writer
// for every intent: the period covering date must be OPEN, or CLOSING
// when kind allows it. Any other state fails with a stable code.
func (ps *PeriodService) ValidateEffectiveDate(date string, kind PostingKind) error {
	p, err := ps.GetForDate(date)
	if err != nil {
		return err
	}
	return ValidatePeriodStatusTx(p, kind)
}

// ValidateEffectiveDateTx is ValidateEffectiveDate's transactional form,
// used by the coordinator so the read is part of the posting transaction.
func (ps *PeriodService) ValidateEffectiveDateTx(tx *bbolt.Tx, date string, kind PostingKind) (*FiscalPeriod, error) {
	var found *FiscalPeriod
	if err := iterate(tx, bucketPeriods, func(_, v []byte) error {
		var p FiscalPeriod
		if err := decodeJSONInto(v, &p); err != nil {
			return err
		}
		if date >= p.StartDate && date <= p.EndDate {
			found = &p
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no fiscal period covers date %s", ErrNotFound, date)
	}
	if err := ValidatePeriodStatusTx(found, kind); err != nil {
		return nil, err
	}
	return found, nil
}

// ValidatePeriodStatusTx applies the posting-gate rules for a period
// already loaded, without a storage round trip. An ordinary posting
// needs OPEN. A close-posting additionally passes during CLOSING. An
// adjustment additionally passes during CLOSING if the period's
// allows_adjustments flag is set.
func ValidatePeriodStatusTx(p *FiscalPeriod, kind PostingKind) error {
	switch p.Status {
	case PeriodOpen:
		return nil
	case PeriodClosing:
		if kind.IsClosePosting {
			return nil
		}
		if kind.IsAdjustment {
			if !p.AllowsAdjustments {
				return NewKernelError(CodeAdjustmentsNotAllowed, fmt.Sprintf("period %s does not allow adjustments", p.PeriodCode), nil)
			}
			return nil
		}
		return NewKernelError(CodePeriodClosing, fmt.Sprintf("period %s is closing; only close-postings or allowed adjustments are accepted", p.PeriodCode), nil)
	case PeriodClosed, PeriodLocked:
		return NewKernelError(CodePeriodClosed, fmt.Sprintf("period %s is %s", p.PeriodCode, p.Status), nil)
	default:
		return fmt.Errorf("period %s has unknown status %q", p.PeriodCode, p.Status)
	}
}

// BeginClose transitions OPEN -> CLOSING, recording the closing run id.
func (ps *PeriodService) BeginClose(periodCode, actorID, runID string) error {
	return ps.storage.db.Update(func(tx *bbolt.Tx) error {
		var p FiscalPeriod
		if err := getJSON(tx, bucketPeriods, periodCode, &p); err != nil {
			return err
		}
		if p.Status != PeriodOpen {
			return fmt.Errorf("period %s: begin_close requires OPEN, got %s", periodCode, p.Status)
		}
		p.Status = PeriodClosing
		p.ClosingRunID = runID
		return putJSON(tx, bucketPeriods, periodCode, &p)
	})
}

// CancelClose reverts CLOSING -> OPEN, an authorized escape hatch.
func (ps *PeriodService) CancelClose(periodCode, actorID string) error {
	return ps.storage.db.Update(func(tx *bbolt.Tx) error {
		var p FiscalPeriod
		if err := getJSON(tx, bucketPeriods, periodCode, &p); err != nil {
			return err
		}
		if p.Status != PeriodClosing {
			return fmt.Errorf("period %s: cancel_close requires CLOSING, got %s", periodCode, p.Status)
		}
		p.Status = PeriodOpen
		p.ClosingRunID = ""
		return putJSON(tx, bucketPeriods, periodCode, &p)
	})
}

// CloseCheck is satisfied by whatever the caller uses to confirm every
// enforce_on_close subledger is reconciled and the trial balance
// balances, before Close is permitted to proceed.
type CloseCheck func(periodCode string) error

// Close transitions CLOSING -> CLOSED. check must already have verified
// every enforce_on_close subledger is reconciled and the trial balance
// balances; Close itself only performs the state transition.
func (ps *PeriodService) Close(periodCode, actorID string, check CloseCheck) error {
	if check != nil {
		if err := check(periodCode); err != nil {
			return fmt.Errorf("close preconditions not met for period %s: %w", periodCode, err)
		}
	}
	return ps.storage.db.Update(func(tx *bbolt.Tx) error {
		var p FiscalPeriod
		if err := getJSON(tx, bucketPeriods, periodCode, &p); err != nil {
			return err
		}
		if p.Status != PeriodClosing {
			return fmt.Errorf("period %s: close requires CLOSING, got %s", periodCode, p.Status)
		}
		p.Status = PeriodClosed
		p.ClosingRunID = ""
		return putJSON(tx, bucketPeriods, periodCode, &p)
	})
}

// Lock transitions CLOSED -> LOCKED, a terminal state.
func (ps *PeriodService) Lock(periodCode, actorID string) error {
	return ps.storage.db.Update(func(tx *bbolt.Tx) error {
		var p FiscalPeriod
		if err := getJSON(tx, bucketPeriods, periodCode, &p); err != nil {
			return err
		}
		if p.Status != PeriodClosed {
			return fmt.Errorf("period %s: lock requires CLOSED, got %s", periodCode, p.Status)
		}
		p.Status = PeriodLocked
		return putJSON(tx, bucketPeriods, periodCode, &p)
	})
}

