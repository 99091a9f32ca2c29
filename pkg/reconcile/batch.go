// Package reconcile implements the monthly reconciliation worksheet: one row
// per meter, operator edits to start/end readings, a staging checkbox per
// row, and the bulk submission built from the staged rows.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/panudet-24mb/market-management/models"
)

var (
	// ErrReadingsIncomplete blocks staging a row that is missing a reading.
	ErrReadingsIncomplete = errors.New("fill meter values first")
	// ErrRowLocked blocks edits to a staged or confirmed row.
	ErrRowLocked = errors.New("row is locked")
	// ErrEmptyBatch means no staged row had anything to submit.
	ErrEmptyBatch = errors.New("nothing selected to submit")
	// ErrUnknownMeter means the meter is not on this month's worksheet.
	ErrUnknownMeter = errors.New("meter not in batch")
)

// Row is one meter's line on the worksheet. UsageID is zero when the month
// has no stored record yet and submission will create one.
type Row struct {
	MeterID  uint
	UsageID  uint
	AssetTag string
	Start    int64
	End      *int64
	Note     string
	Status   models.UsageStatus

	selected bool
}

// Usage reports the derived consumption. The second return is false while
// the end reading is missing.
func (r Row) Usage() (int64, bool) {
	if r.End == nil {
		return 0, false
	}
	return *r.End - r.Start, true
}

// Selected reports whether the row is staged for submission.
func (r Row) Selected() bool { return r.selected }

// Batch is the in-memory worksheet for one month.
type Batch struct {
	Month string
	rows  []Row
	index map[uint]int
}

func NewBatch(month string, rows []Row) (*Batch, error) {
	if !models.ValidMonth(month) {
		return nil, fmt.Errorf("invalid month %q", month)
	}
	b := &Batch{Month: month, rows: rows, index: make(map[uint]int, len(rows))}
	for i, r := range rows {
		b.index[r.MeterID] = i
	}
	return b, nil
}

// Rows returns a copy of the worksheet rows in order.
func (b *Batch) Rows() []Row {
	out := make([]Row, len(b.rows))
	copy(out, b.rows)
	return out
}

func (b *Batch) row(meterID uint) (*Row, error) {
	i, ok := b.index[meterID]
	if !ok {
		return nil, ErrUnknownMeter
	}
	return &b.rows[i], nil
}

func (b *Batch) editable(r *Row) error {
	if r.selected {
		return ErrRowLocked
	}
	if !r.Status.Editable() {
		return ErrRowLocked
	}
	return nil
}

// SetStart updates a row's start reading. Staged and confirmed rows reject
// edits; the operator must unstage first.
func (b *Batch) SetStart(meterID uint, v int64) error {
	r, err := b.row(meterID)
	if err != nil {
		return err
	}
	if err := b.editable(r); err != nil {
		return err
	}
	r.Start = v
	return nil
}

// SetEnd updates a row's end reading.
func (b *Batch) SetEnd(meterID uint, v int64) error {
	r, err := b.row(meterID)
	if err != nil {
		return err
	}
	if err := b.editable(r); err != nil {
		return err
	}
	r.End = &v
	return nil
}

// SetNote updates a row's note.
func (b *Batch) SetNote(meterID uint, note string) error {
	r, err := b.row(meterID)
	if err != nil {
		return err
	}
	if err := b.editable(r); err != nil {
		return err
	}
	r.Note = note
	return nil
}

// Toggle flips a row's staging checkbox. Staging requires both readings to
// be present; unstaging is always allowed on editable rows so a mistake can
// be backed out.
func (b *Batch) Toggle(meterID uint) error {
	r, err := b.row(meterID)
	if err != nil {
		return err
	}
	if !r.Status.Editable() {
		return ErrRowLocked
	}
	if r.selected {
		r.selected = false
		return nil
	}
	if r.End == nil {
		return ErrReadingsIncomplete
	}
	r.selected = true
	return nil
}

// Entry is one line of a bulk submission. Exactly one of MeterID and
// MeterUsageID is set: MeterID when the month row has no stored record yet,
// MeterUsageID when an existing record is being updated.
type Entry struct {
	MeterID      *uint  `json:"meter_id"`
	MeterUsageID *uint  `json:"meter_usage_id"`
	MeterStart   int64  `json:"meter_start"`
	MeterEnd     int64  `json:"meter_end"`
	Note         string `json:"note"`
}

// Submission is the payload for the bulk update endpoint.
type Submission struct {
	Month string  `json:"month"`
	Data  []Entry `json:"data"`
}

// BuildSubmission collects the staged rows. Rows without an end reading are
// skipped even if staging let one slip through; a submission with no entries
// fails with ErrEmptyBatch.
func (b *Batch) BuildSubmission() (Submission, error) {
	sub := Submission{Month: b.Month}
	for i := range b.rows {
		r := &b.rows[i]
		if !r.selected || r.End == nil {
			continue
		}
		e := Entry{
			MeterStart: r.Start,
			MeterEnd:   *r.End,
			Note:       r.Note,
		}
		if r.UsageID != 0 {
			id := r.UsageID
			e.MeterUsageID = &id
		} else {
			id := r.MeterID
			e.MeterID = &id
		}
		sub.Data = append(sub.Data, e)
	}
	if len(sub.Data) == 0 {
		return Submission{}, ErrEmptyBatch
	}
	return sub, nil
}
