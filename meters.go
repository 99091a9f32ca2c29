package main

import (
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/panudet-24mb/market-management/models"
	"github.com/panudet-24mb/market-management/pkg/reconcile"
)

// monthRow is one worksheet line as served to the back office.
type monthRow struct {
	MeterID    uint               `json:"meter_id"`
	UsageID    *uint              `json:"meter_usage_id"`
	AssetTag   string             `json:"asset_tag"`
	MeterType  models.MeterType   `json:"meter_type"`
	Number     string             `json:"meter_number"`
	Serial     string             `json:"meter_serial"`
	Month      string             `json:"month"`
	MeterStart int64              `json:"meter_start"`
	MeterEnd   *int64             `json:"meter_end"`
	Usage      *int64             `json:"meter_usage"`
	Note       string             `json:"note"`
	ImgPath    string             `json:"img_path"`
	Status     models.UsageStatus `json:"status"`
}

// loadMonthRows joins every live meter with its usage record for the month.
// Meters without a record get a synthesized PENDING row whose start reading
// carries forward from the latest prior month's end, defaulting to zero for
// brand new meters.
func loadMonthRows(month string) ([]monthRow, error) {
	if !models.ValidMonth(month) {
		return nil, fmt.Errorf("invalid month %q", month)
	}
	var meters []models.Meter
	if err := db.Where("deleted_at IS NULL").Order("asset_tag").Find(&meters).Error; err != nil {
		return nil, err
	}
	var usages []models.MeterUsage
	if err := db.Where("month = ? AND deleted_at IS NULL", month).Find(&usages).Error; err != nil {
		return nil, err
	}
	byMeter := make(map[uint]*models.MeterUsage, len(usages))
	for i := range usages {
		byMeter[usages[i].MeterID] = &usages[i]
	}

	rows := make([]monthRow, 0, len(meters))
	for _, m := range meters {
		row := monthRow{
			MeterID:   m.ID,
			AssetTag:  m.AssetTag,
			MeterType: m.Type,
			Number:    m.Number,
			Serial:    m.Serial,
			Month:     month,
			Status:    models.UsagePending,
		}
		if u, ok := byMeter[m.ID]; ok {
			id := u.ID
			row.UsageID = &id
			row.MeterStart = u.MeterStart
			row.MeterEnd = u.MeterEnd
			row.Note = u.Note
			row.ImgPath = u.ImgPath
			row.Status = u.Status
			if usage, ok := u.Usage(); ok {
				row.Usage = &usage
			}
		} else {
			row.MeterStart = carriedStart(m.ID, month)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AssetTag < rows[j].AssetTag })
	return rows, nil
}

// carriedStart finds the latest recorded end reading before month.
func carriedStart(meterID uint, month string) int64 {
	var prev models.MeterUsage
	err := db.Where("meter_id = ? AND month < ? AND meter_end IS NOT NULL AND deleted_at IS NULL", meterID, month).
		Order("month DESC").First(&prev).Error
	if err != nil || prev.MeterEnd == nil {
		return 0
	}
	return *prev.MeterEnd
}

// toBatchRows converts worksheet rows into the reconciler's shape.
func toBatchRows(rows []monthRow) []reconcile.Row {
	out := make([]reconcile.Row, 0, len(rows))
	for _, r := range rows {
		br := reconcile.Row{
			MeterID:  r.MeterID,
			AssetTag: r.AssetTag,
			Start:    r.MeterStart,
			End:      r.MeterEnd,
			Note:     r.Note,
			Status:   r.Status,
		}
		if r.UsageID != nil {
			br.UsageID = *r.UsageID
		}
		out = append(out, br)
	}
	return out
}

// createUsage stores one month record, advancing status to UNCONFIRMED when
// an end reading is present.
func createUsage(tx *gorm.DB, meterID uint, month string, start int64, end *int64, note, imgPath string) (*models.MeterUsage, error) {
	if !models.ValidMonth(month) {
		return nil, fmt.Errorf("invalid month %q", month)
	}
	var meter models.Meter
	if err := tx.Where("id = ? AND deleted_at IS NULL", meterID).First(&meter).Error; err != nil {
		return nil, fmt.Errorf("meter %d not found", meterID)
	}
	u := models.MeterUsage{
		MeterID:    meterID,
		Month:      month,
		MeterStart: start,
		MeterEnd:   end,
		Note:       note,
		ImgPath:    imgPath,
		Status:     models.UsagePending,
	}
	if end != nil {
		u.Status = models.UsageUnconfirmed
	}
	if err := tx.Create(&u).Error; err != nil {
		return nil, err
	}
	logUsage(&u)
	return &u, nil
}

// applySubmission runs the bulk reconciliation update in one transaction.
// Each entry either updates an existing record by usage id or creates one by
// meter id; submitted rows end up CONFIRMED. Any failure rolls the whole
// batch back so the operator's staged state stays meaningful.
func applySubmission(sub reconcile.Submission) ([]models.MeterUsage, error) {
	if !models.ValidMonth(sub.Month) {
		return nil, fmt.Errorf("invalid month %q", sub.Month)
	}
	if len(sub.Data) == 0 {
		return nil, reconcile.ErrEmptyBatch
	}
	var out []models.MeterUsage
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, e := range sub.Data {
			var u *models.MeterUsage
			switch {
			case e.MeterUsageID != nil:
				var existing models.MeterUsage
				if err := tx.Where("id = ? AND deleted_at IS NULL", *e.MeterUsageID).First(&existing).Error; err != nil {
					return fmt.Errorf("usage %d not found", *e.MeterUsageID)
				}
				if existing.Month != sub.Month {
					return fmt.Errorf("usage %d belongs to %s, not %s", existing.ID, existing.Month, sub.Month)
				}
				if !existing.Status.Editable() {
					return fmt.Errorf("usage %d is already confirmed", existing.ID)
				}
				existing.MeterStart = e.MeterStart
				end := e.MeterEnd
				existing.MeterEnd = &end
				existing.Note = e.Note
				u = &existing
			case e.MeterID != nil:
				end := e.MeterEnd
				created, err := createUsage(tx, *e.MeterID, sub.Month, e.MeterStart, &end, e.Note, "")
				if err != nil {
					return err
				}
				u = created
			default:
				return errors.New("entry needs meter_id or meter_usage_id")
			}
			if u.Status == models.UsagePending {
				if err := u.Advance(models.UsageUnconfirmed); err != nil {
					return err
				}
			}
			if err := u.Advance(models.UsageConfirmed); err != nil {
				return err
			}
			if err := tx.Save(u).Error; err != nil {
				return err
			}
			logUsage(u)
			out = append(out, *u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// submitByAssetTag resolves a tag and records the end reading for the month,
// creating the row when the month has none yet. Used by field kiosks and the
// photo importer, which only know the printed tag.
func submitByAssetTag(assetTag, month string, value int64, imgPath string) (*models.MeterUsage, error) {
	if !models.ValidMonth(month) {
		return nil, fmt.Errorf("invalid month %q", month)
	}
	var meter models.Meter
	if err := db.Where("asset_tag = ? AND deleted_at IS NULL", assetTag).First(&meter).Error; err != nil {
		return nil, fmt.Errorf("unknown asset tag %q", assetTag)
	}
	var out *models.MeterUsage
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing models.MeterUsage
		err := tx.Where("meter_id = ? AND month = ? AND deleted_at IS NULL", meter.ID, month).First(&existing).Error
		if err == nil {
			if !existing.Status.Editable() {
				return fmt.Errorf("usage for %s %s is already confirmed", assetTag, month)
			}
			existing.MeterEnd = &value
			if imgPath != "" {
				existing.ImgPath = imgPath
			}
			if existing.Status == models.UsagePending {
				if err := existing.Advance(models.UsageUnconfirmed); err != nil {
					return err
				}
			}
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			logUsage(&existing)
			out = &existing
			return nil
		}
		start := carriedStart(meter.ID, month)
		created, err := createUsage(tx, meter.ID, month, start, &value, "", imgPath)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// logUsage records derived consumption, flagging negative values instead of
// rejecting them; meter rollovers and swaps legitimately run backwards.
func logUsage(u *models.MeterUsage) {
	usage, ok := u.Usage()
	if !ok {
		return
	}
	ev := logger.Info()
	if usage < 0 {
		ev = logger.Warn()
	}
	ev.Uint("meter_id", u.MeterID).Str("month", u.Month).Int64("usage", usage).Msg("meter usage recorded")
}
