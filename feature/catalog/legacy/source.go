// Package legacy reads records and changes from the relational legacy catalog.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"holdings-sync/feature/catalog"
	"holdings-sync/feature/catalog/marc"
	"holdings-sync/feature/catalog/models"
	"holdings-sync/feature/changes"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Detection lanes of the legacy catalog.
const (
	LaneBibs     = "bibs"
	LaneHoldings = "holdings"
	LaneItems    = "items"
	LaneCirc     = "circ"
	LaneOrders   = "orders"
	LaneReserves = "reserves"
)

// Source implements catalog.Source on the legacy catalog database.
type Source struct {
	db        *gorm.DB
	schema    Schema
	locations *models.Locations
	parser    marc.Parser
	logger    *zap.Logger
}

var _ catalog.Source = (*Source)(nil)

// New creates a legacy source. locations is the lookup built at startup by LoadLocations.
func New(db *gorm.DB, schema Schema, locations *models.Locations, parser marc.Parser, logger *zap.Logger) *Source {
	if parser == nil {
		parser = marc.JSONParser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		db:        db,
		schema:    schema.withDefaults(),
		locations: locations,
		parser:    parser,
		logger:    logger.With(zap.String("source", catalog.SourceLegacy)),
	}
}

// LoadLocations reads the location table into an immutable lookup.
func LoadLocations(ctx context.Context, db *gorm.DB, schema Schema) (*models.Locations, error) {
	schema = schema.withDefaults()
	var rows []LocationRow
	if err := db.WithContext(ctx).Table(schema.Locations).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	locs := make([]models.Location, 0, len(rows))
	for _, r := range rows {
		locs = append(locs, models.Location{ID: r.ID, Code: r.Code, Name: r.Name, Library: r.Library, Online: r.Online})
	}
	return models.NewLocations(locs), nil
}

func (s *Source) Name() string {
	return catalog.SourceLegacy
}

func (s *Source) Lanes() []string {
	return []string{LaneBibs, LaneHoldings, LaneItems, LaneCirc, LaneOrders, LaneReserves}
}

type changeRow struct {
	SubjectID string
	Ts        time.Time
	Detail    string
	Location  string
}

// ChangedSince lists the changes of a lane at or after since.
func (s *Source) ChangedSince(ctx context.Context, lane string, since time.Time) ([]changes.Change, error) {
	sc := s.schema
	db := s.db.WithContext(ctx)

	var (
		q   *gorm.DB
		typ changes.Type
	)
	switch lane {
	case LaneBibs:
		typ = changes.Bib
		q = db.Table(sc.Bibs+" AS b").
			Select("b.id AS subject_id, b.updated_at AS ts, '' AS detail, '' AS location").
			Where("b.updated_at >= ?", since)
	case LaneHoldings:
		typ = changes.Holding
		q = db.Table(sc.Holdings+" AS h").
			Select("h.bib_id AS subject_id, h.updated_at AS ts, h.id AS detail, h.location_code AS location").
			Where("h.updated_at >= ?", since)
	case LaneItems:
		typ = changes.Item
		q = db.Table(sc.Items+" AS i").
			Select("h.bib_id AS subject_id, i.updated_at AS ts, i.status_code AS detail, i.location_code AS location").
			Joins("JOIN "+sc.Holdings+" AS h ON h.id = i.holding_id").
			Where("i.updated_at >= ?", since)
	case LaneCirc:
		typ = changes.Circ
		q = db.Table(sc.Circ+" AS c").
			Select("h.bib_id AS subject_id, c.created_at AS ts, c.action AS detail, c.location_code AS location").
			Joins("JOIN "+sc.Items+" AS i ON i.id = c.item_id").
			Joins("JOIN "+sc.Holdings+" AS h ON h.id = i.holding_id").
			Where("c.created_at >= ?", since)
	case LaneOrders:
		typ = changes.Order
		q = db.Table(sc.Orders+" AS o").
			Select("o.bib_id AS subject_id, o.updated_at AS ts, o.status AS detail, '' AS location").
			Where("o.updated_at >= ?", since)
	case LaneReserves:
		typ = changes.Reserve
		q = db.Table(sc.Reserves+" AS r").
			Select("h.bib_id AS subject_id, r.updated_at AS ts, r.course AS detail, '' AS location").
			Joins("JOIN "+sc.Items+" AS i ON i.id = r.item_id").
			Joins("JOIN "+sc.Holdings+" AS h ON h.id = i.holding_id").
			Where("r.updated_at >= ?", since)
	default:
		return nil, fmt.Errorf("unknown lane %q", lane)
	}

	var rows []changeRow
	if err := q.Order("ts").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to poll lane %s: %w", lane, err)
	}

	out := make([]changes.Change, 0, len(rows))
	for _, r := range rows {
		if r.SubjectID == "" {
			continue
		}
		out = append(out, changes.Change{
			Type:      typ,
			SubjectID: r.SubjectID,
			Detail:    r.Detail,
			Timestamp: r.Ts,
			Location:  r.Location,
		})
	}
	return out, nil
}

// FetchRecord loads a record with its holdings, items and bound-with references.
func (s *Source) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	sc := s.schema
	db := s.db.WithContext(ctx)

	var bib BibRow
	err := db.Table(sc.Bibs).Where("id = ?", id).Take(&bib).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bib %s: %w", id, err)
	}

	rec := &models.Record{ID: bib.ID, Active: !bib.Suppressed}
	if bib.Marc != "" {
		fields, err := s.parser.Parse([]byte(bib.Marc))
		if err != nil {
			s.logger.Warn("Unparseable bibliographic record", zap.String("record_id", id), zap.Error(err))
		} else {
			rec.Bib = fields
		}
	}

	var holdingRows []HoldingRow
	if err := db.Table(sc.Holdings).Where("bib_id = ?", id).Order("id").Find(&holdingRows).Error; err != nil {
		return nil, fmt.Errorf("failed to load holdings of %s: %w", id, err)
	}
	if len(holdingRows) == 0 {
		return rec, nil
	}

	holdingIDs := make([]string, 0, len(holdingRows))
	byID := make(map[string]*models.Holding, len(holdingRows))
	for _, r := range holdingRows {
		h := s.toHolding(r)
		holdingIDs = append(holdingIDs, h.ID)
		byID[h.ID] = h
		rec.Holdings = append(rec.Holdings, h)
	}

	var itemRows []ItemRow
	if err := db.Table(sc.Items).Where("holding_id IN ?", holdingIDs).Order("id").Find(&itemRows).Error; err != nil {
		return nil, fmt.Errorf("failed to load items of %s: %w", id, err)
	}
	for _, r := range itemRows {
		rec.Items = append(rec.Items, s.toItem(r))
	}

	var bwRows []BoundWithRow
	if err := db.Table(sc.BoundWiths).Where("holding_id IN ?", holdingIDs).Order("id").Find(&bwRows).Error; err != nil {
		return nil, fmt.Errorf("failed to load bound-with references of %s: %w", id, err)
	}
	if len(bwRows) > 0 {
		statuses, err := s.masterStatuses(ctx, bwRows)
		if err != nil {
			return nil, err
		}
		for _, r := range bwRows {
			h := byID[r.HoldingID]
			if h == nil {
				continue
			}
			if h.BoundWiths == nil {
				h.BoundWiths = make(map[string]models.BoundWithRef)
			}
			h.BoundWiths[fmt.Sprint(r.ID)] = models.BoundWithRef{
				PlaceholderItemID: r.PlaceholderItemID,
				MasterRecordID:    r.MasterBibID,
				MasterBarcode:     r.MasterBarcode,
				MasterTitle:       r.MasterTitle,
				Status:            statuses[r.MasterBarcode],
			}
		}
	}

	return rec, nil
}

// masterStatuses looks up the circulation status of the real items behind bound-with references.
func (s *Source) masterStatuses(ctx context.Context, refs []BoundWithRow) (map[string]models.ItemStatus, error) {
	barcodes := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.MasterBarcode != "" {
			barcodes = append(barcodes, r.MasterBarcode)
		}
	}
	out := make(map[string]models.ItemStatus, len(barcodes))
	if len(barcodes) == 0 {
		return out, nil
	}
	var rows []ItemRow
	if err := s.db.WithContext(ctx).Table(s.schema.Items).Where("barcode IN ?", barcodes).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load bound-with master items: %w", err)
	}
	for _, r := range rows {
		if r.Barcode != nil {
			out[*r.Barcode] = toStatus(r)
		}
	}
	return out, nil
}

func (s *Source) location(code string) *models.Location {
	if code == "" {
		return nil
	}
	if loc := s.locations.ByCode(code); loc != nil {
		return loc
	}
	return &models.Location{Code: code, Name: code}
}

func (s *Source) toHolding(r HoldingRow) *models.Holding {
	h := &models.Holding{
		ID:        r.ID,
		RecordID:  r.BibID,
		Location:  s.location(r.LocationCode),
		Call:      strings.TrimSpace(r.CallNumber),
		Active:    !r.Suppressed,
		Online:    r.Online,
		OrderNote: strings.TrimSpace(r.OrderNote),
		Avail:     r.Avail,
	}
	if h.Online == nil && h.Location != nil && h.Location.Online {
		h.Online = models.Bool(true)
	}
	for _, line := range strings.Split(r.Descriptions, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			h.Descriptions = append(h.Descriptions, line)
		}
	}
	return h
}

func (s *Source) toItem(r ItemRow) *models.Item {
	item := &models.Item{
		ID:          r.ID,
		HoldingID:   r.HoldingID,
		Enumeration: r.Enumeration,
		Chronology:  r.Chronology,
		Year:        r.Year,
		Location:    s.location(r.LocationCode),
		LoanType:    r.LoanType,
		Status:      toStatus(r),
		Active:      !r.Suppressed,
	}
	if r.Barcode != nil {
		item.Barcode = strings.TrimSpace(*r.Barcode)
	}
	return item
}

func toStatus(r ItemRow) models.ItemStatus {
	st := models.ItemStatus{Detail: r.StatusDetail, Due: r.DueDate, Returned: r.ReturnedAt}
	switch strings.ToLower(r.StatusCode) {
	case "":
	case "available", "not charged", "discharged":
		st.Code = models.StatusAvailable
	default:
		st.Code = models.StatusUnavailable
	}
	return st
}

// IsActive reports whether the bib exists and is not suppressed.
func (s *Source) IsActive(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Table(s.schema.Bibs).
		Where("id = ? AND suppressed = ?", id, false).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check bib %s: %w", id, err)
	}
	return count > 0, nil
}

// ListActive returns the ids of every unsuppressed bib.
func (s *Source) ListActive(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Table(s.schema.Bibs).
		Where("suppressed = ?", false).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list active bibs: %w", err)
	}
	return ids, nil
}
