package rest

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
)

// Detection lanes of the REST catalog.
const (
	LaneInstances = "instances"
	LaneHoldings  = "holdings"
	LaneItems     = "items"
	LaneLoans     = "loans"
	LaneOrders    = "orders"
)

const onlineLocationCode = "serv,remo"

// ReturnWindow bounds how long after its last check-in an available item counts as returned.
const ReturnWindow = 24 * time.Hour

// Source implements catalog.Source on the REST catalog.
type Source struct {
	client    *Client
	locations *models.Locations
	parser    marc.Parser
	logger    *zap.Logger
	now       func() time.Time
}

var _ catalog.Source = (*Source)(nil)

// New creates a REST source. locations is the lookup built at startup by LoadLocations.
func New(client *Client, locations *models.Locations, parser marc.Parser, logger *zap.Logger) *Source {
	if parser == nil {
		parser = marc.JSONParser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client:    client,
		locations: locations,
		parser:    parser,
		logger:    logger.With(zap.String("source", catalog.SourceREST)),
		now:       time.Now,
	}
}

// LoadLocations reads every location into an immutable lookup keyed by id and code.
func LoadLocations(ctx context.Context, client *Client) (*models.Locations, error) {
	rows, err := GetAll[location](ctx, client, "/locations", "cql.allRecords=1", "locations")
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	locs := make([]models.Location, 0, len(rows))
	for _, r := range rows {
		name := r.DiscoveryDisplayName
		if name == "" {
			name = r.Name
		}
		locs = append(locs, models.Location{
			ID:      r.ID,
			Code:    r.Code,
			Name:    name,
			Library: r.LibraryID,
			Online:  r.Code == onlineLocationCode,
		})
	}
	return models.NewLocations(locs), nil
}

func (s *Source) Name() string {
	return catalog.SourceREST
}

func (s *Source) Lanes() []string {
	return []string{LaneInstances, LaneHoldings, LaneItems, LaneLoans, LaneOrders}
}

// ChangedSince lists the changes of a lane at or after since.
func (s *Source) ChangedSince(ctx context.Context, lane string, since time.Time) ([]changes.Change, error) {
	cql := fmt.Sprintf(`metadata.updatedDate>="%s" sortBy metadata.updatedDate`, cqlTime(since))

	switch lane {
	case LaneInstances:
		rows, err := GetAll[instance](ctx, s.client, "/instance-storage/instances", cql, "instances")
		if err != nil {
			return nil, fmt.Errorf("failed to poll lane %s: %w", lane, err)
		}
		out := make([]changes.Change, 0, len(rows))
		for _, r := range rows {
			out = append(out, changes.Change{Type: changes.Bib, SubjectID: r.ID, Timestamp: r.Metadata.UpdatedDate})
		}
		return out, nil

	case LaneHoldings:
		rows, err := GetAll[holdingsRecord](ctx, s.client, "/holdings-storage/holdings", cql, "holdingsRecords")
		if err != nil {
			return nil, fmt.Errorf("failed to poll lane %s: %w", lane, err)
		}
		out := make([]changes.Change, 0, len(rows))
		for _, r := range rows {
			out = append(out, changes.Change{
				Type:      changes.Holding,
				SubjectID: r.InstanceID,
				Detail:    r.ID,
				Timestamp: r.Metadata.UpdatedDate,
				Location:  s.locationCode(r.EffectiveLocationID),
			})
		}
		return out, nil

	case LaneItems:
		rows, err := GetAll[item](ctx, s.client, "/item-storage/items", cql, "items")
		if err != nil {
			return nil, fmt.Errorf("failed to poll lane %s: %w", lane, err)
		}
		instances, err := s.instancesOfHoldings(ctx, holdingIDsOf(rows))
		if err != nil {
			return nil, err
		}
		out := make([]changes.Change, 0, len(rows))
		for _, r := range rows {
			out = append(out, changes.Change{
				Type:      changes.Item,
				SubjectID: instances[r.HoldingsRecordID],
				Detail:    r.Status.Name,
				Timestamp: r.Metadata.UpdatedDate,
				Location:  s.locationCode(r.EffectiveLocationID),
			})
		}
		return dropUnresolved(out), nil

	case LaneLoans:
		rows, err := GetAll[loan](ctx, s.client, "/loan-storage/loans", cql, "loans")
		if err != nil {
			return nil, fmt.Errorf("failed to poll lane %s: %w", lane, err)
		}
		itemIDs := make([]string, 0, len(rows))
		for _, r := range rows {
			itemIDs = append(itemIDs, r.ItemID)
		}
		items, err := s.itemsByID(ctx, itemIDs)
		if err != nil {
			return nil, err
		}
		itemRows := make([]item, 0, len(items))
		for _, it := range items {
			itemRows = append(itemRows, it)
		}
		instances, err := s.instancesOfHoldings(ctx, holdingIDsOf(itemRows))
		if err != nil {
			return nil, err
		}
		out := make([]changes.Change, 0, len(rows))
		for _, r := range rows {
			out = append(out, changes.Change{
				Type:      changes.Circ,
				SubjectID: instances[items[r.ItemID].HoldingsRecordID],
				Detail:    r.Action,
				Timestamp: r.Metadata.UpdatedDate,
			})
		}
		return dropUnresolved(out), nil

	case LaneOrders:
		rows, err := GetAll[poLine](ctx, s.client, "/orders-storage/po-lines", cql, "poLines")
		if err != nil {
			return nil, fmt.Errorf("failed to poll lane %s: %w", lane, err)
		}
		out := make([]changes.Change, 0, len(rows))
		for _, r := range rows {
			out = append(out, changes.Change{
				Type:      changes.Order,
				SubjectID: r.InstanceID,
				Detail:    r.ReceiptStatus,
				Timestamp: r.Metadata.UpdatedDate,
			})
		}
		return dropUnresolved(out), nil
	}
	return nil, fmt.Errorf("unknown lane %q", lane)
}

func dropUnresolved(cs []changes.Change) []changes.Change {
	out := cs[:0]
	for _, c := range cs {
		if c.SubjectID != "" {
			out = append(out, c)
		}
	}
	return out
}

func holdingIDsOf(items []item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.HoldingsRecordID)
	}
	return ids
}

// batchIDs splits ids into distinct, non-empty chunks small enough for a CQL query.
func batchIDs(ids []string, size int) [][]string {
	seen := make(map[string]struct{}, len(ids))
	var uniq []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	var out [][]string
	for len(uniq) > 0 {
		n := min(size, len(uniq))
		out = append(out, uniq[:n])
		uniq = uniq[n:]
	}
	return out
}

func (s *Source) instancesOfHoldings(ctx context.Context, holdingIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, chunk := range batchIDs(holdingIDs, 50) {
		rows, err := GetAll[holdingsRecord](ctx, s.client, "/holdings-storage/holdings", cqlAny("id", chunk), "holdingsRecords")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve holdings: %w", err)
		}
		for _, r := range rows {
			out[r.ID] = r.InstanceID
		}
	}
	return out, nil
}

func (s *Source) itemsByID(ctx context.Context, ids []string) (map[string]item, error) {
	out := make(map[string]item)
	for _, chunk := range batchIDs(ids, 50) {
		rows, err := GetAll[item](ctx, s.client, "/item-storage/items", cqlAny("id", chunk), "items")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve items: %w", err)
		}
		for _, r := range rows {
			out[r.ID] = r
		}
	}
	return out, nil
}

// FetchRecord loads an instance with its holdings, items and bound-with parts.
func (s *Source) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	var inst instance
	if err := s.client.Get(ctx, "/instance-storage/instances/"+id, nil, &inst); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load instance %s: %w", id, err)
	}

	rec := &models.Record{ID: inst.ID, Active: !inst.DiscoverySuppress && !inst.StaffSuppress}
	rec.Bib.Title = inst.Title
	s.attachBib(ctx, rec)

	holdings, err := GetAll[holdingsRecord](ctx, s.client, "/holdings-storage/holdings", cqlAny("instanceId", []string{id}), "holdingsRecords")
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings of %s: %w", id, err)
	}
	if len(holdings) == 0 {
		return rec, nil
	}

	holdingIDs := make([]string, 0, len(holdings))
	byID := make(map[string]*models.Holding, len(holdings))
	for _, r := range holdings {
		h := s.toHolding(r)
		holdingIDs = append(holdingIDs, h.ID)
		byID[h.ID] = h
		rec.Holdings = append(rec.Holdings, h)
	}

	for _, chunk := range batchIDs(holdingIDs, 50) {
		items, err := GetAll[item](ctx, s.client, "/item-storage/items", cqlAny("holdingsRecordId", chunk), "items")
		if err != nil {
			return nil, fmt.Errorf("failed to load items of %s: %w", id, err)
		}
		for _, r := range items {
			rec.Items = append(rec.Items, s.toItem(r))
		}
	}

	if err := s.attachBoundWiths(ctx, holdingIDs, byID); err != nil {
		return nil, err
	}
	return rec, nil
}

// attachBib parses the MARC source record when one exists. A missing or broken
// source record leaves the instance title in place.
func (s *Source) attachBib(ctx context.Context, rec *models.Record) {
	var src sourceRecord
	err := s.client.Get(ctx, "/source-storage/records/"+rec.ID+"/formatted", map[string][]string{"idType": {"INSTANCE"}}, &src)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("Failed to load source record", zap.String("record_id", rec.ID), zap.Error(err))
		}
		return
	}
	fields, err := s.parser.Parse(src.ParsedRecord.Content)
	if err != nil {
		s.logger.Warn("Unparseable bibliographic record", zap.String("record_id", rec.ID), zap.Error(err))
		return
	}
	if fields.Title == "" {
		fields.Title = rec.Bib.Title
	}
	rec.Bib = fields
}

func (s *Source) attachBoundWiths(ctx context.Context, holdingIDs []string, byID map[string]*models.Holding) error {
	var parts []boundWithPart
	for _, chunk := range batchIDs(holdingIDs, 50) {
		rows, err := GetAll[boundWithPart](ctx, s.client, "/inventory-storage/bound-with-parts", cqlAny("holdingsRecordId", chunk), "boundWithParts")
		if err != nil {
			return fmt.Errorf("failed to load bound-with parts: %w", err)
		}
		parts = append(parts, rows...)
	}
	if len(parts) == 0 {
		return nil
	}

	masterIDs := make([]string, 0, len(parts))
	for _, p := range parts {
		masterIDs = append(masterIDs, p.ItemID)
	}
	masters, err := s.itemsByID(ctx, masterIDs)
	if err != nil {
		return err
	}
	masterItems := make([]item, 0, len(masters))
	for _, m := range masters {
		masterItems = append(masterItems, m)
	}
	instances, err := s.instancesOfHoldings(ctx, holdingIDsOf(masterItems))
	if err != nil {
		return err
	}

	for _, p := range parts {
		h := byID[p.HoldingsRecordID]
		if h == nil {
			continue
		}
		master, ok := masters[p.ItemID]
		if !ok {
			continue
		}
		// The master's own holding is not a bound-with reference.
		if master.HoldingsRecordID == h.ID {
			continue
		}
		if h.BoundWiths == nil {
			h.BoundWiths = make(map[string]models.BoundWithRef)
		}
		h.BoundWiths[p.ID] = models.BoundWithRef{
			MasterRecordID: instances[master.HoldingsRecordID],
			MasterBarcode:  master.Barcode,
			Status:         s.toStatus(master),
		}
	}
	return nil
}

func (s *Source) locationCode(id string) string {
	if loc := s.locations.ByID(id); loc != nil {
		return loc.Code
	}
	return ""
}

func (s *Source) location(id string) *models.Location {
	if id == "" {
		return nil
	}
	if loc := s.locations.ByID(id); loc != nil {
		return loc
	}
	return &models.Location{ID: id, Code: id, Name: id}
}

func (s *Source) toHolding(r holdingsRecord) *models.Holding {
	locID := r.EffectiveLocationID
	if locID == "" {
		locID = r.PermanentLocationID
	}
	h := &models.Holding{
		ID:        r.ID,
		RecordID:  r.InstanceID,
		Location:  s.location(locID),
		Call:      strings.TrimSpace(r.CallNumber),
		Active:    !r.DiscoverySuppress,
		Online:    r.Online,
		OrderNote: orderNote(r.OrderNote),
	}
	if h.Online == nil && h.Location != nil && h.Location.Online {
		h.Online = models.Bool(true)
	}
	for _, st := range r.HoldingsStatements {
		if line := strings.TrimSpace(st.Statement); line != "" {
			h.Descriptions = append(h.Descriptions, line)
		}
	}
	return h
}

// orderNote keeps receipt statuses that describe material not yet on the shelf.
func orderNote(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "received", "not required", "fully received":
		return ""
	}
	return strings.TrimSpace(status)
}

func (s *Source) toItem(r item) *models.Item {
	it := &models.Item{
		ID:          r.ID,
		HoldingID:   r.HoldingsRecordID,
		Barcode:     strings.TrimSpace(r.Barcode),
		Enumeration: r.Enumeration,
		Chronology:  r.Chronology,
		Year:        strings.Join(r.YearCaption, " "),
		Location:    s.location(r.EffectiveLocationID),
		LoanType:    r.PermanentLoanTypeID,
		Status:      s.toStatus(r),
		Active:      !r.DiscoverySuppress,
	}
	return it
}

// toStatus maps an item status. An available item checked in within ReturnWindow is marked returned.
func (s *Source) toStatus(r item) models.ItemStatus {
	st := models.ItemStatus{Detail: r.Status.Name, Due: r.DueDate}
	if r.Status.Name == "" {
		return st
	}
	if strings.EqualFold(r.Status.Name, "Available") {
		st.Code = models.StatusAvailable
		if r.LastCheckIn != nil && !r.LastCheckIn.DateTime.IsZero() &&
			s.now().Sub(r.LastCheckIn.DateTime) <= ReturnWindow {
			returned := r.LastCheckIn.DateTime
			st.Returned = &returned
		}
		return st
	}
	st.Code = models.StatusUnavailable
	return st
}

// IsActive reports whether the instance exists and is not suppressed.
func (s *Source) IsActive(ctx context.Context, id string) (bool, error) {
	var inst instance
	err := s.client.Get(ctx, "/instance-storage/instances/"+id, nil, &inst)
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check instance %s: %w", id, err)
	}
	return !inst.DiscoverySuppress && !inst.StaffSuppress, nil
}

// ListActive returns the ids of every unsuppressed instance.
func (s *Source) ListActive(ctx context.Context) ([]string, error) {
	rows, err := GetAll[instance](ctx, s.client, "/instance-storage/instances", "discoverySuppress==false sortBy id", "instances")
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if !r.StaffSuppress {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}
