package legacy

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"holdings-sync/feature/catalog"
	"holdings-sync/feature/catalog/models"
	"holdings-sync/feature/changes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const bookMarc = `{"leader":"00000cam a2200000 a 4500","fields":[{"245":{"ind1":"1","ind2":"0","subfields":[{"a":"Numerical recipes /"}]}},{"300":{"ind1":" ","ind2":" ","subfields":[{"a":"3 v. ;"},{"c":"26 cm."}]}}]}`

func strPtr(s string) *string { return &s }

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", regexp.MustCompile(`\W`).ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&BibRow{}, &HoldingRow{}, &ItemRow{}, &BoundWithRow{},
		&CircRow{}, &OrderRow{}, &ReserveRow{}, &LocationRow{},
	))
	return db
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	returned := t0.Add(-time.Hour)
	require.NoError(t, db.Create(&[]LocationRow{
		{ID: "1", Code: "olin", Name: "Olin Library", Library: "Olin"},
		{ID: "2", Code: "serv,remo", Name: "Online", Online: true},
	}).Error)
	require.NoError(t, db.Create(&[]BibRow{
		{ID: "100", Marc: bookMarc, UpdatedAt: t0},
		{ID: "200", UpdatedAt: t0.Add(-time.Hour)},
		{ID: "300", Suppressed: true, UpdatedAt: t0},
	}).Error)
	require.NoError(t, db.Create(&[]HoldingRow{
		{ID: "h1", BibID: "100", LocationCode: "olin", CallNumber: " QA297 .N866 ", Descriptions: "v.1-3\n\n", UpdatedAt: t0},
		{ID: "h2", BibID: "100", LocationCode: "serv,remo", UpdatedAt: t0.Add(-time.Hour)},
		{ID: "h3", BibID: "200", LocationCode: "olin", CallNumber: "PS3545", UpdatedAt: t0.Add(-time.Hour)},
	}).Error)
	require.NoError(t, db.Create(&[]ItemRow{
		{ID: "i1", HoldingID: "h1", Barcode: strPtr("31924001"), Enumeration: "v.1", LocationCode: "olin", StatusCode: "Not Charged", UpdatedAt: t0},
		{ID: "i2", HoldingID: "h1", Barcode: strPtr("31924002"), Enumeration: "v.2", LocationCode: "annex", StatusCode: "Charged", StatusDetail: "Checked out", UpdatedAt: t0},
		{ID: "i3", HoldingID: "h1", Enumeration: "", LocationCode: "olin", UpdatedAt: t0},
		{ID: "i4", HoldingID: "h3", Barcode: strPtr("31924009"), LocationCode: "olin", StatusCode: "Discharged", ReturnedAt: &returned, UpdatedAt: t0.Add(-time.Hour)},
	}).Error)
	require.NoError(t, db.Create(&[]BoundWithRow{
		{HoldingID: "h1", PlaceholderItemID: "i3", MasterBibID: "200", MasterBarcode: "31924002", MasterTitle: "Other work"},
	}).Error)
	require.NoError(t, db.Create(&[]CircRow{
		{ItemID: "i4", Action: "discharge", LocationCode: "olin", CreatedAt: t0.Add(time.Minute)},
	}).Error)
	require.NoError(t, db.Create(&[]OrderRow{
		{ID: "o1", BibID: "200", Status: "Received", UpdatedAt: t0.Add(2 * time.Minute)},
	}).Error)
	require.NoError(t, db.Create(&[]ReserveRow{
		{ItemID: "i1", Course: "MATH 2940", UpdatedAt: t0.Add(3 * time.Minute)},
	}).Error)
}

func newSource(t *testing.T, db *gorm.DB) *Source {
	t.Helper()
	locs, err := LoadLocations(context.Background(), db, Schema{})
	require.NoError(t, err)
	return New(db, Schema{}, locs, nil, nil)
}

func TestSource_FetchRecord(t *testing.T) {
	db := setupDB(t)
	seed(t, db)
	s := newSource(t, db)

	rec, err := s.FetchRecord(context.Background(), "100")
	require.NoError(t, err)

	assert.True(t, rec.Active)
	assert.Equal(t, "Numerical recipes", rec.Bib.Title)
	assert.Equal(t, "3 v. ; 26 cm", rec.Bib.PhysicalDescription)
	require.Len(t, rec.Holdings, 2)

	h1 := rec.Holdings[0]
	assert.Equal(t, "QA297 .N866", h1.Call)
	assert.Equal(t, "Olin Library", h1.Location.DisplayName())
	assert.Equal(t, []string{"v.1-3"}, h1.Descriptions)
	require.Len(t, h1.BoundWiths, 1)
	for _, ref := range h1.BoundWiths {
		assert.Equal(t, "i3", ref.PlaceholderItemID)
		assert.Equal(t, "200", ref.MasterRecordID)
		assert.Equal(t, models.StatusUnavailable, ref.Status.Code)
	}

	assert.True(t, rec.Holdings[1].IsOnline(), "online comes from the location")

	require.Len(t, rec.Items, 3)
	assert.Equal(t, models.StatusAvailable, rec.Items[0].Status.Code)
	assert.Equal(t, "annex", rec.Items[1].Location.DisplayName(), "unknown codes fall back to the code")
	assert.True(t, rec.Items[2].IsPlaceholder())
	assert.True(t, rec.Items[2].Status.IsAvailable())
}

func TestSource_FetchRecordNotFound(t *testing.T) {
	db := setupDB(t)
	s := newSource(t, db)

	_, err := s.FetchRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSource_ChangedSince(t *testing.T) {
	db := setupDB(t)
	seed(t, db)
	s := newSource(t, db)
	ctx := context.Background()

	tests := []struct {
		lane    string
		want    []string
		typ     changes.Type
		details []string
	}{
		{LaneBibs, []string{"100", "300"}, changes.Bib, []string{"", ""}},
		{LaneHoldings, []string{"100"}, changes.Holding, []string{"h1"}},
		{LaneItems, []string{"100", "100", "100"}, changes.Item, []string{"Not Charged", "Charged", ""}},
		{LaneCirc, []string{"200"}, changes.Circ, []string{"discharge"}},
		{LaneOrders, []string{"200"}, changes.Order, []string{"Received"}},
		{LaneReserves, []string{"100"}, changes.Reserve, []string{"MATH 2940"}},
	}

	for _, tt := range tests {
		t.Run(tt.lane, func(t *testing.T) {
			got, err := s.ChangedSince(ctx, tt.lane, t0)
			require.NoError(t, err)
			var subjects, details []string
			for _, c := range got {
				assert.Equal(t, tt.typ, c.Type)
				subjects = append(subjects, c.SubjectID)
				details = append(details, c.Detail)
			}
			assert.ElementsMatch(t, tt.want, subjects)
			assert.ElementsMatch(t, tt.details, details)
		})
	}

	_, err := s.ChangedSince(ctx, "nope", t0)
	assert.Error(t, err)
}

func TestSource_Active(t *testing.T) {
	db := setupDB(t)
	seed(t, db)
	s := newSource(t, db)
	ctx := context.Background()

	active, err := s.IsActive(ctx, "100")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = s.IsActive(ctx, "300")
	require.NoError(t, err)
	assert.False(t, active)

	ids, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "200"}, ids)
}

func TestVerify(t *testing.T) {
	db := setupDB(t)

	problems, err := Verify(db, Schema{})
	require.NoError(t, err)
	assert.Empty(t, problems)

	problems, err = Verify(db, Schema{Orders: "acq_order"})
	require.NoError(t, err)
	assert.Equal(t, []string{"table acq_order: missing"}, problems)
}
