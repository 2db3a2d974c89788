package pipeline

import (
	"fmt"
	"strings"
	"time"

	"visitor-forecast/internal/model"
	"visitor-forecast/pkg/utils"
)

// rowDecoder reads typed cells out of generic rows, reporting the first
// unusable cell as a schema mismatch.
type rowDecoder struct {
	source string
	line   int
}

func (d *rowDecoder) fail(column, format string, args ...interface{}) error {
	return schemaMismatch(d.source, column, fmt.Sprintf("row %d: ", d.line)+fmt.Sprintf(format, args...))
}

func (d *rowDecoder) text(row model.Row, column string) (string, error) {
	s := strings.TrimSpace(utils.Text(row[column]))
	if s == "" {
		return "", d.fail(column, "missing required field")
	}
	return s, nil
}

func (d *rowDecoder) number(row model.Row, column string) (float64, error) {
	val, ok := row[column]
	if !ok || val == nil {
		return 0, d.fail(column, "missing required field")
	}
	switch val.(type) {
	case float64, float32, int, int64:
		// ok
	default:
		return 0, d.fail(column, "field must be numeric, got %T", val)
	}
	f, _ := utils.Numeric(val)
	return f, nil
}

func (d *rowDecoder) timestamp(row model.Row, column string) (time.Time, error) {
	t, ok := row[column].(time.Time)
	if !ok {
		return time.Time{}, d.fail(column, "field must be a date, got %T", row[column])
	}
	return t, nil
}

// DecodeReservations converts an air_reserve or hpg_reserve table into reservations.
func DecodeReservations(t *model.Table, storeColumn string) ([]model.Reservation, error) {
	d := &rowDecoder{source: t.Name}
	out := make([]model.Reservation, 0, t.Len())
	for i, row := range t.Rows {
		d.line = i + 1
		id, err := d.text(row, storeColumn)
		if err != nil {
			return nil, err
		}
		visit, err := d.timestamp(row, "visit_datetime")
		if err != nil {
			return nil, err
		}
		reserve, err := d.timestamp(row, "reserve_datetime")
		if err != nil {
			return nil, err
		}
		party, err := d.number(row, "reserve_visitors")
		if err != nil {
			return nil, err
		}
		out = append(out, model.Reservation{StoreID: id, VisitTime: visit, ReserveTime: reserve, PartySize: party})
	}
	return out, nil
}

// DecodeStoreInfo converts a store info table. Missing genre or area cells are
// kept as absent, as is a location unless both latitude and longitude are numeric.
func DecodeStoreInfo(t *model.Table, prefix string) ([]model.StoreInfo, error) {
	d := &rowDecoder{source: t.Name}
	idCol, genreCol, areaCol := prefix+"_store_id", prefix+"_genre_name", prefix+"_area_name"
	out := make([]model.StoreInfo, 0, t.Len())
	for i, row := range t.Rows {
		d.line = i + 1
		id, err := d.text(row, idCol)
		if err != nil {
			return nil, err
		}
		info := model.StoreInfo{StoreID: id}
		if g := strings.TrimSpace(utils.Text(row[genreCol])); g != "" {
			info.Genre, info.HasGenre = g, true
		}
		if a := strings.TrimSpace(utils.Text(row[areaCol])); a != "" {
			info.Area, info.HasArea = a, true
		}
		lat, latOK := utils.Numeric(row["latitude"])
		lon, lonOK := utils.Numeric(row["longitude"])
		if latOK && lonOK {
			info.Latitude, info.Longitude, info.HasLocation = lat, lon, true
		}
		out = append(out, info)
	}
	return out, nil
}

// DecodeRelations converts the store_id_relation table.
func DecodeRelations(t *model.Table) ([]model.StoreRelation, error) {
	d := &rowDecoder{source: t.Name}
	out := make([]model.StoreRelation, 0, t.Len())
	for i, row := range t.Rows {
		d.line = i + 1
		air, err := d.text(row, "air_store_id")
		if err != nil {
			return nil, err
		}
		hpg, err := d.text(row, "hpg_store_id")
		if err != nil {
			return nil, err
		}
		out = append(out, model.StoreRelation{AirStoreID: air, HPGStoreID: hpg})
	}
	return out, nil
}

// DecodeVisits converts the air_visit_data table.
func DecodeVisits(t *model.Table) ([]model.Visit, error) {
	d := &rowDecoder{source: t.Name}
	out := make([]model.Visit, 0, t.Len())
	for i, row := range t.Rows {
		d.line = i + 1
		id, err := d.text(row, "air_store_id")
		if err != nil {
			return nil, err
		}
		date, err := d.timestamp(row, "visit_date")
		if err != nil {
			return nil, err
		}
		visitors, err := d.number(row, "visitors")
		if err != nil {
			return nil, err
		}
		if visitors < 0 {
			return nil, d.fail("visitors", "field below minimum: got %v, want ≥ 0", visitors)
		}
		out = append(out, model.Visit{StoreID: id, VisitDate: utils.TruncateDay(date), Visitors: visitors})
	}
	return out, nil
}

// DecodeCalendar converts the date_info table.
func DecodeCalendar(t *model.Table) ([]model.CalendarDay, error) {
	d := &rowDecoder{source: t.Name}
	out := make([]model.CalendarDay, 0, t.Len())
	for i, row := range t.Rows {
		d.line = i + 1
		date, err := d.timestamp(row, "calendar_date")
		if err != nil {
			return nil, err
		}
		holiday, ok := row["holiday_flg"].(bool)
		if !ok {
			return nil, d.fail("holiday_flg", "field must be 0 or 1, got %T", row["holiday_flg"])
		}
		out = append(out, model.CalendarDay{
			Date:      utils.TruncateDay(date),
			DayOfWeek: utils.Text(row["day_of_week"]),
			Holiday:   holiday,
		})
	}
	return out, nil
}

// DecodeTargets converts the prediction manifest, splitting every id into store and date.
func DecodeTargets(t *model.Table) ([]model.TargetRow, error) {
	d := &rowDecoder{source: t.Name}
	out := make([]model.TargetRow, 0, t.Len())
	for i, row := range t.Rows {
		d.line = i + 1
		id, err := d.text(row, "id")
		if err != nil {
			return nil, err
		}
		target, err := ParseTargetID(id)
		if err != nil {
			return nil, d.fail("id", "%v", err)
		}
		out = append(out, target)
	}
	return out, nil
}

// ParseTargetID splits a manifest id of the form <platform>_<hash>_<YYYY-MM-DD>.
// The date follows the last underscore; the platform precedes the first one.
func ParseTargetID(id string) (model.TargetRow, error) {
	cut := strings.LastIndex(id, "_")
	if cut <= 0 || cut == len(id)-1 {
		return model.TargetRow{}, fmt.Errorf("malformed id %q", id)
	}
	storeID, datePart := id[:cut], id[cut+1:]

	date, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return model.TargetRow{}, fmt.Errorf("malformed id %q: bad date %q", id, datePart)
	}

	platform, _, found := strings.Cut(storeID, "_")
	if !found || platform == "" {
		return model.TargetRow{}, fmt.Errorf("malformed id %q: no platform prefix", id)
	}
	return model.TargetRow{ID: id, StoreID: storeID, Platform: platform, VisitDate: date}, nil
}
