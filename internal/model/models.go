package model

import "time"

// Sentinel marks a value that is missing after a join. Every real statistic is non-negative.
const Sentinel = -1.0

// Row is a schema-agnostic record keyed by column name
type Row map[string]interface{}

// Table is an ordered sequence of rows read from one source
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of rows in the table
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the header declared the column
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Reservation is a single booking made on one of the platforms
type Reservation struct {
	StoreID     string    `json:"store_id"`
	VisitTime   time.Time `json:"visit_datetime"`
	ReserveTime time.Time `json:"reserve_datetime"`
	PartySize   float64   `json:"reserve_visitors"`
}

// StoreInfo holds the static attributes of a store
type StoreInfo struct {
	StoreID     string  `json:"store_id"`
	Genre       string  `json:"genre_name"`
	Area        string  `json:"area_name"`
	// Latitude and Longitude are meaningful only when HasLocation is set
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	HasGenre    bool    `json:"-"`
	HasArea     bool    `json:"-"`
	HasLocation bool    `json:"-"`
}

// StoreRelation maps an hpg store id onto its air store id
type StoreRelation struct {
	AirStoreID string `json:"air_store_id"`
	HPGStoreID string `json:"hpg_store_id"`
}

// Visit is one day of observed visitors for a store
type Visit struct {
	StoreID   string    `json:"store_id"`
	VisitDate time.Time `json:"visit_date"`
	Visitors  float64   `json:"visitors"`
}

// CalendarDay is one row of the holiday calendar
type CalendarDay struct {
	Date      time.Time `json:"calendar_date"`
	DayOfWeek string    `json:"day_of_week"`
	Holiday   bool      `json:"holiday_flg"`
}

// TargetRow is one row of the prediction manifest
type TargetRow struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Platform  string    `json:"platform"`
	VisitDate time.Time `json:"visit_date"`
}

// StoreDayAggregate sums the reservations sharing a (store, visit date) key
type StoreDayAggregate struct {
	StoreID      string    `json:"store_id"`
	VisitDate    time.Time `json:"visit_date"`
	SumLeadDays  float64   `json:"sum_lead_days"`
	SumPartySize float64   `json:"sum_party_size"`
	Reservations int       `json:"reservations"`
}

// StoreProfile holds the historical visitor statistics for a (store, weekday) pair
type StoreProfile struct {
	StoreID   string  `json:"store_id"`
	DayOfWeek int     `json:"dow"`
	Min       float64 `json:"min_visitors"`
	Mean      float64 `json:"mean_visitors"`
	Median    float64 `json:"median_visitors"`
	Max       float64 `json:"max_visitors"`
	Count     float64 `json:"count_observations"`
	GenreCode float64 `json:"genre_code"`
	AreaCode  float64 `json:"area_code"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AnchorRow is the left side of every dataset join: a visit or a manifest row
type AnchorRow struct {
	ID        string
	StoreID   string
	VisitDate time.Time
	Visitors  float64 // Sentinel for manifest rows
}

// FeatureRow is one fully joined record ready for modelling
type FeatureRow struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	VisitDate time.Time `json:"visit_date"`
	Values    []float64 `json:"values"`
}

// Dataset is a feature table with named, ordered numeric columns
type Dataset struct {
	Columns []string     `json:"columns"`
	Rows    []FeatureRow `json:"rows"`
}

// Index returns the position of a feature column or -1
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns the named feature of row i
func (d *Dataset) Value(i int, name string) (float64, bool) {
	idx := d.Index(name)
	if idx < 0 || i < 0 || i >= len(d.Rows) {
		return 0, false
	}
	return d.Rows[i].Values[idx], true
}

// Tensor is a samples x steps x features array
type Tensor [][][]float64

// Shape returns samples, steps and features of the tensor
func (t Tensor) Shape() (samples, steps, features int) {
	samples = len(t)
	if samples == 0 {
		return 0, 0, 0
	}
	steps = len(t[0])
	if steps == 0 {
		return samples, 0, 0
	}
	return samples, steps, len(t[0][0])
}

// Validation is a held-out tensor with its targets
type Validation struct {
	X Tensor
	Y []float64
}
