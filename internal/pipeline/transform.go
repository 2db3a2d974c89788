package pipeline

import (
	"time"

	"visitor-forecast/internal/model"
	"visitor-forecast/pkg/utils"
)

// Feature column names
const (
	ColVisitors           = "visitors"
	ColDow                = "dow"
	ColYear               = "year"
	ColMonth              = "month"
	ColMinVisitors        = "min_visitors"
	ColMeanVisitors       = "mean_visitors"
	ColMedianVisitors     = "median_visitors"
	ColMaxVisitors        = "max_visitors"
	ColCountObservations  = "count_observations"
	ColGenreCode          = "genre_code"
	ColAreaCode           = "area_code"
	ColLatitude           = "latitude"
	ColLongitude          = "longitude"
	ColAirLeadDays        = "air_lead_days"
	ColAirReserveVisitors = "air_reserve_visitors"
	ColHPGLeadDays        = "hpg_lead_days"
	ColHPGReserveVisitors = "hpg_reserve_visitors"
	ColHolidayFlag        = "holiday_flg"
)

// FeatureColumns returns the dataset columns in order
func FeatureColumns(includeHoliday bool) []string {
	cols := []string{
		ColVisitors, ColDow, ColYear, ColMonth,
		ColMinVisitors, ColMeanVisitors, ColMedianVisitors, ColMaxVisitors, ColCountObservations,
		ColGenreCode, ColAreaCode, ColLatitude, ColLongitude,
		ColAirLeadDays, ColAirReserveVisitors, ColHPGLeadDays, ColHPGReserveVisitors,
	}
	if includeHoliday {
		cols = append(cols, ColHolidayFlag)
	}
	return cols
}

// DayOfWeek returns the weekday with Monday as 0
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// VisitAnchors uses the visit history as the left side of the dataset joins
func VisitAnchors(visits []model.Visit) []model.AnchorRow {
	anchors := make([]model.AnchorRow, len(visits))
	for i, v := range visits {
		anchors[i] = model.AnchorRow{StoreID: v.StoreID, VisitDate: v.VisitDate, Visitors: v.Visitors}
	}
	return anchors
}

// TargetAnchors uses the prediction manifest as the left side of the dataset
// joins; its visitors are unknown.
func TargetAnchors(targets []model.TargetRow) []model.AnchorRow {
	anchors := make([]model.AnchorRow, len(targets))
	for i, t := range targets {
		anchors[i] = model.AnchorRow{ID: t.ID, StoreID: t.StoreID, VisitDate: t.VisitDate, Visitors: model.Sentinel}
	}
	return anchors
}

// AssembleInputs are the right sides of the dataset joins
type AssembleInputs struct {
	Profiles       []model.StoreProfile
	AirAggregates  []model.StoreDayAggregate
	HPGAggregates  []model.StoreDayAggregate
	Calendar       []model.CalendarDay
	IncludeHoliday bool
}

// AssembleDataset left-joins profiles, reservation aggregates and optionally the
// holiday flag onto the anchors. The result has exactly one row per anchor, in
// anchor order; every value with no join partner is the sentinel.
func AssembleDataset(anchors []model.AnchorRow, in AssembleInputs) *model.Dataset {
	type profileKey struct {
		StoreID string
		Dow     int
	}
	profiles := make(map[profileKey]model.StoreProfile, len(in.Profiles))
	for _, p := range in.Profiles {
		profiles[profileKey{StoreID: p.StoreID, Dow: p.DayOfWeek}] = p
	}
	air := indexAggregates(in.AirAggregates)
	hpg := indexAggregates(in.HPGAggregates)

	holidays := make(map[time.Time]bool, len(in.Calendar))
	for _, day := range in.Calendar {
		holidays[day.Date] = day.Holiday
	}

	ds := &model.Dataset{
		Columns: FeatureColumns(in.IncludeHoliday),
		Rows:    make([]model.FeatureRow, 0, len(anchors)),
	}
	for _, a := range anchors {
		date := utils.TruncateDay(a.VisitDate)
		dow := DayOfWeek(date)

		values := make([]float64, 0, len(ds.Columns))
		values = append(values, a.Visitors, float64(dow), float64(date.Year()), float64(date.Month()))

		if p, ok := profiles[profileKey{StoreID: a.StoreID, Dow: dow}]; ok {
			values = append(values, p.Min, p.Mean, p.Median, p.Max, p.Count, p.GenreCode, p.AreaCode, p.Latitude, p.Longitude)
		} else {
			values = appendSentinels(values, 9)
		}

		key := storeDayKey{StoreID: a.StoreID, Date: date}
		if agg, ok := air[key]; ok {
			values = append(values, agg.SumLeadDays, agg.SumPartySize)
		} else {
			values = appendSentinels(values, 2)
		}
		if agg, ok := hpg[key]; ok {
			values = append(values, agg.SumLeadDays, agg.SumPartySize)
		} else {
			values = appendSentinels(values, 2)
		}

		if in.IncludeHoliday {
			flag, ok := holidays[date]
			switch {
			case !ok:
				values = append(values, model.Sentinel)
			case flag:
				values = append(values, 1)
			default:
				values = append(values, 0)
			}
		}

		ds.Rows = append(ds.Rows, model.FeatureRow{ID: a.ID, StoreID: a.StoreID, VisitDate: date, Values: values})
	}
	return ds
}

func appendSentinels(values []float64, n int) []float64 {
	for i := 0; i < n; i++ {
		values = append(values, model.Sentinel)
	}
	return values
}
