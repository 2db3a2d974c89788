package pipeline

import (
	"math"
	"sort"
	"time"

	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/metrics"
	"visitor-forecast/internal/model"
	"visitor-forecast/pkg/utils"
)

// storeDayKey identifies one store on one calendar date
type storeDayKey struct {
	StoreID string
	Date    time.Time
}

// NormalizeStoreIDs rewrites hpg reservations onto air store ids. A reservation
// is emitted once per relation of its hpg id, in relation order. Reservations
// whose hpg id has no relation are dropped and counted as join key mismatches.
func NormalizeStoreIDs(res []model.Reservation, relations []model.StoreRelation) ([]model.Reservation, int) {
	airByHPG := make(map[string][]string, len(relations))
	for _, rel := range relations {
		airByHPG[rel.HPGStoreID] = append(airByHPG[rel.HPGStoreID], rel.AirStoreID)
	}

	out := make([]model.Reservation, 0, len(res))
	unmatched := make(map[string]int)
	dropped := 0
	for _, r := range res {
		airIDs, ok := airByHPG[r.StoreID]
		if !ok {
			unmatched[r.StoreID]++
			dropped++
			continue
		}
		for _, air := range airIDs {
			r.StoreID = air
			out = append(out, r)
		}
	}

	if dropped > 0 {
		metrics.JoinKeyMismatches.WithLabelValues(SourceHPGReserve).Add(float64(dropped))
		logging.Warn().
			Err(ErrJoinKeyMismatch).
			Str("source", SourceHPGReserve).
			Int("rows", dropped).
			Int("stores", len(unmatched)).
			Msg("Reservations without a store relation dropped")
	}
	return out, dropped
}

// AggregateReservations sums lead days and party size per (store, visit date).
// Output is sorted by store then date. With clampNegative set, a reservation
// made after its visit contributes zero lead days.
func AggregateReservations(res []model.Reservation, clampNegative bool) []model.StoreDayAggregate {
	groups := make(map[storeDayKey]*model.StoreDayAggregate)
	for _, r := range res {
		visit := utils.TruncateDay(r.VisitTime)
		lead := LeadDays(visit, utils.TruncateDay(r.ReserveTime))
		if clampNegative && lead < 0 {
			lead = 0
		}

		key := storeDayKey{StoreID: r.StoreID, Date: visit}
		agg, ok := groups[key]
		if !ok {
			agg = &model.StoreDayAggregate{StoreID: r.StoreID, VisitDate: visit}
			groups[key] = agg
		}
		agg.SumLeadDays += lead
		agg.SumPartySize += r.PartySize
		agg.Reservations++
	}

	out := make([]model.StoreDayAggregate, 0, len(groups))
	for _, agg := range groups {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].VisitDate.Before(out[j].VisitDate)
	})
	return out
}

// LeadDays returns the whole days between two calendar dates
func LeadDays(visit, reserve time.Time) float64 {
	return math.Round(visit.Sub(reserve).Hours() / 24)
}

// indexAggregates keys aggregates for the left join in the assembler
func indexAggregates(aggs []model.StoreDayAggregate) map[storeDayKey]model.StoreDayAggregate {
	idx := make(map[storeDayKey]model.StoreDayAggregate, len(aggs))
	for _, a := range aggs {
		idx[storeDayKey{StoreID: a.StoreID, Date: a.VisitDate}] = a
	}
	return idx
}

// ---- Group statistics ----

// groupStats are the descriptive statistics of one (store, weekday) group
type groupStats struct {
	Min, Mean, Median, Max float64
	Count                  int
}

// describe computes the statistics of a group. The median of an even count is
// the mean of the two middle values.
func describe(values []float64) groupStats {
	if len(values) == 0 {
		return groupStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return groupStats{
		Min:    sorted[0],
		Mean:   sum / float64(n),
		Median: median,
		Max:    sorted[n-1],
		Count:  n,
	}
}
