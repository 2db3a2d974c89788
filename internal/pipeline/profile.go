package pipeline

import (
	"visitor-forecast/internal/model"
)

// StoreMetadata resolves the genre, area and location of air stores, optionally
// falling back to the hpg store info of a related hpg store.
type StoreMetadata struct {
	air      map[string]model.StoreInfo
	hpg      map[string]model.StoreInfo
	related  map[string]string // air id -> hpg id
	fallback bool
}

// NewStoreMetadata indexes the store info tables
func NewStoreMetadata(air, hpg []model.StoreInfo, relations []model.StoreRelation, fallback bool) *StoreMetadata {
	m := &StoreMetadata{
		air:      make(map[string]model.StoreInfo, len(air)),
		hpg:      make(map[string]model.StoreInfo, len(hpg)),
		related:  make(map[string]string, len(relations)),
		fallback: fallback,
	}
	for _, info := range air {
		m.air[info.StoreID] = info
	}
	for _, info := range hpg {
		m.hpg[info.StoreID] = info
	}
	for _, rel := range relations {
		if _, dup := m.related[rel.AirStoreID]; !dup {
			m.related[rel.AirStoreID] = rel.HPGStoreID
		}
	}
	return m
}

// Lookup returns the metadata of an air store. Fields the air info lacks are
// taken from the related hpg store when the fallback is enabled.
func (m *StoreMetadata) Lookup(storeID string) model.StoreInfo {
	info, ok := m.air[storeID]
	if !ok {
		info = model.StoreInfo{StoreID: storeID}
	}
	if !m.fallback || (info.HasGenre && info.HasArea && info.HasLocation) {
		return info
	}
	hpgID, ok := m.related[storeID]
	if !ok {
		return info
	}
	alt, ok := m.hpg[hpgID]
	if !ok {
		return info
	}
	if !info.HasGenre && alt.HasGenre {
		info.Genre, info.HasGenre = alt.Genre, true
	}
	if !info.HasArea && alt.HasArea {
		info.Area, info.HasArea = alt.Area, true
	}
	if !info.HasLocation && alt.HasLocation {
		info.Latitude, info.Longitude, info.HasLocation = alt.Latitude, alt.Longitude, true
	}
	return info
}

// ProfileEncoders are the genre and area encoders used for the store profiles
type ProfileEncoders struct {
	Genre *LabelEncoder
	Area  *LabelEncoder
}

// FitProfileEncoders fits the encoders on the metadata of the stores that
// appear in the visit history.
func FitProfileEncoders(visits []model.Visit, meta *StoreMetadata) *ProfileEncoders {
	var genres, areas []string
	seen := make(map[string]bool)
	for _, v := range visits {
		if seen[v.StoreID] {
			continue
		}
		seen[v.StoreID] = true
		info := meta.Lookup(v.StoreID)
		if info.HasGenre {
			genres = append(genres, info.Genre)
		}
		if info.HasArea {
			areas = append(areas, info.Area)
		}
	}
	return &ProfileEncoders{
		Genre: (&LabelEncoder{}).Fit(genres),
		Area:  (&LabelEncoder{}).Fit(areas),
	}
}

// ManifestStores returns the distinct manifest stores in order of first appearance
func ManifestStores(targets []model.TargetRow) []string {
	seen := make(map[string]bool)
	var stores []string
	for _, t := range targets {
		if !seen[t.StoreID] {
			seen[t.StoreID] = true
			stores = append(stores, t.StoreID)
		}
	}
	return stores
}

// BuildStoreProfiles emits one profile per manifest store and weekday, weekday
// major. Statistics come from every visit of the (store, weekday) group; a group
// with no visits carries the sentinel in every statistic.
func BuildStoreProfiles(visits []model.Visit, stores []string, meta *StoreMetadata, enc *ProfileEncoders) []model.StoreProfile {
	type groupKey struct {
		StoreID string
		Dow     int
	}
	groups := make(map[groupKey][]float64)
	for _, v := range visits {
		k := groupKey{StoreID: v.StoreID, Dow: DayOfWeek(v.VisitDate)}
		groups[k] = append(groups[k], v.Visitors)
	}

	profiles := make([]model.StoreProfile, 0, 7*len(stores))
	for dow := 0; dow < 7; dow++ {
		for _, store := range stores {
			p := model.StoreProfile{
				StoreID:   store,
				DayOfWeek: dow,
				Min:       model.Sentinel,
				Mean:      model.Sentinel,
				Median:    model.Sentinel,
				Max:       model.Sentinel,
				Count:     model.Sentinel,
				Latitude:  model.Sentinel,
				Longitude: model.Sentinel,
			}
			if values := groups[groupKey{StoreID: store, Dow: dow}]; len(values) > 0 {
				s := describe(values)
				p.Min, p.Mean, p.Median, p.Max, p.Count = s.Min, s.Mean, s.Median, s.Max, float64(s.Count)
			}

			info := meta.Lookup(store)
			p.GenreCode = enc.Genre.Transform(info.Genre, info.HasGenre)
			p.AreaCode = enc.Area.Transform(info.Area, info.HasArea)
			if info.HasLocation {
				p.Latitude, p.Longitude = info.Latitude, info.Longitude
			}
			profiles = append(profiles, p)
		}
	}
	return profiles
}
