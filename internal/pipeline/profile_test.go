package pipeline

import (
	"testing"

	"visitor-forecast/internal/model"
)

func TestLabelEncoder(t *testing.T) {
	enc := (&LabelEncoder{}).Fit([]string{"Izakaya", "Cafe/Sweets", "Izakaya", "Bar/Cocktail"})

	tests := []struct {
		value   string
		present bool
		want    float64
	}{
		{"Bar/Cocktail", true, 0},
		{"Cafe/Sweets", true, 1},
		{"Izakaya", true, 2},
		{"Karaoke/Party", true, 3},
		{"", false, model.Sentinel},
	}
	for _, tt := range tests {
		if got := enc.Transform(tt.value, tt.present); got != tt.want {
			t.Errorf("Transform(%q, %v) = %v, want %v", tt.value, tt.present, got, tt.want)
		}
	}
	if enc.FallbackCode() != 3 {
		t.Errorf("FallbackCode() = %d, want 3", enc.FallbackCode())
	}
}

func TestBuildStoreProfilesScaffold(t *testing.T) {
	// 2017-04-03 is a Monday
	visits := []model.Visit{
		{StoreID: "air_a", VisitDate: day("2017-04-03"), Visitors: 10},
		{StoreID: "air_a", VisitDate: day("2017-04-10"), Visitors: 20},
		{StoreID: "air_a", VisitDate: day("2017-04-17"), Visitors: 40},
		{StoreID: "air_a", VisitDate: day("2017-04-24"), Visitors: 30},
		{StoreID: "air_a", VisitDate: day("2017-04-05"), Visitors: 7},
		{StoreID: "air_x", VisitDate: day("2017-04-05"), Visitors: 99},
	}
	meta := NewStoreMetadata([]model.StoreInfo{
		{StoreID: "air_a", Genre: "Izakaya", HasGenre: true, Area: "Tokyo", HasArea: true, Latitude: 35.6, Longitude: 139.7, HasLocation: true},
		{StoreID: "air_x", Genre: "Cafe", HasGenre: true, Area: "Osaka", HasArea: true},
		{StoreID: "air_new", Genre: "Karaoke", HasGenre: true},
	}, nil, nil, false)
	enc := FitProfileEncoders(visits, meta)
	stores := []string{"air_a", "air_new", "air_b"}

	profiles := BuildStoreProfiles(visits, stores, meta, enc)
	if len(profiles) != 7*len(stores) {
		t.Fatalf("BuildStoreProfiles() returned %d rows, want %d", len(profiles), 7*len(stores))
	}
	for i, p := range profiles {
		if p.DayOfWeek != i/len(stores) || p.StoreID != stores[i%len(stores)] {
			t.Fatalf("profiles[%d] = %s dow %d, want weekday-major order", i, p.StoreID, p.DayOfWeek)
		}
	}

	monday := profiles[0]
	if monday.Min != 10 || monday.Max != 40 || monday.Mean != 25 || monday.Median != 25 || monday.Count != 4 {
		t.Errorf("air_a Monday = %+v, want min 10 max 40 mean 25 median 25 count 4", monday)
	}
	if monday.GenreCode != 1 || monday.AreaCode != 1 {
		t.Errorf("air_a codes = %v/%v, want 1/1", monday.GenreCode, monday.AreaCode)
	}
	if monday.Latitude != 35.6 || monday.Longitude != 139.7 {
		t.Errorf("air_a location = %v/%v, want 35.6/139.7", monday.Latitude, monday.Longitude)
	}

	tuesday := profiles[3]
	if tuesday.StoreID != "air_a" || tuesday.Min != model.Sentinel || tuesday.Count != model.Sentinel {
		t.Errorf("air_a Tuesday = %+v, want sentinel statistics", tuesday)
	}

	// air_new never visited: unseen genre gets the fallback code, missing area is the sentinel
	newStore := profiles[1]
	if newStore.GenreCode != 2 || newStore.AreaCode != model.Sentinel {
		t.Errorf("air_new codes = %v/%v, want 2/-1", newStore.GenreCode, newStore.AreaCode)
	}
	if newStore.Latitude != model.Sentinel || newStore.Longitude != model.Sentinel {
		t.Errorf("air_new location = %v/%v, want sentinel", newStore.Latitude, newStore.Longitude)
	}
}

func TestStoreMetadataFallback(t *testing.T) {
	air := []model.StoreInfo{{StoreID: "air_b", Genre: "Cafe", HasGenre: true}}
	hpg := []model.StoreInfo{{
		StoreID: "hpg_b", Genre: "Japanese style", HasGenre: true, Area: "Osaka", HasArea: true,
		Latitude: 34.69, Longitude: 135.50, HasLocation: true,
	}}
	rel := []model.StoreRelation{{AirStoreID: "air_b", HPGStoreID: "hpg_b"}}

	without := NewStoreMetadata(air, hpg, rel, false).Lookup("air_b")
	if without.HasArea || without.HasLocation {
		t.Errorf("Lookup() without fallback = %+v, want no area", without)
	}

	with := NewStoreMetadata(air, hpg, rel, true).Lookup("air_b")
	if with.Genre != "Cafe" || with.Area != "Osaka" || with.Latitude != 34.69 || with.Longitude != 135.50 {
		t.Errorf("Lookup() with fallback = %+v, want air genre with hpg area and location", with)
	}

	if got := NewStoreMetadata(air, hpg, rel, true).Lookup("air_unknown"); got.HasGenre || got.HasArea {
		t.Errorf("Lookup(unknown) = %+v, want empty metadata", got)
	}
}

func TestManifestStores(t *testing.T) {
	targets := []model.TargetRow{{StoreID: "air_b"}, {StoreID: "air_a"}, {StoreID: "air_b"}}
	got := ManifestStores(targets)
	if len(got) != 2 || got[0] != "air_b" || got[1] != "air_a" {
		t.Errorf("ManifestStores() = %v, want [air_b air_a]", got)
	}
}
