package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"visitor-forecast/internal/model"
)

// writeCSV writes a fixture file into dir and returns its path
func writeCSV(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// fixtureSources writes a small but complete set of source tables: two air
// stores with daily visits from 2017-03-01, reservations on both platforms and
// a manifest of three days per store.
func fixtureSources(t *testing.T, days int) model.Sources {
	t.Helper()
	dir := t.TempDir()
	start := day("2017-03-01")

	visits := []string{"air_store_id,visit_date,visitors"}
	airRes := []string{"air_store_id,visit_datetime,reserve_datetime,reserve_visitors"}
	hpgRes := []string{"hpg_store_id,visit_datetime,reserve_datetime,reserve_visitors"}
	calendar := []string{"calendar_date,day_of_week,holiday_flg"}
	for i := 0; i < days+3; i++ {
		d := start.AddDate(0, 0, i)
		ds := d.Format("2006-01-02")
		calendar = append(calendar, fmt.Sprintf("%s,%s,%d", ds, d.Weekday(), i%5/4))
		if i >= days {
			continue
		}
		visits = append(visits,
			fmt.Sprintf("air_aaa,%s,%d", ds, 10+i%7),
			fmt.Sprintf("air_bbb,%s,%d", ds, 20+i%3))
		if i%2 == 0 {
			airRes = append(airRes, fmt.Sprintf("air_aaa,%s 19:00:00,%s 12:00:00,%d",
				ds, d.AddDate(0, 0, -2).Format("2006-01-02"), 2+i%4))
		}
		if i%3 == 0 {
			hpgRes = append(hpgRes,
				fmt.Sprintf("hpg_bbb,%s 18:00:00,%s 09:00:00,4", ds, d.AddDate(0, 0, -1).Format("2006-01-02")),
				fmt.Sprintf("hpg_zzz,%s 18:00:00,%s 09:00:00,9", ds, ds))
		}
	}

	manifest := []string{"id,visitors"}
	for i := days; i < days+3; i++ {
		ds := start.AddDate(0, 0, i).Format("2006-01-02")
		manifest = append(manifest, fmt.Sprintf("air_bbb_%s,0", ds), fmt.Sprintf("air_aaa_%s,0", ds))
	}

	return model.Sources{
		AirReserve: writeCSV(t, dir, "air_reserve.csv", airRes...),
		HPGReserve: writeCSV(t, dir, "hpg_reserve.csv", hpgRes...),
		AirStoreInfo: writeCSV(t, dir, "air_store_info.csv",
			"air_store_id,air_genre_name,air_area_name,latitude,longitude",
			"air_aaa,Izakaya,Tokyo-to Minato-ku,35.6580,139.7516",
			"air_bbb,Cafe/Sweets,,,"),
		HPGStoreInfo: writeCSV(t, dir, "hpg_store_info.csv",
			"hpg_store_id,hpg_genre_name,hpg_area_name,latitude,longitude",
			"hpg_bbb,Japanese style,Osaka-fu Osaka-shi,34.6937,135.5023"),
		StoreIDRelation: writeCSV(t, dir, "store_id_relation.csv",
			"air_store_id,hpg_store_id",
			"air_bbb,hpg_bbb"),
		AirVisitData:     writeCSV(t, dir, "air_visit_data.csv", visits...),
		DateInfo:         writeCSV(t, dir, "date_info.csv", calendar...),
		SampleSubmission: writeCSV(t, dir, "sample_submission.csv", manifest...),
	}
}

// testFramer returns the framer defaults used across tests
func testFramer() model.FramerSpec {
	return model.FramerSpec{
		Modes:                     []string{model.ModeUnivariate, model.ModeMultivariate},
		Lookback:                  1,
		UnivariateTrainFraction:   0.8,
		MultivariateTrainFraction: 0.7,
		DropCurrentStep:           true,
	}
}

// visitDataset builds a dataset holding only the visitors column
func visitDataset(start time.Time, visitors ...float64) *model.Dataset {
	ds := &model.Dataset{Columns: []string{ColVisitors}}
	for i, v := range visitors {
		ds.Rows = append(ds.Rows, model.FeatureRow{
			StoreID:   "air_aaa",
			VisitDate: start.AddDate(0, 0, i),
			Values:    []float64{v},
		})
	}
	return ds
}
