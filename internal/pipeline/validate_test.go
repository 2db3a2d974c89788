package pipeline

import (
	"context"
	"errors"
	"testing"

	"visitor-forecast/internal/model"
)

func TestParseTargetID(t *testing.T) {
	tests := []struct {
		id       string
		store    string
		platform string
		date     string
		wantErr  bool
	}{
		{id: "air_00a91d42b08b08d9_2017-04-23", store: "air_00a91d42b08b08d9", platform: "air", date: "2017-04-23"},
		{id: "hpg_c63f6f42e088e50f_2017-05-31", store: "hpg_c63f6f42e088e50f", platform: "hpg", date: "2017-05-31"},
		{id: "air_a_b_2017-04-23", store: "air_a_b", platform: "air", date: "2017-04-23"},
		{id: "nounderscore", wantErr: true},
		{id: "air_abc_2017-13-01", wantErr: true},
		{id: "air_abc_", wantErr: true},
		{id: "_2017-04-23", wantErr: true},
		{id: "abc_2017-04-23", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParseTargetID(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTargetID(%q) = %+v, want error", tt.id, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTargetID(%q) error = %v", tt.id, err)
			}
			if got.StoreID != tt.store || got.Platform != tt.platform || !got.VisitDate.Equal(day(tt.date)) {
				t.Errorf("ParseTargetID(%q) = %+v", tt.id, got)
			}
		})
	}
}

func TestDecodeTargetsMalformed(t *testing.T) {
	table := &model.Table{Name: SourceSampleSubmission, Columns: []string{"id"}, Rows: []model.Row{
		{"id": "air_aaa_2017-04-23"},
		{"id": "air_aaa"},
	}}
	_, err := DecodeTargets(table)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("DecodeTargets() error = %v, want ErrSchemaMismatch", err)
	}
}

func TestDecodeFixtureTables(t *testing.T) {
	tables, err := LoadAll(context.Background(), fixtureSources(t, 10))
	if err != nil {
		t.Fatal(err)
	}

	visits, err := DecodeVisits(tables.AirVisitData)
	if err != nil {
		t.Fatalf("DecodeVisits() error = %v", err)
	}
	if len(visits) != 20 || visits[0].Visitors != 10 {
		t.Errorf("visits = %d rows, first %+v", len(visits), visits[0])
	}

	info, err := DecodeStoreInfo(tables.AirStoreInfo, "air")
	if err != nil {
		t.Fatalf("DecodeStoreInfo() error = %v", err)
	}
	if !info[0].HasArea || info[1].HasArea {
		t.Errorf("store info area presence = %v/%v, want true/false", info[0].HasArea, info[1].HasArea)
	}
	if !info[0].HasLocation || info[0].Latitude != 35.658 || info[0].Longitude != 139.7516 {
		t.Errorf("air_aaa location = %+v, want 35.658/139.7516", info[0])
	}
	if info[1].HasLocation {
		t.Errorf("air_bbb location = %+v, want absent", info[1])
	}

	calendar, err := DecodeCalendar(tables.DateInfo)
	if err != nil {
		t.Fatalf("DecodeCalendar() error = %v", err)
	}
	if len(calendar) != 13 {
		t.Errorf("calendar rows = %d, want 13", len(calendar))
	}

	res, err := DecodeReservations(tables.HPGReserve, "hpg_store_id")
	if err != nil {
		t.Fatalf("DecodeReservations() error = %v", err)
	}
	if len(res) == 0 || res[0].StoreID != "hpg_bbb" {
		t.Errorf("hpg reservations = %+v", res)
	}
}

func TestDecodeVisitsRejectsBadCells(t *testing.T) {
	tests := []struct {
		name string
		row  model.Row
	}{
		{"text visitors", model.Row{"air_store_id": "air_a", "visit_date": day("2017-01-01"), "visitors": "many"}},
		{"negative visitors", model.Row{"air_store_id": "air_a", "visit_date": day("2017-01-01"), "visitors": -3}},
		{"missing store", model.Row{"air_store_id": nil, "visit_date": day("2017-01-01"), "visitors": 3}},
		{"missing date", model.Row{"air_store_id": "air_a", "visit_date": nil, "visitors": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := &model.Table{Name: SourceAirVisitData, Rows: []model.Row{tt.row}}
			if _, err := DecodeVisits(table); !errors.Is(err, ErrSchemaMismatch) {
				t.Errorf("DecodeVisits() error = %v, want ErrSchemaMismatch", err)
			}
		})
	}
}
