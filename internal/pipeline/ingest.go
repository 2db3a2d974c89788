package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/model"
	"visitor-forecast/pkg/utils"
)

// Source table names
const (
	SourceAirReserve       = "air_reserve"
	SourceHPGReserve       = "hpg_reserve"
	SourceAirStoreInfo     = "air_store_info"
	SourceHPGStoreInfo     = "hpg_store_info"
	SourceStoreIDRelation  = "store_id_relation"
	SourceAirVisitData     = "air_visit_data"
	SourceDateInfo         = "date_info"
	SourceSampleSubmission = "sample_submission"
)

// Source describes one input table and the schema expected of it
type Source struct {
	Name        string
	Location    string // file path or http(s) URL
	DateColumns []string
	BoolColumns []string
	Required    []string
	Optional    bool // an empty Location yields an empty table
}

// Tables holds every loaded input of a run
type Tables struct {
	AirReserve       *model.Table
	HPGReserve       *model.Table
	AirStoreInfo     *model.Table
	HPGStoreInfo     *model.Table
	StoreIDRelation  *model.Table
	AirVisitData     *model.Table
	DateInfo         *model.Table
	SampleSubmission *model.Table
}

// httpClient is used for http(s) sources
var httpClient = &http.Client{Timeout: 2 * time.Minute}

// CatalogSources returns the source descriptors for a run's inputs
func CatalogSources(s model.Sources) []Source {
	return []Source{
		{
			Name: SourceAirReserve, Location: s.AirReserve,
			DateColumns: []string{"visit_datetime", "reserve_datetime"},
			Required:    []string{"air_store_id", "visit_datetime", "reserve_datetime", "reserve_visitors"},
		},
		{
			Name: SourceHPGReserve, Location: s.HPGReserve, Optional: true,
			DateColumns: []string{"visit_datetime", "reserve_datetime"},
			Required:    []string{"hpg_store_id", "visit_datetime", "reserve_datetime", "reserve_visitors"},
		},
		{
			Name: SourceAirStoreInfo, Location: s.AirStoreInfo,
			Required: []string{"air_store_id", "air_genre_name", "air_area_name"},
		},
		{
			Name: SourceHPGStoreInfo, Location: s.HPGStoreInfo, Optional: true,
			Required: []string{"hpg_store_id", "hpg_genre_name", "hpg_area_name"},
		},
		{
			Name: SourceStoreIDRelation, Location: s.StoreIDRelation, Optional: true,
			Required: []string{"air_store_id", "hpg_store_id"},
		},
		{
			Name: SourceAirVisitData, Location: s.AirVisitData,
			DateColumns: []string{"visit_date"},
			Required:    []string{"air_store_id", "visit_date", "visitors"},
		},
		{
			Name: SourceDateInfo, Location: s.DateInfo, Optional: true,
			DateColumns: []string{"calendar_date"},
			BoolColumns: []string{"holiday_flg"},
			Required:    []string{"calendar_date", "day_of_week", "holiday_flg"},
		},
		{
			Name: SourceSampleSubmission, Location: s.SampleSubmission,
			Required: []string{"id"},
		},
	}
}

// LoadAll loads every catalogued source of a run, failing on the first error
func LoadAll(ctx context.Context, s model.Sources) (*Tables, error) {
	tables := &Tables{}
	for _, src := range CatalogSources(s) {
		t, err := LoadTable(ctx, src)
		if err != nil {
			return nil, err
		}
		switch src.Name {
		case SourceAirReserve:
			tables.AirReserve = t
		case SourceHPGReserve:
			tables.HPGReserve = t
		case SourceAirStoreInfo:
			tables.AirStoreInfo = t
		case SourceHPGStoreInfo:
			tables.HPGStoreInfo = t
		case SourceStoreIDRelation:
			tables.StoreIDRelation = t
		case SourceAirVisitData:
			tables.AirVisitData = t
		case SourceDateInfo:
			tables.DateInfo = t
		case SourceSampleSubmission:
			tables.SampleSubmission = t
		}
	}
	return tables, nil
}

// LoadTable reads a CSV source into a Table, parsing its declared date and bool columns.
func LoadTable(ctx context.Context, src Source) (*model.Table, error) {
	if src.Location == "" {
		if src.Optional {
			return &model.Table{Name: src.Name, Columns: append([]string(nil), src.Required...)}, nil
		}
		return nil, sourceUnavailable(src.Name, errors.New("no location configured"))
	}

	reader, closer, err := openSource(ctx, src.Location)
	if err != nil {
		return nil, sourceUnavailable(src.Name, err)
	}
	defer closer.Close()

	csvReader := csv.NewReader(reader)
	csvReader.LazyQuotes = true
	headers, err := csvReader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, schemaMismatch(src.Name, "", "empty file, no header")
		}
		return nil, sourceUnavailable(src.Name, fmt.Errorf("failed to read CSV header: %w", err))
	}

	// Clean header names: trim whitespace, a BOM and all quotes
	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		headers[i] = strings.ReplaceAll(h, `"`, "")
	}

	table := &model.Table{Name: src.Name, Columns: headers}
	for _, col := range src.Required {
		if !table.HasColumn(col) {
			return nil, schemaMismatch(src.Name, col, "expected column is absent")
		}
	}

	dateCols := toSet(src.DateColumns)
	boolCols := toSet(src.BoolColumns)

	line := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, schemaMismatch(src.Name, "", fmt.Sprintf("line %d: %v", line, err))
		}
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row := make(model.Row, len(headers))
		for i, h := range headers {
			cell := ""
			if i < len(record) {
				cell = record[i]
			}
			switch {
			case strings.TrimSpace(cell) == "":
				row[h] = nil
			case dateCols[h]:
				t, ok := utils.ParseDate(cell)
				if !ok {
					return nil, schemaMismatch(src.Name, h, fmt.Sprintf("line %d: %q is not a date", line, cell))
				}
				row[h] = t
			case boolCols[h]:
				b, ok := utils.ParseBool(cell)
				if !ok {
					return nil, schemaMismatch(src.Name, h, fmt.Sprintf("line %d: %q is not a boolean", line, cell))
				}
				row[h] = b
			default:
				row[h] = utils.ParseValue(cell)
			}
		}
		table.Rows = append(table.Rows, row)
	}

	logging.Debug().
		Str("source", src.Name).
		Str("location", src.Location).
		Int("rows", len(table.Rows)).
		Msg("Table loaded")
	return table, nil
}

// openSource opens a local file or issues a GET for http(s) locations
func openSource(ctx context.Context, pathOrURL string) (io.Reader, io.Closer, error) {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to GET CSV: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, nil, fmt.Errorf("GET CSV returned %s", resp.Status)
		}
		return resp.Body, resp.Body, nil
	}

	file, err := os.Open(pathOrURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	return file, file, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
