// Package features merges the cell-assigned layers into the input table and
// derives the model features.
package features

import (
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/mesh"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Derived columns.
const (
	ColBuildingAge = "building_age"
	ColDistance    = "distance_to_fire_station"
	ColIsFire      = "is_fire"
)

// StationSuffix marks the joined station coordinates.
const StationSuffix = "_firestation"

const (
	colLatitude      = "LATITUDE"
	colLongitude     = "LONGITUDE"
	colStationLat    = colLatitude + StationSuffix
	colStationLong   = colLongitude + StationSuffix
	colFireStationID = "FIRE_STATION_ID"
	colAssessmentID  = "ASSESSMENT_ID"
	colCategory      = "INCIDENT_CATEGORY"
	colYearBuilt     = "YEAR_CONSTRUCTION"
)

// Options configures InputTable.
type Options struct {
	// FireCategories are the INCIDENT_CATEGORY labels flagged as fires.
	FireCategories []string
	// StationKey is the column of the merged table joined to the stations'
	// FIRE_STATION_ID.
	StationKey string
	Clock      clockwork.Clock
}

// DefaultOptions flags building fires and other fires and joins stations on
// the cell's FIRE_STATION_ID.
func DefaultOptions() Options {
	return Options{
		FireCategories: []string{"Autres incendies", "Incendies de bâtiments"},
		StationKey:     colFireStationID,
		Clock:          clockwork.NewRealClock(),
	}
}

// Merge concatenates the joined layers row-wise. Columns a layer lacks are
// null for its rows, so ASSESSMENT_ID non-null marks assessment rows.
func Merge(layers ...*table.Table) *table.Table {
	return table.Union(layers...)
}

// InputTable derives building_age, distance_to_fire_station and is_fire on
// merged and drops the per-record and station coordinates.
func InputTable(merged, stations *table.Table, opts Options) (*table.Table, error) {
	if err := merged.Require(mesh.ColGridLat, mesh.ColGridLong); err != nil {
		return nil, eris.Wrap(err, "features: input table")
	}
	if err := stations.Require(colFireStationID, colLatitude, colLongitude); err != nil {
		return nil, eris.Wrap(err, "features: stations")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.StationKey == "" {
		opts.StationKey = colFireStationID
	}

	t := merged.Clone()
	if err := t.SetColumn(ColBuildingAge, BuildingAge(t, opts.Clock.Now().Year())); err != nil {
		return nil, err
	}

	coords := table.New(colFireStationID, colStationLat, colStationLong)
	for i := 0; i < stations.Len(); i++ {
		coords.Append(stations.Value(i, colFireStationID), stations.Value(i, colLatitude), stations.Value(i, colLongitude))
	}
	// Without a station key every distance is null.
	if t.Has(opts.StationKey) {
		t = t.LeftJoin(coords, opts.StationKey, colFireStationID, StationSuffix)
	}

	if err := t.SetColumn(ColDistance, Distances(t)); err != nil {
		return nil, err
	}
	if err := t.SetColumn(ColIsFire, FireFlags(t, opts.FireCategories)); err != nil {
		return nil, err
	}

	return t.Drop(colLatitude, colLongitude, colStationLat, colStationLong), nil
}

// BuildingAge returns currentYear - YEAR_CONSTRUCTION for rows with an
// ASSESSMENT_ID and a construction year, null otherwise.
func BuildingAge(t *table.Table, currentYear int) []any {
	out := make([]any, t.Len())
	for i := range out {
		if table.IsNull(t.Value(i, colAssessmentID)) {
			continue
		}
		year, ok := table.AsInt(t.Value(i, colYearBuilt))
		if !ok {
			continue
		}
		out[i] = int64(currentYear) - year
	}
	return out
}

// Distances returns the haversine distance in km between each row's cell
// centroid and its joined station coordinates; null where either is missing.
func Distances(t *table.Table) []any {
	out := make([]any, t.Len())
	for i := range out {
		lat1, ok1 := table.AsFloat(t.Value(i, mesh.ColGridLat))
		lon1, ok2 := table.AsFloat(t.Value(i, mesh.ColGridLong))
		lat2, ok3 := table.AsFloat(t.Value(i, colStationLat))
		lon2, ok4 := table.AsFloat(t.Value(i, colStationLong))
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		out[i] = geo.Haversine(lat1, lon1, lat2, lon2)
	}
	return out
}

// FireFlags returns true where INCIDENT_CATEGORY is one of categories and
// false everywhere else, including non-incident rows.
func FireFlags(t *table.Table, categories []string) []any {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[norm.NFC.String(c)] = true
	}
	out := make([]any, t.Len())
	for i := range out {
		s, ok := t.Value(i, colCategory).(string)
		out[i] = ok && set[norm.NFC.String(s)]
	}
	return out
}
