package preprocess

import (
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// CombineIncidents concatenates incident partitions, already in sorted
// partition-key order, and numbers the rows as INCIDENT_ID.
func CombineIncidents(rules IncidentRules, partitions ...*table.Table) *table.Table {
	combined := table.Union(partitions...)
	return AddRowID(combined, rules.IDColumn)
}

// Incidents cleans the combined incident table.
func Incidents(t *table.Table, rules IncidentRules) (*table.Table, error) {
	log := zap.L().With(zap.String("component", "preprocess"), zap.String("dataset", "incidents"))
	in := t.Len()

	DropColumns(t, rules.Drop...)
	RenameColumns(t, rules.Rename)
	if err := t.Require(rules.CategoryColumn, rules.TimestampColumn); err != nil {
		return nil, eris.Wrap(err, "preprocess: incidents")
	}
	RelabelValues(t, rules.CategoryColumn, rules.CategoryLabels)

	t = RemoveOutliers(t, rules.Outliers...)
	afterOutliers := t.Len()
	t = DropMissing(t, rules.Required...)
	afterMissing := t.Len()

	DecomposeTimestamp(t, rules.TimestampColumn, rules.DateColumn, rules.TimeColumn)
	t = DropEra(t, ColYear)
	ParseIntegers(t, rules.IntegerColumns...)

	log.Debug("preprocessed",
		zap.Int("rows_in", in),
		zap.Int("dropped_outliers", in-afterOutliers),
		zap.Int("dropped_missing", afterOutliers-afterMissing),
		zap.Int("dropped_era", afterMissing-t.Len()),
		zap.Int("rows_out", t.Len()),
	)
	return t, nil
}

// FireStations cleans the station reference table.
func FireStations(t *table.Table, rules FireStationRules) (*table.Table, error) {
	RenameColumns(t, rules.Rename)
	if err := t.Require(ColFireStationID); err != nil {
		return nil, eris.Wrap(err, "preprocess: fire stations")
	}
	CombineFirst(t, rules.AreaColumn, rules.AreaFirst, rules.AreaSecond)
	DropColumns(t, rules.Drop...)
	ParseDates(t, rules.DateColumns...)
	return t, nil
}

// FireStationAreas cleans the service-area polygons. Geometry is kept.
func FireStationAreas(t *table.Table, rules AreaRules) (*table.Table, error) {
	DropColumns(t, rules.Drop...)
	RenameColumns(t, rules.Rename)
	if err := t.Require(table.GeometryColumn); err != nil {
		return nil, eris.Wrap(err, "preprocess: fire station areas")
	}
	return t, nil
}

// PropertyAssessments reduces assessment polygons to centroid coordinates and
// normalises the building attributes. Construction years after the clock's
// current year become null.
func PropertyAssessments(t *table.Table, rules AssessmentRules, proj geo.Projection, clock clockwork.Clock) (*table.Table, error) {
	t, err := PointsFromGeometry(t, proj)
	if err != nil {
		return nil, eris.Wrap(err, "preprocess: property assessments")
	}
	DropColumns(t, rules.Drop...)
	RenameColumns(t, rules.Rename)
	if err := t.Require(ColAssessmentID); err != nil {
		return nil, eris.Wrap(err, "preprocess: property assessments")
	}
	ParseIntegers(t, rules.IntegerColumns...)
	CapYear(t, rules.YearColumn, clock.Now().Year())
	RelabelValues(t, rules.CategoryColumn, rules.CategoryLabels)
	return t, nil
}

// Census reduces census polygons to centroid coordinates and drops
// unpopulated units.
func Census(t *table.Table, rules CensusRules, proj geo.Projection) (*table.Table, error) {
	t, err := PointsFromGeometry(t, proj)
	if err != nil {
		return nil, eris.Wrap(err, "preprocess: census")
	}
	RenameColumns(t, rules.Rename)
	if err := t.Require(ColCensusID); err != nil {
		return nil, eris.Wrap(err, "preprocess: census")
	}
	return RemoveOutliers(t, rules.Outliers...), nil
}
