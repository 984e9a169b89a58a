package pipeline

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/sells-group/firerisk-cli/internal/catalog"
	"github.com/sells-group/firerisk-cli/internal/features"
	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/mesh"
	"github.com/sells-group/firerisk-cli/internal/preprocess"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Stage names.
const (
	StageDataProcessing     = "data_processing"
	StageFeatureEngineering = "feature_engineering"
)

// Datasets produced by the stages.
const (
	DatasetCombinedIncidents       = "combined_incidents"
	DatasetIncidents               = "preprocessed_incidents"
	DatasetFireStations            = "preprocessed_firestations"
	DatasetFireStationAreas        = "preprocessed_firestation_areas"
	DatasetPropertyAssessments     = "preprocessed_property_assessments"
	DatasetCensus                  = "preprocessed_census"
	DatasetSquareMesh              = "square_mesh"
	DatasetJoinedIncidents         = "spatial_joined_incidents"
	DatasetJoinedAssessments       = "spatial_joined_property_assessments"
	DatasetJoinedCensus            = "spatial_joined_census"
	DatasetMergedAssessments       = "merged_incidents_property_assessments"
	DatasetMergedAssessmentsCensus = "merged_incidents_property_assessments_census"
	DatasetInputTable              = "input_table"
)

// Params carries the tunables every node closes over.
type Params struct {
	// SquareSize is the mesh cell edge in degrees.
	SquareSize float64
	Projection geo.Projection
	Rules      preprocess.Rules
	Features   features.Options
	Clock      clockwork.Clock
}

// DefaultParams uses 0.01° squares, the default rules and options, and the
// wall clock.
func DefaultParams(proj geo.Projection) Params {
	return Params{
		SquareSize: 0.01,
		Projection: proj,
		Rules:      preprocess.DefaultRules(),
		Features:   features.DefaultOptions(),
		Clock:      clockwork.NewRealClock(),
	}
}

// DataProcessing cleans each raw dataset.
func DataProcessing(p Params) Pipeline {
	return Pipeline{Name: StageDataProcessing, Nodes: []Node{
		{
			Name:   "combine_incidents",
			Inputs: []string{catalog.Incidents},
			Output: DatasetCombinedIncidents,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				return preprocess.CombineIncidents(p.Rules.Incidents, in[0]), nil
			},
		},
		{
			Name:   "preprocess_incidents",
			Inputs: []string{DatasetCombinedIncidents},
			Output: DatasetIncidents,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				return preprocess.Incidents(in[0], p.Rules.Incidents)
			},
		},
		{
			Name:   "preprocess_firestations",
			Inputs: []string{catalog.FireStations},
			Output: DatasetFireStations,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				return preprocess.FireStations(in[0], p.Rules.FireStations)
			},
		},
		{
			Name:   "preprocess_firestation_areas",
			Inputs: []string{catalog.FireStationAreas},
			Output: DatasetFireStationAreas,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				return preprocess.FireStationAreas(in[0], p.Rules.FireStationAreas)
			},
		},
		{
			Name:   "preprocess_property_assessments",
			Inputs: []string{catalog.PropertyAssessments},
			Output: DatasetPropertyAssessments,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				return preprocess.PropertyAssessments(in[0], p.Rules.Assessments, p.Projection, p.clock())
			},
		},
		{
			Name:   "preprocess_census",
			Inputs: []string{catalog.Census},
			Output: DatasetCensus,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				return preprocess.Census(in[0], p.Rules.Census, p.Projection)
			},
		},
	}}
}

// FeatureEngineering builds the mesh, assigns every point layer to it and
// derives the input table.
func FeatureEngineering(p Params) Pipeline {
	join := func(key string) NodeFunc {
		return func(_ context.Context, in []*table.Table) (*table.Table, error) {
			return mesh.Join(in[0], in[1], key)
		}
	}
	merge := func(_ context.Context, in []*table.Table) (*table.Table, error) {
		return features.Merge(in...), nil
	}

	return Pipeline{Name: StageFeatureEngineering, Nodes: []Node{
		{
			Name:   "create_square_mesh",
			Inputs: []string{DatasetFireStationAreas},
			Output: DatasetSquareMesh,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				return mesh.Build(in[0], p.SquareSize, p.Projection)
			},
		},
		{
			Name:   "spatial_join_incidents",
			Inputs: []string{DatasetIncidents, DatasetSquareMesh},
			Output: DatasetJoinedIncidents,
			Func:   join(preprocess.ColIncidentID),
		},
		{
			Name:   "spatial_join_property_assessments",
			Inputs: []string{DatasetPropertyAssessments, DatasetSquareMesh},
			Output: DatasetJoinedAssessments,
			Func:   join(preprocess.ColAssessmentID),
		},
		{
			Name:   "spatial_join_census",
			Inputs: []string{DatasetCensus, DatasetSquareMesh},
			Output: DatasetJoinedCensus,
			Func:   join(preprocess.ColCensusID),
		},
		{
			Name:   "merge_incidents_property_assessments",
			Inputs: []string{DatasetJoinedIncidents, DatasetJoinedAssessments},
			Output: DatasetMergedAssessments,
			Func:   merge,
		},
		{
			Name:   "merge_incidents_property_assessments_census",
			Inputs: []string{DatasetMergedAssessments, DatasetJoinedCensus},
			Output: DatasetMergedAssessmentsCensus,
			Func:   merge,
		},
		{
			Name:   "create_input_table",
			Inputs: []string{DatasetMergedAssessmentsCensus, DatasetFireStations},
			Output: DatasetInputTable,
			Func: func(_ context.Context, in []*table.Table) (*table.Table, error) {
				opts := p.Features
				if opts.Clock == nil {
					opts.Clock = p.clock()
				}
				return features.InputTable(in[0], in[1], opts)
			},
		},
	}}
}

// Default runs both stages end to end.
func Default(p Params) Pipeline {
	return Combine("__default__", DataProcessing(p), FeatureEngineering(p))
}

// Mesh preprocesses the service areas and builds the square mesh only.
func Mesh(p Params) Pipeline {
	out, _ := Only(Default(p), "mesh", "preprocess_firestation_areas", "create_square_mesh")
	return out
}

// ByName returns the stage named name, or the full pipeline for "" and
// "__default__".
func ByName(name string, p Params) (Pipeline, bool) {
	switch name {
	case "", "__default__":
		return Default(p), true
	case StageDataProcessing:
		return DataProcessing(p), true
	case StageFeatureEngineering:
		return FeatureEngineering(p), true
	}
	return Pipeline{}, false
}

func (p Params) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}
