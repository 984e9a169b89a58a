package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firerisk-cli/internal/config"
	"github.com/sells-group/firerisk-cli/internal/model"
	"github.com/sells-group/firerisk-cli/internal/pipeline"
	"github.com/sells-group/firerisk-cli/internal/store"
)

const testCatalog = `root: raw
datasets:
  incidents:
    type: partitioned_csv
    path: interventions/*.csv
  firestations:
    type: csv
    path: casernes.csv
  firestation_areas:
    type: geojson
    path: limites.geojson
  property_assessments:
    type: geojson
    path: uef.geojson
  census:
    type: geojson
    path: census.geojson
`

const testAreas = `{"type":"FeatureCollection","features":[{"type":"Feature",
"properties":{"NO_CAS_ADM":10,"NOM_CAS_AD":"Caserne 10","OBJECTID":1},
"geometry":{"type":"Polygon","coordinates":[[[-73.60,45.50],[-73.54,45.50],[-73.54,45.54],[-73.60,45.54],[-73.60,45.50]]]}}]}`

const testAssessments = `{"type":"FeatureCollection","features":[{"type":"Feature",
"properties":{"ID_UEV":5001,"ANNEE_CONSTRUCTION":"1950","CATEGORIE_UEF":"Régulier"},
"geometry":{"type":"Polygon","coordinates":[[[-73.580,45.510],[-73.579,45.510],[-73.579,45.511],[-73.580,45.511],[-73.580,45.510]]]}}]}`

const testCensus = `{"type":"FeatureCollection","features":[{"type":"Feature",
"properties":{"DGUID":"2021S051224620001","Population, 2021":500,"Population density per square kilometre":1200.5,"Average size of census families":2.5},
"geometry":{"type":"Polygon","coordinates":[[[-73.56,45.52],[-73.55,45.52],[-73.55,45.53],[-73.56,45.53],[-73.56,45.52]]]}}]}`

// setupProject writes a one-station catalog under a temp dir and points cfg
// at it.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"conf/catalog.yaml": testCatalog,
		"conf/raw/interventions/2023.csv": "INCIDENT_NBR,CREATION_DATE_TIME,INCIDENT_TYPE_DESC,DESCRIPTION_GROUPE,CASERNE,NOMBRE_UNITES,LATITUDE,LONGITUDE\n" +
			"AB-1,2023-06-01T14:30:00,Feu de cuisson,INCENDIE,10,3,45.51,-73.57\n",
		"conf/raw/casernes.csv":    "CASERNE,ARRONDISSEMENT,VILLE,DATE_DEBUT,DATE_FIN,LATITUDE,LONGITUDE\n10,Ville-Marie,,1990-01-01,,45.52,-73.56\n",
		"conf/raw/limites.geojson": testAreas,
		"conf/raw/uef.geojson":     testAssessments,
		"conf/raw/census.geojson":  testCensus,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg = &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "runs.db")},
		Catalog: config.CatalogConfig{Path: filepath.Join(dir, "conf", "catalog.yaml")},
		Params: config.ParamsConfig{
			SquareSize:     1,
			UTMZone:        13,
			FireCategories: []string{"Autres incendies", "Incendies de bâtiments"},
		},
		Output: config.OutputConfig{
			Dir:        filepath.Join(dir, "out"),
			Formats:    []string{"csv", "sqlite", "geojson"},
			SQLitePath: filepath.Join(dir, "out", "firerisk.db"),
			Table:      "input_table",
			MeshTable:  "square_mesh",
		},
		Metrics: config.MetricsConfig{Textfile: filepath.Join(dir, "firerisk.prom")},
	}
	return dir
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	dir := setupProject(t)
	ctx := context.Background()

	res, err := runPipeline(ctx, "", "", true)
	require.NoError(t, err)

	out := res.Outputs[pipeline.DatasetInputTable]
	require.NotNil(t, out)
	assert.Equal(t, 3, out.Len())

	for _, f := range []string{"input_table.csv", "square_mesh.csv", "square_mesh.geojson", "firerisk.db"} {
		assert.FileExists(t, filepath.Join(dir, "out", f))
	}
	assert.NoFileExists(t, filepath.Join(dir, "out", "input_table.geojson"))

	prom, err := os.ReadFile(filepath.Join(dir, "firerisk.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "firerisk_input_table_rows 3")
	assert.Contains(t, string(prom), "firerisk_mesh_cells 1")

	st, err := store.NewSQLite(cfg.Store.SQLitePath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, []string{pipeline.StageDataProcessing, pipeline.StageFeatureEngineering}, runs[0].Params.Stages)
	require.NotNil(t, runs[0].Result)
	assert.Equal(t, 3, runs[0].Result.OutputRows)
}

func TestRunPipeline_DataProcessingStage(t *testing.T) {
	dir := setupProject(t)
	cfg.Output.Formats = []string{"csv"}

	res, err := runPipeline(context.Background(), pipeline.StageDataProcessing, "", false)
	require.NoError(t, err)
	assert.Len(t, res.Run.Outputs, 5)
	assert.FileExists(t, filepath.Join(dir, "out", "preprocessed_incidents.csv"))
	assert.FileExists(t, filepath.Join(dir, "out", "preprocessed_firestation_areas.csv"))
}

func TestRunPipeline_Until(t *testing.T) {
	dir := setupProject(t)
	cfg.Output.Formats = []string{"geojson"}

	res, err := runPipeline(context.Background(), "", "create_square_mesh", false)
	require.NoError(t, err)
	assert.Contains(t, res.Outputs, pipeline.DatasetSquareMesh)
	assert.NotContains(t, res.Outputs, pipeline.DatasetInputTable)
	assert.FileExists(t, filepath.Join(dir, "out", "square_mesh.geojson"))
}

func TestRunPipeline_Errors(t *testing.T) {
	setupProject(t)

	_, err := runPipeline(context.Background(), "training", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")

	_, err = runPipeline(context.Background(), "", "no_such_node", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")

	// The feature-engineering stage needs preprocessed datasets in the catalog.
	_, err = runPipeline(context.Background(), pipeline.StageFeatureEngineering, "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset")
}

func TestExportMesh(t *testing.T) {
	dir := setupProject(t)
	path := filepath.Join(dir, "mesh", "cells.geojson")

	n, err := exportMesh(context.Background(), path, 0.02)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(6)) // at least 3 x 2 squares over a 0.06° x 0.04° area

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"index_mesh":0`)
	assert.Contains(t, string(data), `"FIRE_STATION_ID":10`)
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, []string{"data_processing", "feature_engineering"}, stageNames(""))
	assert.Equal(t, []string{"feature_engineering"}, stageNames("feature_engineering"))
}
