package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/firerisk-cli/internal/catalog"
	"github.com/sells-group/firerisk-cli/internal/mesh"
	"github.com/sells-group/firerisk-cli/internal/pipeline"
	"github.com/sells-group/firerisk-cli/internal/sink"
	"github.com/sells-group/firerisk-cli/internal/table"
)

var meshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Build the square mesh and export it as GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		outPath, _ := cmd.Flags().GetString("out")
		size, _ := cmd.Flags().GetFloat64("square-size")
		if outPath == "" {
			outPath = filepath.Join(cfg.Output.Dir, cfg.Output.MeshTable+".geojson")
		}

		n, err := exportMesh(cmd.Context(), outPath, size)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d cells to %s\n", n, outPath)
		return nil
	},
}

func init() {
	meshCmd.Flags().String("out", "", "GeoJSON output path (default <output.dir>/<output.mesh_table>.geojson)")
	meshCmd.Flags().Float64("square-size", 0, "override params.square_size (degrees)")
	rootCmd.AddCommand(meshCmd)
}

func exportMesh(ctx context.Context, outPath string, squareSize float64) (int64, error) {
	params, err := pipelineParams()
	if err != nil {
		return 0, err
	}
	if squareSize > 0 {
		params.SquareSize = squareSize
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return 0, err
	}
	areas, err := cat.Read(ctx, catalog.FireStationAreas)
	if err != nil {
		return 0, err
	}

	p := pipeline.Mesh(params)
	res, err := pipeline.NewRunner(nil, nil, nil, nil).Run(ctx, p, map[string]*table.Table{catalog.FireStationAreas: areas}, pipeline.Options{})
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, eris.Wrap(err, "create mesh output directory")
	}
	return sink.WriteGeoJSONFile(outPath, mesh.Indexed(res.Outputs[pipeline.DatasetSquareMesh]))
}
