package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/internal/imaging"
	"github.com/xkilldash9x/waypoint/internal/observability"
	"github.com/xkilldash9x/waypoint/internal/targeting"
)

// newGridCmd creates the `grid` command, which draws the marker grid the
// planner would see onto a screenshot.
func newGridCmd() *cobra.Command {
	var (
		output  string
		columns int
		rows    int
		radius  float64
	)

	gridCmd := &cobra.Command{
		Use:   "grid IMAGE",
		Short: "Draws the marker grid onto a screenshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			gc := cfg.Guidance()
			if !cmd.Flags().Changed("columns") {
				columns = gc.GridColumns
			}
			if !cmd.Flags().Changed("rows") {
				rows = gc.GridRows
			}
			if !cmd.Flags().Changed("radius") {
				radius = gc.MarkerRadiusPx
			}

			input := args[0]
			if output == "" {
				ext := filepath.Ext(input)
				output = strings.TrimSuffix(input, ext) + ".grid.png"
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			w, h, err := imaging.Size(data)
			if err != nil {
				return err
			}
			grid, err := targeting.GenerateGridWithRadius(w, h, columns, rows, radius)
			if err != nil {
				return err
			}
			annotated, err := imaging.AnnotatePNG(data, grid.Marks())
			if err != nil {
				return fmt.Errorf("failed to annotate image: %w", err)
			}
			if err := os.WriteFile(output, annotated, 0o644); err != nil {
				return fmt.Errorf("failed to write annotated image: %w", err)
			}

			observability.GetLogger().Debug("Grid written.",
				zap.String("input", input),
				zap.String("output", output),
				zap.Int("markers", len(grid.Markers)))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%dx%d image, %d markers (%d columns x %d rows)\n", w, h, len(grid.Markers), grid.Columns, grid.Rows)
			for _, m := range grid.Markers {
				fmt.Fprintf(out, "  %3d  (%.4f, %.4f)\n", m.ID, m.Center.X, m.Center.Y)
			}
			fmt.Fprintf(out, "Annotated image written to %s\n", output)
			return nil
		},
	}

	gridCmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default IMAGE.grid.png)")
	gridCmd.Flags().IntVar(&columns, "columns", 0, "Grid columns (default from config)")
	gridCmd.Flags().IntVar(&rows, "rows", 0, "Grid rows (default from config)")
	gridCmd.Flags().Float64Var(&radius, "radius", 0, "Marker radius in pixels (default from config)")
	return gridCmd
}
