package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/beanraft/district-cli/internal/boundary"
)

var boundaryLocate string

var boundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Inspect the administrative boundary shapefile",
}

var boundaryLoadCmd = &cobra.Command{
	Use:   "load [shapefile]",
	Short: "Load a dong boundary shapefile and report its contents",
	Long:  "Validates the shapefile (a bare .shp or the ministry .zip download), builds the point-in-polygon index, and prints unit and adjacency counts. With --locate, also resolves a coordinate against the index.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Boundary.Shapefile
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return eris.New("shapefile path required (argument or boundary.shapefile config)")
		}

		features, err := boundary.LoadPath(path)
		if err != nil {
			return err
		}
		idx := boundary.NewIndex(features)

		adjacent := 0
		for _, u := range idx.Units() {
			adjacent += len(idx.Adjacent(u.Code))
		}
		fmt.Printf("units:          %d\nadjacency refs: %d\n", idx.Len(), adjacent)

		if boundaryLocate != "" {
			lat, lon, err := parseCoord(boundaryLocate)
			if err != nil {
				return err
			}
			unit, ok := idx.Locate(lat, lon)
			if !ok {
				fmt.Printf("locate:         no unit contains %.6f,%.6f\n", lat, lon)
				return nil
			}
			fmt.Printf("locate:         %s %s\n", unit.Code, unit.Name)
		}
		return nil
	},
}

func parseCoord(s string) (lat, lon float64, err error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("invalid coordinate %q (want lat,lon)", s)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "invalid latitude in %q", s)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "invalid longitude in %q", s)
	}
	return lat, lon, nil
}

func init() {
	boundaryLoadCmd.Flags().StringVar(&boundaryLocate, "locate", "", "resolve a lat,lon coordinate against the index")
	boundaryCmd.AddCommand(boundaryLoadCmd)
	rootCmd.AddCommand(boundaryCmd)
}
