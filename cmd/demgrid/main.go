package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/twpayne/go-demgrid"
)

func run() error {
	input := flag.String("input", "data/dem.tif", "path to the input GeoTIFF")
	output := flag.String("output", "data/grid.json", "path to the output JSON grid")
	nx := flag.Int("nx", 150, "number of grid columns")
	ny := flag.Int("ny", 100, "number of grid rows")
	noData := flag.String("nodata", "", "override the source nodata value")
	probe := flag.String("probe", "", "print the elevation at \"lon,lat\" and exit")
	flag.Parse()

	file, err := demgrid.Open(os.DirFS(filepath.Dir(*input)), filepath.Base(*input))
	if err != nil {
		return err
	}
	defer file.Close()

	if *probe != "" {
		lonString, latString, ok := strings.Cut(*probe, ",")
		if !ok {
			return errors.New("syntax: -probe lon,lat")
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonString), 64)
		if err != nil {
			return err
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latString), 64)
		if err != nil {
			return err
		}
		elevation, err := file.ElevationAt(lon, lat)
		if err != nil {
			return err
		}
		fmt.Println(elevation)
		return nil
	}

	raster, err := file.ReadRaster()
	if err != nil {
		return err
	}
	crs := raster.CRSLabel
	if crs == "" {
		crs = "unknown"
	}
	width, height := raster.Dims()
	bounds := raster.Bounds
	log.Printf("read %s: %dx%d samples, CRS %s, bounds %g,%g,%g,%g", *input, width, height, crs, bounds.Left, bounds.Bottom, bounds.Right, bounds.Top)

	options := []demgrid.ResampleOption{
		demgrid.WithAdvisoryFunc(func(advisory demgrid.Advisory) {
			log.Printf("warning: %s", advisory.Message)
		}),
	}
	if *noData != "" {
		noDataValue, err := strconv.ParseFloat(*noData, 64)
		if err != nil {
			return err
		}
		options = append(options, demgrid.WithNoDataOverride(noDataValue))
	}

	grid, err := demgrid.Resample(raster, *nx, *ny, options...)
	if err != nil {
		return err
	}

	outputFile, err := os.Create(*output)
	if err != nil {
		return err
	}
	if err := grid.WriteJSON(outputFile); err != nil {
		_ = outputFile.Close()
		return err
	}
	if err := outputFile.Close(); err != nil {
		return err
	}
	log.Printf("wrote %s: %dx%d grid", *output, *nx, *ny)

	return nil
}

func main() {
	log.SetFlags(0)
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
