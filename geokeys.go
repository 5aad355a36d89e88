package demgrid

import (
	"errors"
	"fmt"
)

var errParse = errors.New("parse error")

type geoKey uint16

const (
	geoKeyGeodeticCRS  geoKey = 2048
	geoKeyProjectedCRS geoKey = 3072

	geoKeyUserDefined = 32767

	geoDoubleParamsTag = 34736
	geoASCIIParamsTag  = 34737
)

// parseGeoKeys parses the SHORT-valued entries of a GeoKey directory. Keys
// stored through the double and ASCII params tags are skipped; a CRS label
// needs only the SHORT codes.
func parseGeoKeys(directory []uint16) (map[geoKey]uint16, error) {
	if len(directory) < 4 {
		return nil, errParse
	}

	if keyDirectoryVersion := int(directory[0]); keyDirectoryVersion != 1 {
		return nil, errParse
	}
	if keyRevision := int(directory[1]); keyRevision != 1 {
		return nil, errParse
	}
	if minorRevision := int(directory[2]); minorRevision != 0 && minorRevision != 1 {
		return nil, errParse
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, errParse
	}

	keys := make(map[geoKey]uint16, numberOfKeys)
	for i := range numberOfKeys {
		keyValues := directory[4+4*i : 4+4*(i+1)]
		switch tiffTagLocation := int(keyValues[1]); tiffTagLocation {
		case 0:
			if numberOfValues := int(keyValues[2]); numberOfValues != 1 {
				return nil, errParse
			}
			keys[geoKey(keyValues[0])] = keyValues[3]
		case geoDoubleParamsTag, geoASCIIParamsTag:
		default:
			return nil, errors.ErrUnsupported
		}
	}
	return keys, nil
}

// crsLabel derives an EPSG label from a GeoKey directory, preferring the
// projected CRS over the geodetic one when both are present. It returns the
// empty string when the directory names no CRS, and "user-defined" when it
// names one without an EPSG code.
func crsLabel(directory []uint16) (string, error) {
	keys, err := parseGeoKeys(directory)
	if err != nil {
		return "", err
	}
	for _, key := range []geoKey{geoKeyProjectedCRS, geoKeyGeodeticCRS} {
		code, ok := keys[key]
		if !ok || code == 0 {
			continue
		}
		if code == geoKeyUserDefined {
			return "user-defined", nil
		}
		return fmt.Sprintf("EPSG:%d", code), nil
	}
	return "", nil
}
