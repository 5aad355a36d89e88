package demgrid

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseGeoKeys(t *testing.T) {
	// Directory from a typical projected product, with citation and
	// parameter keys stored through the ASCII and double params tags.
	directory := []uint16{
		1, 1, 0, 8,
		1024, 0, 1, 1,
		1025, 0, 1, 1,
		1026, 34737, 28, 0,
		2048, 0, 1, 4258,
		2054, 0, 1, 9102,
		2057, 34736, 1, 5,
		3072, 0, 1, 3035,
		3076, 0, 1, 9001,
	}

	keys, err := parseGeoKeys(directory)
	assert.NoError(t, err)
	assert.Equal(t, map[geoKey]uint16{
		1024: 1,
		1025: 1,
		2048: 4258,
		2054: 9102,
		3072: 3035,
		3076: 9001,
	}, keys)

	label, err := crsLabel(directory)
	assert.NoError(t, err)
	assert.Equal(t, "EPSG:3035", label)
}

func TestParseGeoKeysUnsupportedLocation(t *testing.T) {
	_, err := parseGeoKeys([]uint16{
		1, 1, 0, 1,
		1024, 42112, 1, 0,
	})
	assert.IsError(t, err, errors.ErrUnsupported)
}

func TestCRSLabel(t *testing.T) {
	for _, tc := range []struct {
		name      string
		directory []uint16
		expected  string
		expectErr bool
	}{
		{
			name: "geographic",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 2,
				1025, 0, 1, 1,
				2048, 0, 1, 4326,
			},
			expected: "EPSG:4326",
		},
		{
			name: "projected_precedence",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 1,
				2048, 0, 1, 4258,
				3072, 0, 1, 3035,
			},
			expected: "EPSG:3035",
		},
		{
			name: "user_defined",
			directory: []uint16{
				1, 1, 0, 2,
				1024, 0, 1, 1,
				3072, 0, 1, 32767,
			},
			expected: "user-defined",
		},
		{
			name: "no_crs",
			directory: []uint16{
				1, 1, 0, 1,
				1025, 0, 1, 1,
			},
			expected: "",
		},
		{
			name:      "empty",
			directory: nil,
			expectErr: true,
		},
		{
			name: "bad_version",
			directory: []uint16{
				2, 1, 0, 0,
			},
			expectErr: true,
		},
		{
			name: "truncated",
			directory: []uint16{
				1, 1, 0, 2,
				1024, 0, 1, 2,
			},
			expectErr: true,
		},
		{
			name: "bad_value_count",
			directory: []uint16{
				1, 1, 0, 1,
				1024, 0, 2, 1,
			},
			expectErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := crsLabel(tc.directory)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}
