package subset

import (
	"fmt"
	"path"
	"strconv"
)

// ParseResourceGlobals extracts (rgt, cycle, region) from a granule's
// filename, per the standard ATL0x_YYYYMMDDHHMMSS_ttttccrr_vvv_ee
// naming convention (spec.md doesn't print this out but it's how
// original_source/Atl06Reader.cpp's parseResource recovers the three
// fields that aren't stored inside the archive itself): four digits
// reference ground track, two digits cycle, two digits region,
// starting at byte 21, right after the 5-character product name, the
// 14-character date stamp and their two underscores.
func ParseResourceGlobals(uri string) (rgt, cycle, region int, err error) {
	name := path.Base(uri)
	const minLen = 29
	if len(name) < minLen {
		return 0, 0, 0, fmt.Errorf("subset: resource name %q too short to carry rgt/cycle/region", name)
	}

	rgt64, err := strconv.ParseInt(name[21:25], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("subset: parsing rgt from %q: %w", name, err)
	}
	cycle64, err := strconv.ParseInt(name[25:27], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("subset: parsing cycle from %q: %w", name, err)
	}
	region64, err := strconv.ParseInt(name[27:29], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("subset: parsing region from %q: %w", name, err)
	}
	return int(rgt64), int(cycle64), int(region64), nil
}
