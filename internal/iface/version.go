package iface

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// apiVersionLess reports whether v is strictly less than min under
// dotted major.minor.patch comparison. Missing or unparseable segments
// compare as 0, so an unparseable segment makes v old only when
// zeroing it puts v below min (an unparseable major against "2.0.0"
// is old; "2.x.0" against "2.0.0" is not).
func apiVersionLess(v, min string) bool {
	vs, ms := strings.Split(v, "."), strings.Split(min, ".")

	for i := range 3 {
		vn := versionSegment(vs, i)
		mn := versionSegment(ms, i)

		if vn != mn {
			return vn < mn
		}
	}

	return false
}

func versionSegment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}

	n, _ := strconv.Atoi(parts[i])

	return n
}

// errRCPAPITooOld builds the diagnostic spec.md section 7's
// RcpDisconnected kind terminates the process with.
func errRCPAPITooOld(got string) error {
	return errors.Annotate(
		fmt.Errorf("rcp api %s", got),
		"reset_ind reported an rcp api older than the required minimum: %w",
	)
}
