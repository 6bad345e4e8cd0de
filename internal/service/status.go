package service

import (
	"regexp"
	"strconv"

	"github.com/lmevald/lmevald/internal/model"
)

// scanProgress looks for the most recent progress marker in lines. The
// marker is an implicit protocol of the wrapped tool and may change between
// its versions.
func scanProgress(lines []string, marker *regexp.Regexp) (int, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		m := marker.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		pct, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return min(max(pct, 0), 100), true
	}
	return 0, false
}

// jobStatus maps a fresh poll to a status. A stop request wins over the
// exit code.
func jobStatus(exited bool, code int, stopped bool) (model.JobStatus, *int) {
	var exitCode *int
	if exited {
		exitCode = &code
	}
	switch {
	case stopped:
		return model.JobStatusStopped, exitCode
	case !exited:
		return model.JobStatusRunning, nil
	case code == 0:
		return model.JobStatusCompleted, exitCode
	default:
		return model.JobStatusFailed, exitCode
	}
}
