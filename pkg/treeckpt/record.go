package treeckpt

import (
	"maps"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/retention"
)

// Record describes one committed checkpoint.
type Record struct {
	Step    int64
	Path    string
	Time    time.Time
	Metrics map[string]float64
}

func (r Record) clone() Record {
	r.Metrics = maps.Clone(r.Metrics)
	return r
}

func retentionRecords(records []Record) []retention.Record {
	out := make([]retention.Record, len(records))
	for i, r := range records {
		out[i] = retention.Record{Step: r.Step, Time: r.Time, Metrics: r.Metrics}
	}
	return out
}

// PlanRetention returns the steps the retention policy in cfg would
// delete from records, in ascending order.
func PlanRetention(records []Record, cfg Config) []int64 {
	return retention.Decide(retentionRecords(records), cfg.retention())
}

// State is the lifecycle state of a Manager.
type State int

const (
	StateIdle State = iota
	StateSavePending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSavePending:
		return "save_pending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StepDirName returns the directory name for a step.
func StepDirName(prefix string, step int64) string {
	if prefix == "" {
		return strconv.FormatInt(step, 10)
	}
	return prefix + "_" + strconv.FormatInt(step, 10)
}

// ParseStepDirName extracts the step from a directory name, reporting
// false for names that do not follow the prefix convention.
func ParseStepDirName(prefix, name string) (int64, bool) {
	digits := name
	if prefix != "" {
		var ok bool
		if digits, ok = strings.CutPrefix(name, prefix+"_"); !ok {
			return 0, false
		}
	}
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	step, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || strconv.FormatInt(step, 10) != digits {
		return 0, false
	}
	return step, true
}

func stepPath(root, prefix string, step int64) string {
	return path.Join(root, StepDirName(prefix, step))
}
