package sweepv1

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// SweepRequest asks the agent to run one sweep. Empty name and pattern
// lists fall back to the agent's own configuration.
type SweepRequest struct {
	Phase           string
	WorkDir         string
	ToolRoot        string
	ExtraNames      []string
	ServicePatterns []string
	Diagnostics     bool
	// CallerPID is the requesting client. The agent never kills it.
	CallerPID int
}

func (r SweepRequest) Proto() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"phase":            structpb.NewStringValue(r.Phase),
		"work_dir":         structpb.NewStringValue(r.WorkDir),
		"tool_root":        structpb.NewStringValue(r.ToolRoot),
		"extra_names":      stringList(r.ExtraNames),
		"service_patterns": stringList(r.ServicePatterns),
		"diagnostics":      structpb.NewBoolValue(r.Diagnostics),
		"caller_pid":       structpb.NewNumberValue(float64(r.CallerPID)),
	}}
}

func SweepRequestFromProto(s *structpb.Struct) SweepRequest {
	f := s.GetFields()
	return SweepRequest{
		Phase:           f["phase"].GetStringValue(),
		WorkDir:         f["work_dir"].GetStringValue(),
		ToolRoot:        f["tool_root"].GetStringValue(),
		ExtraNames:      stringsOf(f["extra_names"]),
		ServicePatterns: stringsOf(f["service_patterns"]),
		Diagnostics:     f["diagnostics"].GetBoolValue(),
		CallerPID:       int(f["caller_pid"].GetNumberValue()),
	}
}

// Report is the wire form of a completed sweep.
type Report struct {
	RunID      uint64
	Phase      string
	WorkDir    string
	Skipped    string
	Services   []string
	Candidates []int
	Self       int
	Spared     []int
	Killed     []int
	Errors     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Report) Proto() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"run_id":      structpb.NewNumberValue(float64(r.RunID)),
		"phase":       structpb.NewStringValue(r.Phase),
		"work_dir":    structpb.NewStringValue(r.WorkDir),
		"skipped":     structpb.NewStringValue(r.Skipped),
		"services":    stringList(r.Services),
		"candidates":  intList(r.Candidates),
		"self":        structpb.NewNumberValue(float64(r.Self)),
		"spared":      intList(r.Spared),
		"killed":      intList(r.Killed),
		"errors":      stringList(r.Errors),
		"started_at":  timeValue(r.StartedAt),
		"finished_at": timeValue(r.FinishedAt),
	}}
}

// Outcome summarizes the report for listings.
func (r Report) Outcome() string {
	switch {
	case r.Skipped != "":
		return "skipped"
	case len(r.Errors) > 0:
		return "degraded"
	case len(r.Killed) > 0:
		return "killed"
	default:
		return "clean"
	}
}

func ReportFromProto(s *structpb.Struct) Report {
	f := s.GetFields()
	return Report{
		RunID:      uint64(f["run_id"].GetNumberValue()),
		Phase:      f["phase"].GetStringValue(),
		WorkDir:    f["work_dir"].GetStringValue(),
		Skipped:    f["skipped"].GetStringValue(),
		Services:   stringsOf(f["services"]),
		Candidates: intsOf(f["candidates"]),
		Self:       int(f["self"].GetNumberValue()),
		Spared:     intsOf(f["spared"]),
		Killed:     intsOf(f["killed"]),
		Errors:     stringsOf(f["errors"]),
		StartedAt:  parseTime(f["started_at"]),
		FinishedAt: parseTime(f["finished_at"]),
	}
}

// HistoryRequest filters the agent's run history. Limit <= 0 means all.
// A non-zero RunID selects that single run and ignores the other filters.
type HistoryRequest struct {
	RunID   uint64
	Limit   int
	Phase   string
	WorkDir string
}

func (r HistoryRequest) Proto() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"run_id":   structpb.NewNumberValue(float64(r.RunID)),
		"limit":    structpb.NewNumberValue(float64(r.Limit)),
		"phase":    structpb.NewStringValue(r.Phase),
		"work_dir": structpb.NewStringValue(r.WorkDir),
	}}
}

func HistoryRequestFromProto(s *structpb.Struct) HistoryRequest {
	f := s.GetFields()
	return HistoryRequest{
		RunID:   uint64(f["run_id"].GetNumberValue()),
		Limit:   int(f["limit"].GetNumberValue()),
		Phase:   f["phase"].GetStringValue(),
		WorkDir: f["work_dir"].GetStringValue(),
	}
}

// HistoryProto wraps runs into a History response.
func HistoryProto(runs []Report) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(runs))
	for _, r := range runs {
		values = append(values, structpb.NewStructValue(r.Proto()))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"runs": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// HistoryFromProto unwraps a History response.
func HistoryFromProto(s *structpb.Struct) []Report {
	values := s.GetFields()["runs"].GetListValue().GetValues()
	runs := make([]Report, 0, len(values))
	for _, v := range values {
		runs = append(runs, ReportFromProto(v.GetStructValue()))
	}
	return runs
}

func stringList(items []string) *structpb.Value {
	values := make([]*structpb.Value, 0, len(items))
	for _, item := range items {
		values = append(values, structpb.NewStringValue(item))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func intList(items []int) *structpb.Value {
	values := make([]*structpb.Value, 0, len(items))
	for _, item := range items {
		values = append(values, structpb.NewNumberValue(float64(item)))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func stringsOf(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, item := range values {
		out = append(out, item.GetStringValue())
	}
	return out
}

func intsOf(v *structpb.Value) []int {
	values := v.GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]int, 0, len(values))
	for _, item := range values {
		out = append(out, int(item.GetNumberValue()))
	}
	return out
}

func timeValue(t time.Time) *structpb.Value {
	if t.IsZero() {
		return structpb.NewStringValue("")
	}
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

func parseTime(v *structpb.Value) time.Time {
	raw := v.GetStringValue()
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
