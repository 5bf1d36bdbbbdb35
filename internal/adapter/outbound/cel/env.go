package cel

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// NewConditionEnvironment creates the CEL environment rule conditions are
// compiled in. Variables:
//   - kind: "global" or "component"
//   - component: component being checked ("" for global checks)
//   - weekday: lowercase weekday in the rule's zone
//   - minute_of_day: 0..1439 in the rule's zone
//   - request_time: instant being checked
//   - timezone: the rule's zone name
//
// Functions: glob(pattern, name), clock("HH:MM") -> int,
// in_window(minute, "HH:MM", "HH:MM") with overnight wrap.
func NewConditionEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("kind", cel.StringType),
		cel.Variable("component", cel.StringType),
		cel.Variable("weekday", cel.StringType),
		cel.Variable("minute_of_day", cel.IntType),
		cel.Variable("request_time", cel.TimestampType),
		cel.Variable("timezone", cel.StringType),

		// glob: shell pattern match, handy for component families.
		// Usage: glob("report*", component)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(strings.ToLower(p), strings.ToLower(n))
					return types.Bool(matched)
				}),
			),
		),

		// clock: minute of day for a wall-clock string.
		// Usage: minute_of_day >= clock("12:30")
		cel.Function("clock",
			cel.Overload("clock_string",
				[]*cel.Type{cel.StringType},
				cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					m, err := schedule.ParseClockTime(v.Value().(string))
					if err != nil {
						return types.NewErr("clock: %v", err)
					}
					return types.Int(m)
				}),
			),
		),

		// in_window: inclusive window test that wraps past midnight when
		// start is after end.
		// Usage: !in_window(minute_of_day, "12:00", "13:00")
		cel.Function("in_window",
			cel.Overload("in_window_int_string_string",
				[]*cel.Type{cel.IntType, cel.StringType, cel.StringType},
				cel.BoolType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					minute := int(args[0].Value().(int64))
					start, err := schedule.ParseClockTime(args[1].Value().(string))
					if err != nil {
						return types.NewErr("in_window: %v", err)
					}
					end, err := schedule.ParseClockTime(args[2].Value().(string))
					if err != nil {
						return types.NewErr("in_window: %v", err)
					}
					if start > end {
						return types.Bool(minute >= start || minute <= end)
					}
					return types.Bool(start <= minute && minute <= end)
				}),
			),
		),
	)
}

// BuildActivation creates the CEL activation for a condition input.
func BuildActivation(in schedule.ConditionInput) map[string]any {
	rt := in.RequestTime
	if rt.IsZero() {
		rt = time.Unix(0, 0).UTC()
	}
	return map[string]any{
		"kind":          in.Kind,
		"component":     in.Component,
		"weekday":       in.Weekday,
		"minute_of_day": int64(in.MinuteOfDay),
		"request_time":  rt,
		"timezone":      in.Timezone,
	}
}
