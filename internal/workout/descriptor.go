// Package workout estimates how long a workout takes from its exercise list.
package workout

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidExerciseDescriptor is returned for descriptors no estimate can be made from
var ErrInvalidExerciseDescriptor = errors.New("invalid exercise descriptor")

// InvalidDescriptorError reports which exercise was rejected and why
type InvalidDescriptorError struct {
	Index  int
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid exercise descriptor at index %d: %s", e.Index, e.Reason)
}

func (e *InvalidDescriptorError) Unwrap() error {
	return ErrInvalidExerciseDescriptor
}

// Unit is the unit of a timed exercise
type Unit string

const (
	UnitSeconds Unit = "sec"
	UnitMinutes Unit = "min"
)

// ParseUnit normalizes free-form unit text. Anything containing "sec" is
// seconds, anything containing "min" is minutes. Other text is returned
// unchanged and treated as unrecognised by the estimator.
func ParseUnit(s string) Unit {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(lower, "sec"):
		return UnitSeconds
	case strings.Contains(lower, "min"):
		return UnitMinutes
	default:
		return Unit(lower)
	}
}

// Known reports whether the estimator can convert u to seconds
func (u Unit) Known() bool {
	return u == UnitSeconds || u == UnitMinutes
}

// Descriptor is one exercise entry. The concrete types are Timed, SetsReps
// and Unspecified.
type Descriptor interface {
	kind() string
}

// Timed is an exercise performed for a fixed duration
type Timed struct {
	Value float64
	Unit  Unit
}

// SetsReps is an exercise counted in sets. Reps and RestSeconds are optional.
type SetsReps struct {
	Sets        int
	Reps        *int
	RestSeconds *int
}

// Unspecified is an exercise with neither a duration nor a set count
type Unspecified struct{}

func (Timed) kind() string       { return "timed" }
func (SetsReps) kind() string    { return "sets_reps" }
func (Unspecified) kind() string { return "unspecified" }

// Kind returns a short label for the descriptor's shape
func Kind(d Descriptor) string {
	if d == nil {
		return Unspecified{}.kind()
	}
	return d.kind()
}

var durationText = regexp.MustCompile(`(\d+)\s*(\w+)`)

// ParseDurationText reads text such as "45 sec", "2 min" or "30 seconds".
// Text that does not match yields a Timed with an empty unit, which the
// estimator counts as a fallback.
func ParseDurationText(text string) Timed {
	m := durationText.FindStringSubmatch(text)
	if m == nil {
		return Timed{Unit: Unit(strings.ToLower(strings.TrimSpace(text)))}
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return Timed{}
	}
	return Timed{Value: float64(value), Unit: ParseUnit(m[2])}
}

// Exercise is the wire shape of an exercise entry. Which fields are set
// decides the descriptor: a duration wins over sets, and an entry with
// neither is Unspecified.
type Exercise struct {
	Name          string   `json:"name,omitempty" yaml:"name"`
	Duration      string   `json:"duration,omitempty" yaml:"duration"`
	DurationValue *float64 `json:"duration_value,omitempty" yaml:"duration_value"`
	DurationUnit  string   `json:"duration_unit,omitempty" yaml:"duration_unit"`
	Sets          *int     `json:"sets,omitempty" yaml:"sets"`
	Reps          *int     `json:"reps,omitempty" yaml:"reps"`
	RestSeconds   *int     `json:"rest_seconds,omitempty" yaml:"rest_seconds"`
}

// Descriptor converts the wire shape to a Descriptor
func (e Exercise) Descriptor() Descriptor {
	switch {
	case e.DurationValue != nil:
		return Timed{Value: *e.DurationValue, Unit: ParseUnit(e.DurationUnit)}
	case strings.TrimSpace(e.Duration) != "":
		return ParseDurationText(e.Duration)
	case e.Sets != nil:
		return SetsReps{Sets: *e.Sets, Reps: e.Reps, RestSeconds: e.RestSeconds}
	default:
		return Unspecified{}
	}
}

// Clone returns a copy that shares no pointers with e
func (e Exercise) Clone() Exercise {
	cp := e
	if e.DurationValue != nil {
		v := *e.DurationValue
		cp.DurationValue = &v
	}
	cp.Sets = cloneInt(e.Sets)
	cp.Reps = cloneInt(e.Reps)
	cp.RestSeconds = cloneInt(e.RestSeconds)
	return cp
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Descriptors converts a list of exercises
func Descriptors(exercises []Exercise) []Descriptor {
	out := make([]Descriptor, len(exercises))
	for i, e := range exercises {
		out[i] = e.Descriptor()
	}
	return out
}

func validate(i int, d Descriptor) error {
	switch v := d.(type) {
	case Timed:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return &InvalidDescriptorError{Index: i, Reason: "duration is not a finite number"}
		}
		if v.Value < 0 {
			return &InvalidDescriptorError{Index: i, Reason: "duration must not be negative"}
		}
		if seconds := timedSeconds(v); seconds > MaxExerciseSeconds {
			return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("duration exceeds %d seconds", MaxExerciseSeconds)}
		}
	case SetsReps:
		if v.Sets <= 0 {
			return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("sets %d must be positive", v.Sets)}
		}
		if v.Sets > MaxExerciseSeconds/SecondsPerSet {
			return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("sets %d exceeds %d seconds", v.Sets, MaxExerciseSeconds)}
		}
		if v.Reps != nil && *v.Reps < 0 {
			return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("reps %d must not be negative", *v.Reps)}
		}
		if v.RestSeconds != nil && *v.RestSeconds < 0 {
			return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("rest %d must not be negative", *v.RestSeconds)}
		}
		if v.RestSeconds != nil && *v.RestSeconds > MaxExerciseSeconds {
			return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("rest %d exceeds %d seconds", *v.RestSeconds, MaxExerciseSeconds)}
		}
		if setsRepsSeconds(v) > MaxExerciseSeconds {
			return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("sets and rest exceed %d seconds", MaxExerciseSeconds)}
		}
	case Unspecified, nil:
	default:
		return &InvalidDescriptorError{Index: i, Reason: fmt.Sprintf("unknown descriptor %T", d)}
	}
	return nil
}
