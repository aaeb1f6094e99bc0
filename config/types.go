package config

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Duration accepts Go durations extended with days and weeks ("1d12h"),
// or a bare integer number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Newf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := str2duration.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return str2duration.String(time.Duration(d)), nil
}

// Size accepts a byte count as a quantity such as "512Ki" or "5Mi".
type Size int64

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Newf("line %d: size must be a scalar", value.Line)
	}
	q, err := resource.ParseQuantity(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid size %q", value.Line, value.Value)
	}
	*s = Size(q.Value())
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return resource.NewQuantity(int64(s), resource.BinarySI).String(), nil
}
