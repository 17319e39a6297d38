package skeleton

import (
	"errors"
	"fmt"
)

var (
	ErrNoRoot           = errors.New("skeleton has no root part")
	ErrMultipleRoots    = errors.New("skeleton has more than one root part")
	ErrUnknownParent    = errors.New("parent part is not declared before the child")
	ErrDuplicatePart    = errors.New("duplicate part name")
	ErrMissingJoint     = errors.New("non-root part has no joint")
	ErrJointExists      = errors.New("part already has a parent joint")
	ErrInvalidLimit     = errors.New("invalid angular limit")
	ErrInvalidGains     = errors.New("invalid PD gains")
	ErrUnknownJoint     = errors.New("unknown joint type")
	ErrAnchorMismatch   = errors.New("joint anchors do not coincide")
	ErrAnchorOffSurface = errors.New("joint anchor is off the parent surface")
	ErrSkeletonBuilt    = errors.New("skeleton already built")
	ErrEmptyConfig      = errors.New("configuration has no parts")
	ErrForeignBodyPart  = errors.New("body part belongs to another builder")
)

// ConfigurationError is returned for any problem detected while building a
// skeleton. Construction aborts on the first one.
type ConfigurationError struct {
	Part   string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "skeleton configuration"
	if e.Part != "" {
		msg = fmt.Sprintf("%s: part %q", msg, e.Part)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(part, field string, err error, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{
		Part:   part,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}
