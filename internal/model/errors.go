package model

import "fmt"

// Error kinds shared by the compute and detection engines. Kind() is the stable
// identifier used on the wire.
const (
	KindMalformedBar     = "malformed_bar"
	KindUnknownIndicator = "unknown_indicator"
	KindUnknownPattern   = "unknown_pattern"
	KindInvalidParameter = "invalid_parameter"
	KindInsufficientData = "insufficient_data"
)

// KindError is implemented by every typed error of the engine.
type KindError interface {
	error
	Kind() string
}

// MalformedBarError reports the first bar that violates the OHLC or ordering invariant.
type MalformedBarError struct {
	Index  int
	Reason string
}

func (e *MalformedBarError) Error() string {
	return fmt.Sprintf("malformed bar at index %d: %s", e.Index, e.Reason)
}

func (e *MalformedBarError) Kind() string { return KindMalformedBar }

// UnknownIndicatorError is returned for a name absent from the indicator registry.
type UnknownIndicatorError struct {
	Name string
}

func (e *UnknownIndicatorError) Error() string {
	return fmt.Sprintf("unknown indicator %q", e.Name)
}

func (e *UnknownIndicatorError) Kind() string { return KindUnknownIndicator }

// UnknownPatternError is returned for a name absent from the pattern registry.
type UnknownPatternError struct {
	Name string
}

func (e *UnknownPatternError) Error() string {
	return fmt.Sprintf("unknown pattern %q", e.Name)
}

func (e *UnknownPatternError) Kind() string { return KindUnknownPattern }

// InvalidParameterError reports a parameter outside its declared schema.
type InvalidParameterError struct {
	Indicator string
	Param     string
	Reason    string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q for %s: %s", e.Param, e.Indicator, e.Reason)
}

func (e *InvalidParameterError) Kind() string { return KindInvalidParameter }

// InsufficientDataError reports a series shorter than the required lookback.
type InsufficientDataError struct {
	Name     string
	Required int
	Have     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s needs at least %d bars, have %d", e.Name, e.Required, e.Have)
}

func (e *InsufficientDataError) Kind() string { return KindInsufficientData }
