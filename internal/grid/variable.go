package grid

// VariableKind determines how a variable is combined into a time bucket.
// Summing a continuous variable (temperature) or averaging an accumulative
// one (precipitation) produces physically wrong output, so the kind drives
// temporal resampling.
type VariableKind int

const (
	// Continuous variables (temperature, humidity, pressure, wind speed)
	// are averaged within a bucket.
	Continuous VariableKind = iota
	// Accumulative variables (precipitation, snowfall) are summed within a
	// bucket.
	Accumulative
)

// String returns a human-readable representation of the kind.
func (k VariableKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Accumulative:
		return "accumulative"
	default:
		return "unknown"
	}
}

// accumulative lists the variable names treated as accumulative. Everything
// else defaults to continuous.
var accumulative = map[string]bool{
	"precipitation": true,
	"rainfall":      true,
	"snowfall":      true,
	"solar_energy":  true,
}

// KindOf returns the resampling kind for a variable name.
func KindOf(variable string) VariableKind {
	if accumulative[variable] {
		return Accumulative
	}
	return Continuous
}
