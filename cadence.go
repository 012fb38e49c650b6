package cadence

const (
	// Name is the service name reported in logs and error reports
	Name = "cadence"

	// Version is the current release of the sequencing engine
	Version = "0.4.0"
)
