// Package config holds the startup options of the aggregator and checks
// them before any channel exists.
package config

import (
	"fmt"
	"io"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
)

// Defaults and bounds of the options.
const (
	DefaultPort          = 46100
	MinPort              = 1024
	MaxPort              = 65535
	MinSources           = 1
	MaxSources           = 16
	DefaultComponentName = "Aggregator"
	DefaultOutputTarget  = "streamingRTD.dat"
	DefaultEnvFile       = ".env"

	// ExperimentIDVariable names the environment variable holding the
	// experiment id when none is given.
	ExperimentIDVariable = "EXPID"
)

// Config is the set of recognized options.
type Config struct {
	Port                      int
	ExpectedSourceCount       int
	ExperimentID              string
	ComponentName             string
	OutputTarget              string
	MultiplexedSingleUpstream bool
	TransportMode             admission.Transport
	Verbose                   bool

	AdmissionTimeout time.Duration
	HandshakeTimeout time.Duration
	SaturationPolicy admission.Policy

	// MonitorPort is the port of the HTTP monitor. Zero turns it off.
	MonitorPort int

	// RecordPath is the SQLite file admissions are recorded in. Empty
	// turns recording off.
	RecordPath string

	// EnvFile is read for the experiment id when the environment has none.
	EnvFile string
}

// Default returns the options with their default values. The experiment id
// has no default.
func Default() Config {
	return Config{
		Port:                DefaultPort,
		ExpectedSourceCount: 1,
		ComponentName:       DefaultComponentName,
		OutputTarget:        DefaultOutputTarget,
		TransportMode:       admission.TransportTCP,
		AdmissionTimeout:    10 * time.Minute,
		HandshakeTimeout:    3 * time.Second,
		SaturationPolicy:    admission.PolicyReject,
		EnvFile:             DefaultEnvFile,
	}
}

// Resolve applies the fallbacks and then validates. A port out of range is
// replaced by the default with a notice. A missing experiment id is looked
// up with lookup.
func (c *Config) Resolve(lookup Lookup, notices io.Writer) error {
	if c.Port < MinPort || c.Port > MaxPort {
		fmt.Fprintf(notices,
			"port %d is outside %d..%d, using %d\n",
			c.Port, MinPort, MaxPort, DefaultPort)

		c.Port = DefaultPort
	}

	if c.ExperimentID == "" && lookup != nil {
		if v, ok := lookup(ExperimentIDVariable); ok {
			c.ExperimentID = v
		}
	}

	return c.Validate()
}

// Validate returns a *Error describing the first fatal problem.
func (c Config) Validate() error {
	if c.ExpectedSourceCount < MinSources || c.ExpectedSourceCount > MaxSources {
		return &Error{
			Option: "expected source count",
			Value:  c.ExpectedSourceCount,
			Reason: fmt.Sprintf("must be in %d..%d", MinSources, MaxSources),
		}
	}

	if c.ExperimentID == "" {
		return &Error{
			Option: "experiment id",
			Value:  "",
			Reason: "is required, give it or set " + ExperimentIDVariable,
		}
	}

	if c.Port < MinPort || c.Port > MaxPort {
		return &Error{
			Option: "port",
			Value:  c.Port,
			Reason: fmt.Sprintf("must be in %d..%d", MinPort, MaxPort),
		}
	}

	if err := naming.Validate(c.ComponentName); err != nil {
		return &Error{Option: "component name", Value: c.ComponentName, Reason: err.Error()}
	}

	if c.OutputTarget == "" {
		return &Error{Option: "output target", Value: "", Reason: "must not be empty"}
	}

	if c.AdmissionTimeout < 0 || c.HandshakeTimeout < 0 {
		return &Error{Option: "timeout", Value: c.AdmissionTimeout, Reason: "must not be negative"}
	}

	if c.MonitorPort < 0 || c.MonitorPort > MaxPort {
		return &Error{
			Option: "monitor port",
			Value:  c.MonitorPort,
			Reason: fmt.Sprintf("must be in 0..%d", MaxPort),
		}
	}

	return nil
}
