// Package probes models the probe annotation manifest of an Illumina
// methylation array: probe chemistry types, color channels, and the
// per-design probe set the normalization pipeline operates on.
package probes

import (
	"fmt"
)

// ProbeType is the Infinium chemistry design of a probe. Type I probes use
// two bead addresses read on one color channel; type II probes use a single
// address read on both channels.
type ProbeType string

const (
	TypeI     ProbeType = "I"
	TypeII    ProbeType = "II"
	TypeSnpI  ProbeType = "SnpI"
	TypeSnpII ProbeType = "SnpII"
	Control   ProbeType = "Control"
)

var probeTypes = []ProbeType{TypeI, TypeII, TypeSnpI, TypeSnpII, Control}

// ParseProbeType maps a manifest Infinium_Design_Type value onto a
// ProbeType.
func ParseProbeType(value string) (ProbeType, error) {
	for _, t := range probeTypes {
		if value == string(t) {
			return t, nil
		}
	}

	return "", fmt.Errorf("probe type %q is not a valid ProbeType", value)
}

// Channel is the color channel a type I probe is read on. Type II probes
// carry no channel annotation.
type Channel string

const (
	Red Channel = "Red"
	Grn Channel = "Grn"

	// AnyChannel matches probes regardless of channel annotation.
	AnyChannel Channel = ""
)

// ParseChannel maps a manifest Color_Channel value onto a Channel. The
// empty string is valid and denotes no channel annotation.
func ParseChannel(value string) (Channel, error) {
	switch Channel(value) {
	case Red, Grn, AnyChannel:
		return Channel(value), nil
	}

	return "", fmt.Errorf("channel %q is not a valid Channel", value)
}
