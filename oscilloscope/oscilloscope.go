// Package oscilloscope provides type and interface definitions for oscilloscopes
package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Scope is the setting surface every oscilloscope driver implements.
//
// Each setter writes the request to the instrument and reads it back.  The
// boolean is true when the instrument agreed.  False means the instrument
// holds a different value (it clamped the request, or someone turned a knob)
// and the driver has adopted the instrument's value.  Errors are reserved for
// bad arguments and transport faults.
type Scope interface {
	// SetReadChannels selects the sources a waveform read returns, in order
	SetReadChannels(sources ...string) (bool, error)

	// SetTriggerChannel selects the trigger source
	SetTriggerChannel(source string) (bool, error)

	// SetTriggerLevel sets the trigger level in volts
	SetTriggerLevel(volts float64) (bool, error)

	// SetVerticalScale sets a channel's scale in volts per division
	SetVerticalScale(channel string, voltsPerDiv float64) (bool, error)

	// SetHorizontalScale sets the timebase in seconds per division
	SetHorizontalScale(secondsPerDiv float64) (bool, error)

	// SetVerticalPosition sets a channel's position in divisions
	SetVerticalPosition(channel string, divisions float64) (bool, error)

	// SetAcquireMode sets the acquisition mode, e.g. sample or average
	SetAcquireMode(mode string) (bool, error)

	// SetReadLength sets how many points a waveform read returns
	SetReadLength(points int) (bool, error)
}

// Waveform describes a waveform recording from a scope
type Waveform struct {
	// DT is the temporal sample spacing in seconds
	DT float64 `json:"dt"`

	// Channels holds named data streams
	Channels map[string]Channel `json:"channels"`
}

// Channel represents a stream of data from an ADC.  To convert to physical units,
// compute (data-reference)*scale + offset
type Channel struct {
	// Data is the actual buffer, []int8, []int16, or similar
	Data Data `json:"data"`

	// Scale is the size of a single increment in Data's native dtype
	Scale float64 `json:"scale"`

	// Offset is the physical value at Reference
	Offset float64 `json:"offset"`

	// Reference is the reference value for the given channel in DN
	Reference float64 `json:"reference"`
}

// Data is a moniker for an empty interface, expected to be a slice of a concrete
// numerical type
type Data interface{}

// Len returns the number of samples in d, or -1 if d is not numerical
func Len(d Data) int {
	switch v := d.(type) {
	case []int8:
		return len(v)
	case []int16:
		return len(v)
	case []uint8:
		return len(v)
	case []uint16:
		return len(v)
	case []int:
		return len(v)
	case []float64:
		return len(v)
	default:
		return -1
	}
}

// Physical computes the data scaled to real units
func (c Channel) Physical() []float64 {
	conv := func(dn float64) float64 { return (dn-c.Reference)*c.Scale + c.Offset }
	switch v := c.Data.(type) {
	case []int8:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = conv(float64(v[i]))
		}
		return ret
	case []int16:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = conv(float64(v[i]))
		}
		return ret
	case []uint8:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = conv(float64(v[i]))
		}
		return ret
	case []uint16:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = conv(float64(v[i]))
		}
		return ret
	case []int:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = conv(float64(v[i]))
		}
		return ret
	case []float64:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = conv(v[i])
		}
		return ret
	default:
		panic("attempt to convert non numerical data to physical units")
	}
}

// Labels returns the channel names in sorted order
func (wav *Waveform) Labels() []string {
	labels := make([]string, 0, len(wav.Channels))
	for k := range wav.Channels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

// EncodeCSV converts the waveform data to physical units
// and writes it to a CSV in streaming fashion.  The first column is time,
// channels follow in name order.  Channels shorter than the longest leave
// their cells empty.
func (wav *Waveform) EncodeCSV(w io.Writer) error {
	labels := wav.Labels()
	data := make([][]float64, len(labels))
	rows := 0
	for j, l := range labels {
		data[j] = wav.Channels[l].Physical()
		if len(data[j]) > rows {
			rows = len(data[j])
		}
	}

	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	record := append([]string{"time"}, labels...)
	if err := writer.Write(record); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		record[0] = strconv.FormatFloat(float64(i)*wav.DT, 'G', -1, 64)
		for j := range data {
			if i < len(data[j]) {
				record[j+1] = strconv.FormatFloat(data[j][i], 'G', -1, 64)
			} else {
				record[j+1] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("oscilloscope: csv: %w", err)
	}
	return bw.Flush()
}
