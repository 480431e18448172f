// Package transform holds a handful of ready-made TransformFuncs that
// cmd/quiver can select by name, so the CLI has something runnable
// without requiring every caller to write Go. Library callers that embed
// the Processing API are free to ignore this package entirely and supply
// their own types.TransformFunc.
package transform

import (
	"fmt"

	"github.com/quiverio/quiver/pkg/types"
)

// Identity returns the stream unchanged.
func Identity(stream *types.Stream, _ *types.StationXML) (*types.Stream, error) {
	return stream, nil
}

// Gain scales every sample in every trace by factor.
func Gain(factor float64) types.TransformFunc {
	return func(stream *types.Stream, _ *types.StationXML) (*types.Stream, error) {
		out := &types.Stream{Station: stream.Station, Traces: make([]types.Trace, len(stream.Traces))}
		for i, tr := range stream.Traces {
			samples := make([]float32, len(tr.Samples))
			for j, s := range tr.Samples {
				samples[j] = float32(float64(s) * factor)
			}
			out.Traces[i] = tr
			out.Traces[i].Samples = samples
		}
		return out, nil
	}
}

// Demean subtracts each trace's own mean from every sample.
func Demean(stream *types.Stream, _ *types.StationXML) (*types.Stream, error) {
	out := &types.Stream{Station: stream.Station, Traces: make([]types.Trace, len(stream.Traces))}
	for i, tr := range stream.Traces {
		var sum float64
		for _, s := range tr.Samples {
			sum += float64(s)
		}
		samples := make([]float32, len(tr.Samples))
		if len(tr.Samples) > 0 {
			mean := sum / float64(len(tr.Samples))
			for j, s := range tr.Samples {
				samples[j] = float32(float64(s) - mean)
			}
		}
		out.Traces[i] = tr
		out.Traces[i].Samples = samples
	}
	return out, nil
}

// Lookup resolves a transform by name for the CLI's --transform flag.
func Lookup(name string) (types.TransformFunc, error) {
	switch name {
	case "identity", "":
		return Identity, nil
	case "demean":
		return Demean, nil
	case "gain2x":
		return Gain(2.0), nil
	default:
		return nil, fmt.Errorf("transform: unknown transform %q", name)
	}
}
