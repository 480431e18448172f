package scheduler

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/quiverio/quiver/pkg/types"
)

var wireHandle = &codec.MsgpackHandle{}

// wireItem is the MASTER_SENDS_ITEM payload: a tagged union between a job
// assignment and the poison-pill sentinel.
type wireItem struct {
	Pill     bool
	Station  string
	InputTag string
}

func encodeItem(job *types.Job) ([]byte, error) {
	var w wireItem
	if job == nil {
		w.Pill = true
	} else {
		w.Station = job.Station
		w.InputTag = job.InputTag
	}
	return encode(w)
}

func decodeItem(raw []byte) (types.JobArgs, bool, error) {
	var w wireItem
	if err := decode(raw, &w); err != nil {
		return types.JobArgs{}, false, err
	}
	return types.JobArgs{Station: w.Station, InputTag: w.InputTag}, w.Pill, nil
}

// wireResult is the WORKER_DONE_WITH_ITEM payload.
type wireResult struct {
	Station     string
	InputTag    string
	OutputTag   string
	TraceCount  int
	ByteCount   int64
	OutputPaths []string
	Skipped     bool
}

func encodeResult(args types.JobArgs, result *types.JobResult) ([]byte, error) {
	w := wireResult{Station: args.Station, InputTag: args.InputTag}
	if result != nil {
		w.OutputTag = result.OutputTag
		w.TraceCount = result.TraceCount
		w.ByteCount = result.ByteCount
		w.OutputPaths = result.OutputPaths
		w.Skipped = result.Skipped
	}
	return encode(w)
}

func decodeResult(raw []byte) (types.JobArgs, *types.JobResult, error) {
	var w wireResult
	if err := decode(raw, &w); err != nil {
		return types.JobArgs{}, nil, err
	}
	args := types.JobArgs{Station: w.Station, InputTag: w.InputTag}
	result := &types.JobResult{
		OutputTag:   w.OutputTag,
		TraceCount:  w.TraceCount,
		ByteCount:   w.ByteCount,
		OutputPaths: w.OutputPaths,
		Skipped:     w.Skipped,
	}
	return args, result, nil
}

// wireIntent mirrors types.WriteIntent for the wire, since WriteIntent's
// Attrs map needs no special treatment but codec requires a concrete,
// exported-field struct to encode reliably across versions.
type wireIntent struct {
	ID        string
	GroupPath string
	Dataset   string
	Shape     []int
	ElemType  string
	Codec     string
	Level     int
	Checksums bool
	Attrs     map[string]string
}

func encodeIntents(intents []types.WriteIntent) ([]byte, error) {
	wis := make([]wireIntent, len(intents))
	for i, in := range intents {
		wis[i] = wireIntent{
			ID:        in.ID,
			GroupPath: in.GroupPath,
			Dataset:   in.Dataset,
			Shape:     in.Shape,
			ElemType:  in.ElemType,
			Codec:     string(in.Compression.Codec),
			Level:     in.Compression.Level,
			Checksums: in.Compression.Checksums,
			Attrs:     in.Attrs,
		}
	}
	return encode(wis)
}

func decodeIntents(raw []byte) ([]types.WriteIntent, error) {
	var wis []wireIntent
	if err := decode(raw, &wis); err != nil {
		return nil, err
	}
	out := make([]types.WriteIntent, len(wis))
	for i, w := range wis {
		out[i] = types.WriteIntent{
			ID:        w.ID,
			GroupPath: w.GroupPath,
			Dataset:   w.Dataset,
			Shape:     w.Shape,
			ElemType:  w.ElemType,
			Compression: types.CompressionPolicy{
				Codec:     types.CompressionCodec(w.Codec),
				Level:     w.Level,
				Checksums: w.Checksums,
			},
			Attrs: w.Attrs,
		}
	}
	return out, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, wireHandle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("scheduler: encode: %w", err)
	}
	return buf, nil
}

func decode(raw []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(raw, wireHandle)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("scheduler: decode: %w", err)
	}
	return nil
}
