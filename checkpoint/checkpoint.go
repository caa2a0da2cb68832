// checkpoint.go - Gewichte im Safetensors-Format lesen und schreiben
//
// Eine Datei besteht aus einer 8-Byte-Headerlaenge (little-endian), einem
// JSON-Header (Name -> dtype, shape, data_offsets) und den rohen
// Tensordaten. Unterstuetzte Datentypen: F32, F16, BF16. Gespeichert wird
// mit deterministischer Tensor-Reihenfolge (sortierte Namen), damit
// identische Gewichte identische Dateien ergeben.
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/embedr/embedr/ml"
)

// Supported data types.
const (
	DTypeF32  = "F32"
	DTypeF16  = "F16"
	DTypeBF16 = "BF16"
)

// tensorInfo ist der Header-Eintrag eines Tensors
type tensorInfo struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// dtypeSize liefert die Byte-Breite eines Elements
func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case DTypeF32:
		return 4, nil
	case DTypeF16, DTypeBF16:
		return 2, nil
	default:
		return 0, fmt.Errorf("checkpoint: unsupported dtype %q", dtype)
	}
}

// Save writes the named tensors to path in the given data type.
func Save(path string, tensors map[string]*ml.Tensor, dtype string) error {
	size, err := dtypeSize(dtype)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]tensorInfo, len(names))
	var data []byte
	for _, name := range names {
		t := tensors[name]
		start := len(data)
		data = append(data, encodeFloats(t.Floats(), dtype)...)
		header[name] = tensorInfo{
			Dtype:       dtype,
			Shape:       t.Shape(),
			DataOffsets: [2]int{start, start + t.Len()*size},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	out := make([]byte, 0, 8+len(headerJSON)+len(data))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, data...)
	return os.WriteFile(path, out, 0o644)
}

// Load reads all tensors from path, converted to float32.
func Load(path string) (map[string]*ml.Tensor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("checkpoint: file too small: %d bytes", len(raw))
	}

	headerLen := binary.LittleEndian.Uint64(raw[:8])
	if int(headerLen)+8 > len(raw) {
		return nil, fmt.Errorf("checkpoint: header length %d exceeds file size %d", headerLen, len(raw))
	}

	// __metadata__ ist erlaubt, aber kein Tensor
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerLen], &entries); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	data := raw[8+headerLen:]

	tensors := make(map[string]*ml.Tensor, len(entries))
	for name, entry := range entries {
		if name == "__metadata__" {
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(entry, &info); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}

		size, err := dtypeSize(info.Dtype)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		numel := 1
		for _, d := range info.Shape {
			numel *= d
		}
		lo, hi := info.DataOffsets[0], info.DataOffsets[1]
		if lo < 0 || hi > len(data) || hi-lo != numel*size {
			return nil, fmt.Errorf("checkpoint: tensor %s has inconsistent offsets [%d, %d] for shape %v", name, lo, hi, info.Shape)
		}

		tensors[name] = ml.FromFloats(decodeFloats(data[lo:hi], info.Dtype, numel), info.Shape...)
	}
	return tensors, nil
}

// LoadInto reads a checkpoint and copies every tensor into the matching
// destination tensor. Missing or surplus names and shape mismatches are
// errors: a checkpoint either fits the model completely or not at all.
func LoadInto(path string, dst map[string]*ml.Tensor) error {
	src, err := Load(path)
	if err != nil {
		return err
	}

	for name, t := range dst {
		loaded, ok := src[name]
		if !ok {
			return fmt.Errorf("checkpoint: tensor %q missing in %s", name, path)
		}
		if !slices.Equal(loaded.Shape(), t.Shape()) {
			return fmt.Errorf("checkpoint: tensor %q has shape %v, model expects %v", name, loaded.Shape(), t.Shape())
		}
		t.CopyFrom(loaded)
	}
	for name := range src {
		if _, ok := dst[name]; !ok {
			return fmt.Errorf("checkpoint: unexpected tensor %q in %s", name, path)
		}
	}
	return nil
}

// encodeFloats serialisiert float32-Werte little-endian im Ziel-Datentyp
func encodeFloats(fs []float32, dtype string) []byte {
	switch dtype {
	case DTypeF32:
		out := make([]byte, 0, len(fs)*4)
		for _, f := range fs {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
		return out
	case DTypeF16:
		out := make([]byte, 0, len(fs)*2)
		for _, f := range fs {
			out = binary.LittleEndian.AppendUint16(out, float16.Fromfloat32(f).Bits())
		}
		return out
	case DTypeBF16:
		return bfloat16.EncodeFloat32(fs)
	default:
		panic("checkpoint: unsupported dtype " + dtype)
	}
}

// decodeFloats liest numel Werte des Datentyps als float32
func decodeFloats(raw []byte, dtype string, numel int) []float32 {
	switch dtype {
	case DTypeF32:
		out := make([]float32, numel)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out
	case DTypeF16:
		out := make([]float32, numel)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out
	case DTypeBF16:
		return bfloat16.DecodeFloat32(raw)
	default:
		panic("checkpoint: unsupported dtype " + dtype)
	}
}
