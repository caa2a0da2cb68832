// tensor.go - Tensor-Grundstruktur und Konstruktoren
//
// Hauptfunktionen:
// - Tensor: dichter float32-Tensor mit beliebigem Rang
// - FromFloats/Zeros/Full: Tensoren aus Go-Slices bzw. Konstanten erstellen
// - Floats/At/Set: Zugriff auf Tensor-Daten
//
// Alle Operationen sind eager und rein (bis auf SetSlice, siehe ops_shape.go).
// Shape-Verletzungen sind Programmierfehler und fuehren zu panic.
package ml

import (
	"fmt"
	"slices"
)

// Tensor is a dense float32 tensor of arbitrary rank. The zero value is not
// usable; construct tensors through FromFloats, Zeros or Full.
type Tensor struct {
	shape []int
	data  []float32
}

// newTensor allokiert einen Tensor mit Nullwerten
func newTensor(shape []int) *Tensor {
	return &Tensor{
		shape: slices.Clone(shape),
		data:  make([]float32, numElements(shape)),
	}
}

// numElements berechnet die Gesamtzahl der Elemente einer Shape
func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("ml: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

// contiguousStrides liefert Row-Major-Strides fuer eine Shape
func contiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= shape[d]
	}
	return strides
}

// FromFloats creates a tensor from a float32 slice. The data is copied.
func FromFloats(s []float32, shape ...int) *Tensor {
	if len(s) != numElements(shape) {
		panic(fmt.Sprintf("ml: data length %d does not match shape %v", len(s), shape))
	}
	return &Tensor{shape: slices.Clone(shape), data: slices.Clone(s)}
}

// Zeros creates a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	return newTensor(shape)
}

// ZerosLike creates a zero-filled tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return newTensor(t.shape)
}

// Full creates a tensor filled with the value v.
func Full(v float32, shape ...int) *Tensor {
	t := newTensor(shape)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// Dim returns the size of dimension n.
func (t *Tensor) Dim(n int) int {
	return t.shape[n]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Floats returns a copy of the tensor data in row-major order.
func (t *Tensor) Floats() []float32 {
	return slices.Clone(t.data)
}

// offsetOf berechnet den linearen Offset eines Multi-Index
func (t *Tensor) offsetOf(idx ...int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("ml: index rank %d does not match tensor rank %d", len(idx), len(t.shape)))
	}
	offset := 0
	for d, i := range idx {
		if i < 0 || i >= t.shape[d] {
			panic(fmt.Sprintf("ml: index %v out of range for shape %v", idx, t.shape))
		}
		offset = offset*t.shape[d] + i
	}
	return offset
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.offsetOf(idx...)]
}

// Set stores v at the given multi-index.
func (t *Tensor) Set(v float32, idx ...int) {
	t.data[t.offsetOf(idx...)] = v
}

// CopyFrom overwrites the tensor data with the data of src. Both tensors
// must have identical shapes.
func (t *Tensor) CopyFrom(src *Tensor) {
	if !sameShape(t.shape, src.shape) {
		panic(fmt.Sprintf("ml: cannot copy %v into %v", src.shape, t.shape))
	}
	copy(t.data, src.data)
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// String liefert eine kompakte Debug-Darstellung
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}

// sameShape prueft exakte Shape-Gleichheit
func sameShape(a, b []int) bool {
	return slices.Equal(a, b)
}
