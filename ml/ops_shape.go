// ops_shape.go - Shape-Operationen
//
// Enthaelt:
// - Reshape/ExpandDims/Squeeze: Umformen ohne Datenkopie
// - Concat/Chunk/Slice: Zusammenfuegen und Aufteilen entlang einer Achse
// - Repeat: Kacheln entlang einer Achse
// - SetSlice: Block-Schreibzugriff mit dynamischem Offset
//
// Reshape und Varianten teilen den Datenpuffer (Views); SetSlice ist die
// einzige mutierende Operation und wird nur auf frisch allokierte Puffer
// angewendet.
package ml

import (
	"fmt"
	"slices"
)

// Reshape returns a view of t with a new shape. The element count must be
// preserved; the underlying data is shared, not copied.
func Reshape(t *Tensor, shape ...int) *Tensor {
	if numElements(shape) != len(t.data) {
		panic(fmt.Sprintf("ml: cannot reshape %v to %v", t.shape, shape))
	}
	return &Tensor{shape: slices.Clone(shape), data: t.data}
}

// ExpandDims inserts a size-1 dimension at the given axis.
func ExpandDims(t *Tensor, axis int) *Tensor {
	if axis < 0 || axis > t.Rank() {
		panic(fmt.Sprintf("ml: expand axis %d out of range for rank %d", axis, t.Rank()))
	}
	shape := slices.Insert(t.Shape(), axis, 1)
	return &Tensor{shape: shape, data: t.data}
}

// Squeeze removes a size-1 dimension at the given axis.
func Squeeze(t *Tensor, axis int) *Tensor {
	if axis < 0 || axis >= t.Rank() || t.shape[axis] != 1 {
		panic(fmt.Sprintf("ml: cannot squeeze axis %d of shape %v", axis, t.shape))
	}
	shape := slices.Delete(t.Shape(), axis, axis+1)
	return &Tensor{shape: shape, data: t.data}
}

// Concat concatenates tensors along the given dimension. All other
// dimensions must match.
func Concat(dim int, ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("ml: concat requires at least one tensor")
	}
	first := ts[0]
	total := 0
	for _, t := range ts {
		if t.Rank() != first.Rank() {
			panic(fmt.Sprintf("ml: concat rank mismatch: %v vs %v", first.shape, t.shape))
		}
		for d := range t.shape {
			if d != dim && t.shape[d] != first.shape[d] {
				panic(fmt.Sprintf("ml: concat shape mismatch on dim %d: %v vs %v", d, first.shape, t.shape))
			}
		}
		total += t.shape[dim]
	}

	shape := first.Shape()
	shape[dim] = total
	out := newTensor(shape)

	outer := numElements(shape[:dim])
	innerOut := numElements(shape[dim:])
	pos := 0
	for _, t := range ts {
		inner := numElements(t.shape[dim:])
		for o := 0; o < outer; o++ {
			copy(out.data[o*innerOut+pos:], t.data[o*inner:(o+1)*inner])
		}
		pos += inner
	}
	return out
}

// Slice returns a copy of t narrowed to [lo, hi) along the given dimension.
func Slice(t *Tensor, dim, lo, hi int) *Tensor {
	if lo < 0 || hi > t.shape[dim] || lo > hi {
		panic(fmt.Sprintf("ml: slice [%d:%d] out of range for dim %d of shape %v", lo, hi, dim, t.shape))
	}
	shape := t.Shape()
	shape[dim] = hi - lo
	out := newTensor(shape)

	outer := numElements(t.shape[:dim])
	tail := numElements(t.shape[dim+1:])
	innerSrc := t.shape[dim] * tail
	innerDst := (hi - lo) * tail
	for o := 0; o < outer; o++ {
		copy(out.data[o*innerDst:(o+1)*innerDst], t.data[o*innerSrc+lo*tail:o*innerSrc+hi*tail])
	}
	return out
}

// Chunk splits t into n equal parts along the given dimension.
func Chunk(t *Tensor, dim, n int) []*Tensor {
	if t.shape[dim]%n != 0 {
		panic(fmt.Sprintf("ml: cannot chunk dim %d of shape %v into %d parts", dim, t.shape, n))
	}
	size := t.shape[dim] / n
	out := make([]*Tensor, n)
	for i := range out {
		out[i] = Slice(t, dim, i*size, (i+1)*size)
	}
	return out
}

// Repeat tiles the tensor n times along the given dimension.
func Repeat(t *Tensor, dim, n int) *Tensor {
	if n < 1 {
		panic(fmt.Sprintf("ml: repeat count %d must be positive", n))
	}
	parts := make([]*Tensor, n)
	for i := range parts {
		parts[i] = t
	}
	return Concat(dim, parts...)
}

// SetSlice writes src into dst starting at offset along the given
// dimension. All other dimensions must match. dst is mutated in place;
// this is the dynamic-offset block write used to overlay target
// embeddings into a padded buffer.
func SetSlice(dst, src *Tensor, dim, offset int) {
	if dst.Rank() != src.Rank() {
		panic(fmt.Sprintf("ml: setslice rank mismatch: %v vs %v", dst.shape, src.shape))
	}
	for d := range dst.shape {
		if d != dim && dst.shape[d] != src.shape[d] {
			panic(fmt.Sprintf("ml: setslice shape mismatch on dim %d: %v vs %v", d, dst.shape, src.shape))
		}
	}
	if offset < 0 || offset+src.shape[dim] > dst.shape[dim] {
		panic(fmt.Sprintf("ml: setslice offset %d with size %d out of range for dim %d of shape %v",
			offset, src.shape[dim], dim, dst.shape))
	}

	outer := numElements(dst.shape[:dim])
	tail := numElements(dst.shape[dim+1:])
	innerDst := dst.shape[dim] * tail
	innerSrc := src.shape[dim] * tail
	for o := 0; o < outer; o++ {
		copy(dst.data[o*innerDst+offset*tail:], src.data[o*innerSrc:(o+1)*innerSrc])
	}
}
