// ops_matrix.go - Matrix-Operationen
//
// Enthaelt:
// - Matmul: (batched) Matrixmultiplikation ueber gonum BLAS
// - Transpose: allgemeine Achsen-Permutation
//
// Matmul nutzt blas32.Gemm auf zusammenhaengenden Row-Major-Bloecken;
// Batch-Dimensionen werden sequenziell abgearbeitet.
package ml

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matmul multiplies a [..., m, k] with b [..., k, n] producing [..., m, n].
// Leading batch dimensions must match exactly; alternatively b may be a
// plain [k, n] matrix shared across all batches.
func Matmul(a, b *Tensor) *Tensor {
	if a.Rank() < 2 || b.Rank() < 2 {
		panic(fmt.Sprintf("ml: matmul requires rank >= 2, got %v x %v", a.shape, b.shape))
	}

	m, k := a.shape[a.Rank()-2], a.shape[a.Rank()-1]
	k2, n := b.shape[b.Rank()-2], b.shape[b.Rank()-1]
	if k != k2 {
		panic(fmt.Sprintf("ml: matmul inner dimensions do not match: %v x %v", a.shape, b.shape))
	}

	batchShape := a.shape[:a.Rank()-2]
	sharedB := b.Rank() == 2
	if !sharedB && !sameShape(batchShape, b.shape[:b.Rank()-2]) {
		panic(fmt.Sprintf("ml: matmul batch dimensions do not match: %v x %v", a.shape, b.shape))
	}

	out := newTensor(append(append([]int{}, batchShape...), m, n))
	batches := numElements(batchShape)

	for i := 0; i < batches; i++ {
		am := blas32.General{Rows: m, Cols: k, Stride: k, Data: a.data[i*m*k : (i+1)*m*k]}
		bOff := 0
		if !sharedB {
			bOff = i * k * n
		}
		bm := blas32.General{Rows: k, Cols: n, Stride: n, Data: b.data[bOff : bOff+k*n]}
		cm := blas32.General{Rows: m, Cols: n, Stride: n, Data: out.data[i*m*n : (i+1)*m*n]}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, am, bm, 0, cm)
	}
	return out
}

// Transpose permutes the tensor axes according to perm, which must be a
// permutation of [0, rank). The result is a contiguous copy.
func Transpose(t *Tensor, perm ...int) *Tensor {
	if len(perm) != t.Rank() {
		panic(fmt.Sprintf("ml: permutation %v does not match rank %d", perm, t.Rank()))
	}
	seen := make([]bool, t.Rank())
	shape := make([]int, t.Rank())
	for d, p := range perm {
		if p < 0 || p >= t.Rank() || seen[p] {
			panic(fmt.Sprintf("ml: invalid permutation %v for rank %d", perm, t.Rank()))
		}
		seen[p] = true
		shape[d] = t.shape[p]
	}

	out := newTensor(shape)
	srcStrides := contiguousStrides(t.shape)

	// Strides des Quelltensors in der Reihenfolge der Ziel-Achsen
	permStrides := make([]int, len(perm))
	for d, p := range perm {
		permStrides[d] = srcStrides[p]
	}

	idx := make([]int, len(shape))
	src := 0
	for i := range out.data {
		out.data[i] = t.data[src]

		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			src += permStrides[d]
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
			src -= shape[d] * permStrides[d]
		}
	}
	return out
}
