// tensor_test.go - Unit Tests fuer Tensor-Grundfunktionen
//
// Testet Konstruktoren, Indexzugriff und Shape-Operationen.
package ml

import (
	"testing"
)

func TestFromFloatsAndAt(t *testing.T) {
	tensor := FromFloats([]float32{1, 2, 3, 4, 5, 6}, 2, 3)

	if tensor.Rank() != 2 || tensor.Dim(0) != 2 || tensor.Dim(1) != 3 {
		t.Fatalf("Shape = %v, erwartet [2 3]", tensor.Shape())
	}
	if got := tensor.At(1, 2); got != 6 {
		t.Errorf("At(1,2) = %f, erwartet 6", got)
	}
	if got := tensor.At(0, 1); got != 2 {
		t.Errorf("At(0,1) = %f, erwartet 2", got)
	}
}

func TestFromFloatsCopiesData(t *testing.T) {
	src := []float32{1, 2, 3}
	tensor := FromFloats(src, 3)
	src[0] = 99

	if tensor.At(0) != 1 {
		t.Errorf("Tensor teilt Daten mit dem Eingabe-Slice")
	}
}

func TestZerosAndFull(t *testing.T) {
	z := Zeros(2, 2)
	for i, v := range z.Floats() {
		if v != 0 {
			t.Errorf("Zeros[%d] = %f, erwartet 0", i, v)
		}
	}

	f := Full(1.5, 3)
	for i, v := range f.Floats() {
		if v != 1.5 {
			t.Errorf("Full[%d] = %f, erwartet 1.5", i, v)
		}
	}
}

func TestReshapeSharesData(t *testing.T) {
	a := FromFloats([]float32{1, 2, 3, 4}, 2, 2)
	b := Reshape(a, 4)

	if b.Rank() != 1 || b.Dim(0) != 4 {
		t.Fatalf("Reshape-Shape = %v, erwartet [4]", b.Shape())
	}
	if b.At(3) != 4 {
		t.Errorf("Reshape At(3) = %f, erwartet 4", b.At(3))
	}
}

func TestReshapeInvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Reshape mit falscher Elementzahl sollte panicken")
		}
	}()
	Reshape(Zeros(2, 2), 3)
}

func TestExpandDimsSqueeze(t *testing.T) {
	a := FromFloats([]float32{1, 2, 3}, 3)

	b := ExpandDims(a, 0)
	if b.Dim(0) != 1 || b.Dim(1) != 3 {
		t.Errorf("ExpandDims-Shape = %v, erwartet [1 3]", b.Shape())
	}

	c := Squeeze(b, 0)
	if c.Rank() != 1 || c.Dim(0) != 3 {
		t.Errorf("Squeeze-Shape = %v, erwartet [3]", c.Shape())
	}
}

func TestAtOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("At mit Index ausserhalb des Bereichs sollte panicken")
		}
	}()
	Zeros(2, 2).At(2, 0)
}
