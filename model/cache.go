// cache.go - Embedding-Cache fuer die Inferenz
//
// Haelt pro Inferenz-Session hoechstens ein x-Embedding (gepolsterter
// Kontext, [L, E]) und ein Metadaten-Embedding ([1, E]). Eintraege werden
// genau einmal geschrieben (write-once); eine Population erzeugt einen
// neuen Cache-Wert statt den alten zu mutieren. Invalidierung ist Sache
// des Aufrufers: waechst der Kontext ueber die Kapazitaet oder aendert
// sich x_padded, verwirft der Aufrufer den Cache.
//
// Angelehnt an den Encoder-Cache des Inferenz-Stacks: "wurde etwas
// gespeichert?" ist ein expliziter nil-Check, nie ein impliziter Zustand.
package model

import "github.com/embedr/embedr/ml"

// EmbeddingCache stores embeddings that stay constant across repeated
// Infer calls. A nil field means not yet computed. Concurrent Infer calls
// sharing one cache require external serialization (single writer).
type EmbeddingCache struct {
	XEmb        *ml.Tensor // [L, E], Embedding des gepolsterten Kontexts
	MetadataEmb *ml.Tensor // [1, E], Embedding der Studien-Metadaten
}

// NewEmbeddingCache creates an empty cache for one inference session.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{}
}

// WithXEmb returns a copy of the cache with the context embedding set.
func (c *EmbeddingCache) WithXEmb(t *ml.Tensor) *EmbeddingCache {
	n := *c
	n.XEmb = t
	return &n
}

// WithMetadataEmb returns a copy of the cache with the metadata embedding
// set.
func (c *EmbeddingCache) WithMetadataEmb(t *ml.Tensor) *EmbeddingCache {
	n := *c
	n.MetadataEmb = t
	return &n
}
