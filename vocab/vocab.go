// vocab.go - Ziffernweise Float-Serialisierung
//
// Metrikwerte werden als feste Token-Folge kodiert: ein Vorzeichen-Token,
// eine feste Anzahl Mantissen-Ziffern und ein Exponenten-Token. Jeder
// Float belegt damit exakt gleich viele Tokens, was die feste Breite T
// pro Aufruf garantiert. Die Registry haelt die Tokens in
// Einfuegereihenfolge; die Ids sind dadurch stabil und reproduzierbar.
package vocab

import (
	"fmt"
	"math"

	"github.com/dlclark/regexp2"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	initialToken = "<f>"
	plusToken    = "<+>"
	minusToken   = "<->"
)

// tokenPattern akzeptiert genau die Token-Texte der Registry
var tokenPattern = regexp2.MustCompile(`^<(f|\+|-|[0-9]|E[+-][0-9]+)>$`, regexp2.None)

// Serializer encodes floats as fixed-length token sequences and decodes
// them back. Values are normalized to d.ddd * 10^e; the exponent is
// limited to [-ExpRange, ExpRange].
type Serializer struct {
	numDigits int
	expRange  int

	registry *orderedmap.OrderedMap[string, int32]
	texts    []string
}

// New creates a serializer with numDigits mantissa digits and exponents
// in [-expRange, expRange].
func New(numDigits, expRange int) (*Serializer, error) {
	if numDigits < 1 {
		return nil, fmt.Errorf("vocab: at least one mantissa digit required, got %d", numDigits)
	}
	if expRange < 1 {
		return nil, fmt.Errorf("vocab: exponent range must be positive, got %d", expRange)
	}

	s := &Serializer{
		numDigits: numDigits,
		expRange:  expRange,
		registry:  orderedmap.New[string, int32](),
	}

	// Reihenfolge ist Teil des Formats: initial, Vorzeichen, Ziffern,
	// Exponenten
	if err := s.register(initialToken); err != nil {
		return nil, err
	}
	for _, t := range []string{plusToken, minusToken} {
		if err := s.register(t); err != nil {
			return nil, err
		}
	}
	for d := range 10 {
		if err := s.register(fmt.Sprintf("<%d>", d)); err != nil {
			return nil, err
		}
	}
	for e := -expRange; e <= expRange; e++ {
		if err := s.register(fmt.Sprintf("<E%+d>", e)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Default returns the serializer used throughout the repo: five mantissa
// digits, exponents in [-10, 10].
func Default() *Serializer {
	s, err := New(5, 10)
	if err != nil {
		panic(err)
	}
	return s
}

// register prueft den Token-Text gegen das Muster und vergibt die
// naechste Id
func (s *Serializer) register(text string) error {
	if ok, _ := tokenPattern.MatchString(text); !ok {
		return fmt.Errorf("vocab: malformed token text %q", text)
	}
	if _, exists := s.registry.Get(text); exists {
		return fmt.Errorf("vocab: duplicate token %q", text)
	}
	s.registry.Set(text, int32(len(s.texts)))
	s.texts = append(s.texts, text)
	return nil
}

// Size returns the number of registered tokens.
func (s *Serializer) Size() int {
	return len(s.texts)
}

// NumTokensPerObj returns the tokens one float occupies: sign, mantissa
// digits, exponent.
func (s *Serializer) NumTokensPerObj() int {
	return 2 + s.numDigits
}

// DecodeLength returns the expected sequence length for one value
// including the leading initial token.
func (s *Serializer) DecodeLength() int {
	return s.NumTokensPerObj() + 1
}

// InitialTokenID returns the id of the sequence-initial token.
func (s *Serializer) InitialTokenID() int32 {
	id, _ := s.registry.Get(initialToken)
	return id
}

// TokenID looks up the id of a token text.
func (s *Serializer) TokenID(text string) (int32, error) {
	id, ok := s.registry.Get(text)
	if !ok {
		return 0, fmt.Errorf("vocab: unknown token %q", text)
	}
	return id, nil
}

// TokenText looks up the text of a token id.
func (s *Serializer) TokenText(id int32) (string, error) {
	if id < 0 || int(id) >= len(s.texts) {
		return "", fmt.Errorf("vocab: token id %d out of range", id)
	}
	return s.texts[id], nil
}

// Tokens returns all token texts in registration order.
func (s *Serializer) Tokens() []string {
	out := make([]string, 0, s.registry.Len())
	for pair := s.registry.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Encode serializes one float into NumTokensPerObj token ids. Values
// whose exponent exceeds the range are an error; underflowing values
// round to zero.
func (s *Serializer) Encode(v float64) ([]int32, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("vocab: cannot encode %v", v)
	}

	sign := plusToken
	if math.Signbit(v) {
		sign = minusToken
	}
	abs := math.Abs(v)

	digits := make([]int, s.numDigits)
	exp := 0
	if abs > 0 {
		exp = int(math.Floor(math.Log10(abs)))
		// Mantisse auf numDigits Stellen runden; ein Uebertrag schiebt
		// den Exponenten
		scaled := math.Round(abs * math.Pow(10, float64(s.numDigits-1-exp)))
		if scaled >= math.Pow(10, float64(s.numDigits)) {
			scaled = math.Round(scaled / 10)
			exp++
		}
		if exp > s.expRange {
			return nil, fmt.Errorf("vocab: value %g exceeds exponent range %d", v, s.expRange)
		}
		if exp < -s.expRange {
			// Unterlauf: als Null kodieren
			exp = 0
		} else {
			n := int64(scaled)
			for i := s.numDigits - 1; i >= 0; i-- {
				digits[i] = int(n % 10)
				n /= 10
			}
		}
	}

	ids := make([]int32, 0, s.NumTokensPerObj())
	signID, _ := s.registry.Get(sign)
	ids = append(ids, signID)
	for _, d := range digits {
		id, _ := s.registry.Get(fmt.Sprintf("<%d>", d))
		ids = append(ids, id)
	}
	expID, _ := s.registry.Get(fmt.Sprintf("<E%+d>", exp))
	return append(ids, expID), nil
}

// Decode reverses Encode. A leading initial token is accepted and
// skipped, so both NumTokensPerObj and DecodeLength sequences parse.
func (s *Serializer) Decode(ids []int32) (float64, error) {
	if len(ids) == s.DecodeLength() && ids[0] == s.InitialTokenID() {
		ids = ids[1:]
	}
	if len(ids) != s.NumTokensPerObj() {
		return 0, fmt.Errorf("vocab: expected %d tokens, got %d", s.NumTokensPerObj(), len(ids))
	}

	sign := 1.0
	switch text, err := s.TokenText(ids[0]); {
	case err != nil:
		return 0, err
	case text == minusToken:
		sign = -1
	case text != plusToken:
		return 0, fmt.Errorf("vocab: expected sign token, got %q", text)
	}

	mantissa := int64(0)
	for _, id := range ids[1 : 1+s.numDigits] {
		text, err := s.TokenText(id)
		if err != nil {
			return 0, err
		}
		kind, err := classify(text)
		if err != nil || len(kind) != 1 || kind[0] < '0' || kind[0] > '9' {
			return 0, fmt.Errorf("vocab: expected digit token, got %q", text)
		}
		mantissa = mantissa*10 + int64(kind[0]-'0')
	}

	text, err := s.TokenText(ids[len(ids)-1])
	if err != nil {
		return 0, err
	}
	kind, err := classify(text)
	if err != nil || len(kind) < 2 || kind[0] != 'E' {
		return 0, fmt.Errorf("vocab: expected exponent token, got %q", text)
	}
	exp := 0
	if _, err := fmt.Sscanf(kind, "E%d", &exp); err != nil {
		return 0, fmt.Errorf("vocab: malformed exponent token %q", text)
	}

	return sign * float64(mantissa) * math.Pow(10, float64(exp-s.numDigits+1)), nil
}

// EncodeVector serializes a value sequence: the initial token followed by
// the tokens of every value. All vectors of equal length share one token
// width.
func (s *Serializer) EncodeVector(values []float64) ([]int32, error) {
	ids := make([]int32, 0, 1+len(values)*s.NumTokensPerObj())
	ids = append(ids, s.InitialTokenID())
	for i, v := range values {
		enc, err := s.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		ids = append(ids, enc...)
	}
	return ids, nil
}

// classify extrahiert den Kern eines Token-Texts ueber das Muster
func classify(text string) (string, error) {
	m, err := tokenPattern.FindStringMatch(text)
	if err != nil || m == nil {
		return "", fmt.Errorf("vocab: malformed token text %q", text)
	}
	return m.GroupByNumber(1).String(), nil
}
