// Пакет template — шаблонные значения webhook и подстановка переменных {{name}}.
//
// Value — закрытый вариант из четырёх типов: Text, Sequence, Mapping, Scalar.
// Значения строятся из JSON-структур (FromAny) и обратно сериализуются (Any).
package template

import (
	"encoding/json"
	"fmt"
)

// Value — узел шаблонного значения.
type Value interface {
	// Any возвращает значение в виде структуры, пригодной для encoding/json.
	Any() any
	isValue()
}

// Text — строка, в которой подставляются переменные.
type Text string

// Sequence — упорядоченный список значений.
type Sequence []Value

// Mapping — словарь значений; ключи не подставляются.
type Mapping map[string]Value

// Scalar — число, булево значение или null; возвращается без изменений.
type Scalar struct {
	v any
}

// NewScalar создаёт Scalar. Допустимы nil, bool, float64, json.Number и целые числа.
func NewScalar(v any) Scalar {
	return Scalar{v: v}
}

func (Text) isValue()     {}
func (Sequence) isValue() {}
func (Mapping) isValue()  {}
func (Scalar) isValue()   {}

// Any возвращает строку.
func (t Text) Any() any { return string(t) }

// Any возвращает []any.
func (s Sequence) Any() any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = anyOf(v)
	}
	return out
}

// Any возвращает map[string]any.
func (m Mapping) Any() any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = anyOf(v)
	}
	return out
}

// Any возвращает исходное скалярное значение.
func (s Scalar) Any() any { return s.v }

func anyOf(v Value) any {
	if v == nil {
		return nil
	}
	return v.Any()
}

// FromAny строит Value из результата json.Unmarshal (или эквивалентной структуры).
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Scalar{}, nil
	case Value:
		return x, nil
	case string:
		return Text(x), nil
	case bool, float64, float32, int, int32, int64, json.Number:
		return Scalar{v: x}, nil
	case []any:
		seq := make(Sequence, len(x))
		for i, item := range x {
			child, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("элемент [%d]: %w", i, err)
			}
			seq[i] = child
		}
		return seq, nil
	case []string:
		seq := make(Sequence, len(x))
		for i, item := range x {
			seq[i] = Text(item)
		}
		return seq, nil
	case map[string]any:
		m := make(Mapping, len(x))
		for k, item := range x {
			child, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("ключ %q: %w", k, err)
			}
			m[k] = child
		}
		return m, nil
	case map[string]string:
		m := make(Mapping, len(x))
		for k, item := range x {
			m[k] = Text(item)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("неподдерживаемый тип значения %T", v)
	}
}

// Decode разбирает JSON в Value. Пустой ввод даёт nil.
func Decode(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("разбор JSON шаблона: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return FromAny(raw)
}

// Encode сериализует Value в JSON. nil даёт nil.
func Encode(v Value) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v.Any())
}
