package template

import (
	"regexp"
	"strings"
)

// Context — переменные подстановки.
type Context map[string]string

// placeholder — {{name}}, пробелы внутри скобок допускаются.
var placeholder = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Merge возвращает новый Context: c, дополненный значениями extra (extra приоритетнее).
func (c Context) Merge(extra Context) Context {
	out := make(Context, len(c)+len(extra))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// RenderString подставляет переменные в строку.
// Неизвестные переменные заменяются пустой строкой.
func RenderString(s string, ctx Context) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		return ctx[key]
	})
}

// RenderStringMap подставляет переменные в значения map. Ключи не меняются.
func RenderStringMap(m map[string]string, ctx Context) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = RenderString(v, ctx)
	}
	return out
}

// Render рекурсивно подставляет переменные во все строки значения.
// Структура значения сохраняется; скаляры возвращаются без изменений.
func Render(v Value, ctx Context) Value {
	switch x := v.(type) {
	case nil:
		return nil
	case Text:
		return Text(RenderString(string(x), ctx))
	case Sequence:
		out := make(Sequence, len(x))
		for i, item := range x {
			out[i] = Render(item, ctx)
		}
		return out
	case Mapping:
		out := make(Mapping, len(x))
		for k, item := range x {
			out[k] = Render(item, ctx)
		}
		return out
	case Scalar:
		return x
	default:
		return v
	}
}
