package template

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRenderString(t *testing.T) {
	ctx := Context{"service": "grafana", "ip_address": "10.0.0.5", "empty": ""}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"без переменных", "plain text", "plain text"},
		{"одна переменная", "svc={{service}}", "svc=grafana"},
		{"несколько переменных", "{{ip_address}} -> {{service}}", "10.0.0.5 -> grafana"},
		{"пробелы в скобках", "{{ service }}", "grafana"},
		{"неизвестная переменная", "x={{unknown}}!", "x=!"},
		{"пустое значение", "[{{empty}}]", "[]"},
		{"незакрытые скобки", "{{service", "{{service"},
		{"повтор", "{{service}}{{service}}", "grafanagrafana"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderString(tt.in, ctx); got != tt.want {
				t.Errorf("RenderString(%q) = %q, ожидается %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRender_PreservesShape(t *testing.T) {
	in := Mapping{
		"text":  Text("Hello {{name}}"),
		"count": NewScalar(float64(3)),
		"flag":  NewScalar(true),
		"null":  NewScalar(nil),
		"list": Sequence{
			Text("{{name}}"),
			NewScalar(float64(1)),
			Mapping{"{{name}}": Text("{{missing}}")},
		},
	}

	got := Render(in, Context{"name": "Bob"})

	want := Mapping{
		"text":  Text("Hello Bob"),
		"count": NewScalar(float64(3)),
		"flag":  NewScalar(true),
		"null":  NewScalar(nil),
		"list": Sequence{
			Text("Bob"),
			NewScalar(float64(1)),
			Mapping{"{{name}}": Text("")},
		},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Render() = %#v, ожидается %#v", got, want)
	}
}

func TestRender_EmptyContextOnlyBlanksPlaceholders(t *testing.T) {
	in := Sequence{Text("a{{x}}b"), Text("static"), NewScalar(float64(7))}
	got := Render(in, nil)
	want := Sequence{Text("ab"), Text("static"), NewScalar(float64(7))}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Render() = %#v, ожидается %#v", got, want)
	}
}

func TestRender_Nil(t *testing.T) {
	if got := Render(nil, Context{"a": "b"}); got != nil {
		t.Errorf("Render(nil) = %#v, ожидается nil", got)
	}
}

func TestRenderStringMap(t *testing.T) {
	got := RenderStringMap(map[string]string{"X-Service": "{{service}}"}, Context{"service": "wiki"})
	if got["X-Service"] != "wiki" {
		t.Errorf("X-Service = %q, ожидается wiki", got["X-Service"])
	}
	if RenderStringMap(nil, nil) != nil {
		t.Error("RenderStringMap(nil) должен вернуть nil")
	}
}

func TestDecodeRenderEncode(t *testing.T) {
	v, err := Decode([]byte(`{"text":"{{service}} requested","n":2,"tags":["{{ip_address}}",true]}`))
	if err != nil {
		t.Fatalf("Decode() ошибка: %v", err)
	}

	out, err := Encode(Render(v, Context{"service": "wiki", "ip_address": "1.2.3.4"}))
	if err != nil {
		t.Fatalf("Encode() ошибка: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("Unmarshal ошибка: %v", err)
	}
	if got["text"] != "wiki requested" {
		t.Errorf("text = %v", got["text"])
	}
	if got["n"] != float64(2) {
		t.Errorf("n = %v, ожидается 2", got["n"])
	}
	tags, _ := got["tags"].([]any)
	if len(tags) != 2 || tags[0] != "1.2.3.4" || tags[1] != true {
		t.Errorf("tags = %v", got["tags"])
	}
}

func TestDecode_Empty(t *testing.T) {
	for _, in := range []string{"", "null"} {
		v, err := Decode([]byte(in))
		if err != nil {
			t.Fatalf("Decode(%q) ошибка: %v", in, err)
		}
		if v != nil {
			t.Errorf("Decode(%q) = %#v, ожидается nil", in, v)
		}
	}
}

func TestFromAny_Unsupported(t *testing.T) {
	if _, err := FromAny(struct{}{}); err == nil {
		t.Error("FromAny(struct{}) должен вернуть ошибку")
	}
}

func TestContextMerge(t *testing.T) {
	base := Context{"a": "1", "b": "2"}
	merged := base.Merge(Context{"b": "3", "c": "4"})
	if merged["a"] != "1" || merged["b"] != "3" || merged["c"] != "4" {
		t.Errorf("Merge() = %v", merged)
	}
	if base["b"] != "2" {
		t.Error("Merge() изменил исходный контекст")
	}
}
