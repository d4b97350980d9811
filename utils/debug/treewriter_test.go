package debug

import "testing"

func TestTreeWriter_Line(t *testing.T) {
	tests := []struct {
		name   string
		depth  int
		format string
		args   []any
		want   string
	}{
		{"no depth", 0, "test", nil, "test\n"},
		{"depth 1", 1, "indented", nil, "  indented\n"},
		{"depth 2", 2, "double indent", nil, "    double indent\n"},
		{"with formatting", 1, "value: %d", []any{42}, "  value: 42\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := NewTreeWriter()
			tw.Line(tt.depth, tt.format, tt.args...)
			if got := tw.String(); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTreeWriter_TextBlock(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		label string
		value string
		want  string
	}{
		{"empty value", 0, "field", "", "field: \n"},
		{"with value", 1, "text", "hello world", "  text: \"hello world\"\n"},
		{"with newline", 0, "insert", "\n", "insert: \"\\n\"\n"},
		{"with quotes", 0, "quoted", `he said "hi"`, "quoted: \"he said \\\"hi\\\"\"\n"},
		{"unicode kept", 0, "tag", "歌回", "tag: \"歌回\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := NewTreeWriter()
			tw.TextBlock(tt.depth, tt.label, tt.value)
			if got := tw.String(); got != tt.want {
				t.Errorf("TextBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTreeWriter_Fields(t *testing.T) {
	tw := NewTreeWriter()
	tw.Fields(1, "attrs", "color", "#ee230d", "bold", "", "size", "18px", "dangling")
	if got, want := tw.String(), "  attrs color=#ee230d size=18px\n"; got != want {
		t.Errorf("Fields() = %q, want %q", got, want)
	}
}

func TestTreeWriter_Tree(t *testing.T) {
	tw := NewTreeWriter()
	tw.Line(0, "Document length=%d", 3)
	tw.TextBlock(1, "run", "abc")
	tw.Fields(2, "attrs", "bold", "true")
	want := "Document length=3\n  run: \"abc\"\n    attrs bold=true\n"
	if got := tw.String(); got != want {
		t.Errorf("tree:\ngot:\n%s\nwant:\n%s", got, want)
	}
}
