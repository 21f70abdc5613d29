package tgui

import "strings"

// Builder assembles a reply one line at a time. Plain strings are escaped;
// H values are written as-is.
type Builder struct {
	lines []string
}

func New() *Builder { return &Builder{} }

func (b *Builder) Title(s string) *Builder {
	b.lines = append(b.lines, B(s).String())
	return b
}

// Line appends text parts joined by a space.
func (b *Builder) Line(parts ...any) *Builder {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case H:
			ss = append(ss, v.String())
		case string:
			ss = append(ss, Esc(v).String())
		}
	}
	b.lines = append(b.lines, strings.Join(ss, " "))
	return b
}

// Item renders "key - value", the list shape used by every command reply.
func (b *Builder) Item(key, value string) *Builder {
	b.lines = append(b.lines, Esc(key).String()+" - "+Esc(value).String())
	return b
}

// KV renders "key: value" with a bold key.
func (b *Builder) KV(key string, value H) *Builder {
	b.lines = append(b.lines, B(key+":").String()+" "+value.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

func (b *Builder) Len() int { return len(b.lines) }

func (b *Builder) String() string { return strings.Join(b.lines, "\n") }
