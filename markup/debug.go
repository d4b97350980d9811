package markup

import (
	"strconv"

	"tlnote/utils/debug"
)

// Dump renders token stream of a source string as a tree.
func Dump(source string, tokens []Token) string {
	tw := debug.NewTreeWriter()
	tw.TextBlock(0, "source", source)
	for i, t := range tokens {
		if len(t.Payload) == 0 {
			tw.Line(1, "[%d] %s", i, t.Kind)
			continue
		}
		tw.TextBlock(1, "["+strconv.Itoa(i)+"] "+t.Kind.String(), t.Payload)
	}
	return tw.String()
}
