package cmdline

import (
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/lmevald/lmevald/internal/model"
)

// Translate builds the command line for a request. Only set fields are
// emitted, in schema declaration order; textual values are shell quoted.
// The tool path is used verbatim so it may carry its own arguments,
// e.g. "python -m lm_eval".
func Translate(req Request, args model.Arguments) string {
	var sb strings.Builder
	sb.WriteString(req.LMEvalPath)
	for _, spec := range args {
		v, ok := req.Set[spec.Name]
		if !ok {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(spec.Flag)
		if spec.Kind.IsFlag() {
			continue
		}
		sb.WriteByte(' ')
		if v.Quote {
			sb.WriteString(quote(v.Literal))
		} else {
			sb.WriteString(v.Literal)
		}
	}
	return sb.String()
}

// Split turns a command line back into argv using shell word splitting.
func Split(line string) ([]string, error) {
	return shellquote.Split(line)
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	return shellquote.Join(s)
}
