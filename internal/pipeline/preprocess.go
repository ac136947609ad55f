package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Defines are the shader constants substituted into kernel source before
// compilation. A name is "defined" for #ifdef purposes when it is present
// in the map, whatever its value.
type Defines map[string]uint32

// Clone returns an independent copy.
func (d Defines) Clone() Defines {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Keys returns the define names in sorted order.
func (d Defines) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

type condFrame struct {
	active       bool // lines in the current branch are emitted
	parentActive bool
	seenElse     bool
	line         int
}

// Preprocess expands shader directives in source:
//
//	#{NAME}       replaced by the decimal value of NAME
//	#ifdef NAME   keeps the following lines when NAME is defined
//	#ifndef NAME  keeps the following lines when NAME is not defined
//	#else
//	#endif
//
// Conditionals nest. Substitution only happens on emitted lines, so an
// undefined #{NAME} inside an inactive branch is not an error.
func Preprocess(source string, defines Defines) (string, error) {
	var out strings.Builder
	out.Grow(len(source))

	var stack []condFrame
	active := true

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if directive, arg, ok := parseDirective(trimmed); ok {
			switch directive {
			case "ifdef", "ifndef":
				if arg == "" {
					return "", fmt.Errorf("%w: line %d: #%s without a name", ErrDirective, lineNo, directive)
				}
				_, defined := defines[arg]
				cond := defined == (directive == "ifdef")
				stack = append(stack, condFrame{active: active && cond, parentActive: active, line: lineNo})
				active = active && cond
			case "else":
				if len(stack) == 0 {
					return "", fmt.Errorf("%w: line %d: #else without #ifdef", ErrDirective, lineNo)
				}
				top := &stack[len(stack)-1]
				if top.seenElse {
					return "", fmt.Errorf("%w: line %d: duplicate #else", ErrDirective, lineNo)
				}
				top.seenElse = true
				top.active = top.parentActive && !top.active
				active = top.active
			case "endif":
				if len(stack) == 0 {
					return "", fmt.Errorf("%w: line %d: #endif without #ifdef", ErrDirective, lineNo)
				}
				active = stack[len(stack)-1].parentActive
				stack = stack[:len(stack)-1]
			}
			// Keep line numbers stable for compiler diagnostics.
			if i < len(lines)-1 {
				out.WriteByte('\n')
			}
			continue
		}

		if active {
			expanded, err := substitute(line, defines)
			if err != nil {
				return "", fmt.Errorf("line %d: %w", lineNo, err)
			}
			out.WriteString(expanded)
		}
		if i < len(lines)-1 {
			out.WriteByte('\n')
		}
	}

	if len(stack) > 0 {
		return "", fmt.Errorf("%w: #ifdef on line %d is never closed", ErrDirective, stack[len(stack)-1].line)
	}
	return out.String(), nil
}

func parseDirective(trimmed string) (directive, arg string, ok bool) {
	if !strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "#{") {
		return "", "", false
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return "", "", false
	}
	switch fields[0] {
	case "ifdef", "ifndef":
		if len(fields) > 1 {
			arg = fields[1]
		}
		return fields[0], arg, true
	case "else", "endif":
		return fields[0], "", true
	}
	return "", "", false
}

func substitute(line string, defines Defines) (string, error) {
	if !strings.Contains(line, "#{") {
		return line, nil
	}
	var b strings.Builder
	rest := line
	for {
		start := strings.Index(rest, "#{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated #{", ErrDirective)
		}
		name := rest[start+2 : start+end]
		value, ok := defines[name]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUndefined, name)
		}
		b.WriteString(rest[:start])
		b.WriteString(strconv.FormatUint(uint64(value), 10))
		rest = rest[start+end+1:]
	}
}
