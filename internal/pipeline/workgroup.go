package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/particlelife/gpucore"
)

var (
	workgroupAttr = regexp.MustCompile(`@workgroup_size\s*\(([^)]*)\)`)
	constDecl     = regexp.MustCompile(`(?m)^\s*(?:const|override)\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?::\s*[a-z0-9]+\s*)?=\s*([0-9]+)[ui]?\s*;`)
)

// entryPointAttrs returns the attribute text preceding "fn entry(" in
// source: everything between the previous declaration and the fn keyword.
func entryPointAttrs(source, entry string) (string, bool) {
	fnDecl := regexp.MustCompile(`\bfn\s+` + regexp.QuoteMeta(entry) + `\s*\(`)
	loc := fnDecl.FindStringIndex(source)
	if loc == nil {
		return "", false
	}
	head := source[:loc[0]]
	start := max(
		strings.LastIndexByte(head, '}'),
		strings.LastIndexByte(head, ';'),
	)
	return head[start+1:], true
}

// WorkgroupSize parses the @workgroup_size attribute of entry in
// preprocessed WGSL. Named sizes are resolved against module-scope
// integer constants in source, then against defines. Omitted dimensions
// are 1.
func WorkgroupSize(source, entry string, defines Defines) ([3]uint32, error) {
	attrs, ok := entryPointAttrs(source, entry)
	if !ok {
		return [3]uint32{}, fmt.Errorf("%w: %q", ErrEntryPointNotFound, entry)
	}
	m := workgroupAttr.FindStringSubmatch(attrs)
	if m == nil {
		return [3]uint32{}, fmt.Errorf("%w: %q has no @workgroup_size", ErrEntryPointNotFound, entry)
	}

	consts := map[string]uint32{}
	for _, c := range constDecl.FindAllStringSubmatch(source, -1) {
		if v, err := strconv.ParseUint(c[2], 10, 32); err == nil {
			consts[c[1]] = uint32(v)
		}
	}

	size := [3]uint32{1, 1, 1}
	parts := strings.Split(m[1], ",")
	if len(parts) > 3 {
		return [3]uint32{}, fmt.Errorf("%w: %q: too many dimensions", ErrWorkgroupMismatch, entry)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			if i == len(parts)-1 && i > 0 {
				break // trailing comma
			}
			return [3]uint32{}, fmt.Errorf("%w: %q: empty dimension", ErrWorkgroupMismatch, entry)
		}
		v, err := resolveDim(p, consts, defines)
		if err != nil {
			return [3]uint32{}, fmt.Errorf("%w: %q: %v", ErrWorkgroupMismatch, entry, err)
		}
		size[i] = v
	}
	return size, nil
}

func resolveDim(token string, consts map[string]uint32, defines Defines) (uint32, error) {
	lit := strings.TrimRight(token, "ui")
	if v, err := strconv.ParseUint(lit, 10, 32); err == nil {
		return uint32(v), nil
	}
	if v, ok := consts[token]; ok {
		return v, nil
	}
	if v, ok := defines[token]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unresolved size %q", token)
}

// ValidateWorkgroupSize checks that entry in preprocessed source declares
// exactly the workgroup size want.
func ValidateWorkgroupSize(source, entry string, defines Defines, want [3]uint32) error {
	got, err := WorkgroupSize(source, entry, defines)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %q declares %v, dispatch assumes %v", ErrWorkgroupMismatch, entry, got, want)
	}
	return nil
}

// checkLimits rejects workgroup sizes the adapter cannot run.
func checkLimits(size [3]uint32, caps gpucore.AdapterCapabilities) error {
	if size[0] == 0 || size[1] == 0 || size[2] == 0 {
		return fmt.Errorf("%w: workgroup size %v has a zero dimension", ErrWorkgroupLimit, size)
	}
	if caps.MaxWorkgroupSizeX > 0 && size[0] > caps.MaxWorkgroupSizeX {
		return fmt.Errorf("%w: x=%d exceeds %d", ErrWorkgroupLimit, size[0], caps.MaxWorkgroupSizeX)
	}
	if caps.MaxWorkgroupSizeY > 0 && size[1] > caps.MaxWorkgroupSizeY {
		return fmt.Errorf("%w: y=%d exceeds %d", ErrWorkgroupLimit, size[1], caps.MaxWorkgroupSizeY)
	}
	invocations := uint64(size[0]) * uint64(size[1]) * uint64(size[2])
	if caps.MaxWorkgroupInvocations > 0 && invocations > uint64(caps.MaxWorkgroupInvocations) {
		return fmt.Errorf("%w: %d invocations exceed %d", ErrWorkgroupLimit, invocations, caps.MaxWorkgroupInvocations)
	}
	return nil
}
