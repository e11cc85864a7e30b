package vm

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Program: compiled program model and deserialization
// ---------------------------------------------------------------------------

// ApTracking is the compile-time record of ap movement: a group id (a new
// group starts whenever the compiler loses track of ap) and the offset ap
// had advanced within that group.
type ApTracking struct {
	Group  int `json:"group"`
	Offset int `json:"offset"`
}

// FlowTrackingData ties a hint to the tracking state at its program point.
// ReferenceIDs maps fully qualified identifier names to indices into the
// program's reference table.
type FlowTrackingData struct {
	ApTracking   ApTracking     `json:"ap_tracking"`
	ReferenceIDs map[string]int `json:"reference_ids"`
}

// Hint is one hint annotation attached to an instruction: the exact source
// text dispatched against the registry plus the metadata needed to resolve
// its identifiers.
type Hint struct {
	Code             string           `json:"code"`
	AccessibleScopes []string         `json:"accessible_scopes"`
	FlowTrackingData FlowTrackingData `json:"flow_tracking_data"`
}

// Reference is a parsed variable reference: which register it is relative
// to, the displacement, whether the referenced cell is dereferenced, and
// the ap-tracking epoch it was created in.
type Reference struct {
	ApTracking  ApTracking
	Register    Register
	Offset      int64
	Dereference bool
}

// Identifier is a named program symbol; only function entrypoints matter
// here.
type Identifier struct {
	Pc   *uint64 `json:"pc"`
	Type string  `json:"type"`
}

// Program is a loaded compiled program, ready for the runner.
type Program struct {
	Data        []MaybeRelocatable
	Builtins    []string
	Hints       map[uint64][]Hint
	Identifiers map[string]Identifier
	References  []Reference
	MainScope   string
}

// rawProgram mirrors the compiler's JSON output.
type rawProgram struct {
	Prime       string                `json:"prime"`
	Data        []string              `json:"data"`
	Builtins    []string              `json:"builtins"`
	Hints       map[string][]Hint     `json:"hints"`
	Identifiers map[string]Identifier `json:"identifiers"`
	MainScope   string                `json:"main_scope"`
	RefManager  struct {
		References []struct {
			ApTrackingData ApTracking `json:"ap_tracking_data"`
			Pc             uint64     `json:"pc"`
			Value          string     `json:"value"`
		} `json:"references"`
	} `json:"reference_manager"`
}

// LoadProgram reads and deserializes a compiled program file. Any failure
// is reported as ErrInvalidProgram with the path embedded.
func LoadProgram(path string) (*Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %q: %v", ErrInvalidProgram, path, err)
	}
	p, err := ParseProgram(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidProgram, path, err)
	}
	return p, nil
}

// ParseProgram deserializes compiled program JSON.
func ParseProgram(data []byte) (*Program, error) {
	var raw rawProgram
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed program json: %v", err)
	}

	if err := checkPrime(raw.Prime); err != nil {
		return nil, err
	}

	p := &Program{
		Builtins:    raw.Builtins,
		Hints:       make(map[uint64][]Hint),
		Identifiers: raw.Identifiers,
		MainScope:   raw.MainScope,
	}

	p.Data = make([]MaybeRelocatable, len(raw.Data))
	for i, word := range raw.Data {
		f, err := FeltFromString(word)
		if err != nil {
			return nil, fmt.Errorf("data word %d: %v", i, err)
		}
		p.Data[i] = NewFeltCell(f)
	}

	for pcText, hints := range raw.Hints {
		pc, err := strconv.ParseUint(pcText, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad hint pc %q: %v", pcText, err)
		}
		p.Hints[pc] = hints
	}

	p.References = make([]Reference, len(raw.RefManager.References))
	for i, r := range raw.RefManager.References {
		ref, err := parseReference(r.Value)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %v", i, err)
		}
		ref.ApTracking = r.ApTrackingData
		p.References[i] = ref
	}

	return p, nil
}

// EntrypointOffset finds the pc offset of a function label. Bare labels are
// also looked up under the program's main scope.
func (p *Program) EntrypointOffset(label string) (uint64, error) {
	candidates := []string{label}
	if p.MainScope != "" && !strings.Contains(label, ".") {
		candidates = append(candidates, p.MainScope+"."+label)
	}
	for _, name := range candidates {
		id, ok := p.Identifiers[name]
		if !ok {
			continue
		}
		if id.Type != "function" || id.Pc == nil {
			return 0, fmt.Errorf("identifier %q is not a function entrypoint", name)
		}
		return *id.Pc, nil
	}
	return 0, fmt.Errorf("entrypoint %q not found", label)
}

// checkPrime verifies the program was compiled over this VM's field.
func checkPrime(prime string) error {
	text, ok := strings.CutPrefix(prime, "0x")
	base := 10
	if ok {
		base = 16
	} else {
		text = prime
	}
	v, parsed := new(big.Int).SetString(text, base)
	if !parsed || v.Cmp(feltPrime) != 0 {
		return fmt.Errorf("prime %q does not match the field prime", prime)
	}
	return nil
}

// parseReference parses the compiler's reference expression, e.g.
//
//	[cast(fp + (-4), felt*)]   frame-relative, dereferenced
//	cast(ap + 2, felt*)        ap-relative address
//	[cast(fp, felt**)]
//
// Nested dereferences are not representable and fail.
func parseReference(value string) (Reference, error) {
	var ref Reference
	expr := strings.TrimSpace(value)

	if strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]") {
		ref.Dereference = true
		expr = expr[1 : len(expr)-1]
	}

	inner, ok := strings.CutPrefix(expr, "cast(")
	if !ok || !strings.HasSuffix(inner, ")") {
		return Reference{}, fmt.Errorf("unsupported reference expression %q", value)
	}
	inner = inner[:len(inner)-1]

	comma := strings.LastIndex(inner, ",")
	if comma < 0 {
		return Reference{}, fmt.Errorf("unsupported reference expression %q", value)
	}
	target := strings.TrimSpace(inner[:comma])

	reg, rest, err := splitRegister(target)
	if err != nil {
		return Reference{}, fmt.Errorf("reference %q: %v", value, err)
	}
	ref.Register = reg

	if rest != "" {
		off, err := parseOffsetTerm(rest)
		if err != nil {
			return Reference{}, fmt.Errorf("reference %q: %v", value, err)
		}
		ref.Offset = off
	}
	return ref, nil
}

func splitRegister(expr string) (Register, string, error) {
	switch {
	case strings.HasPrefix(expr, "ap"):
		return RegisterAp, strings.TrimSpace(expr[2:]), nil
	case strings.HasPrefix(expr, "fp"):
		return RegisterFp, strings.TrimSpace(expr[2:]), nil
	default:
		return 0, "", fmt.Errorf("no base register in %q", expr)
	}
}

// parseOffsetTerm parses "+ n" or "+ (-n)".
func parseOffsetTerm(expr string) (int64, error) {
	rest, ok := strings.CutPrefix(expr, "+")
	if !ok {
		return 0, fmt.Errorf("unsupported offset term %q", expr)
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}
	off, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad offset in %q: %v", expr, err)
	}
	return off, nil
}
