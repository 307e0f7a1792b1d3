// Package schema validates sync request bodies against embedded CUE
// definitions before they reach the engine.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/circlesync/internal/ir"
)

//go:embed schema.cue
var source string

// Issue is one schema violation.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Issues []Issue
}

// Error reports the first issue and how many more there are.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "schema validation failed"
	}
	first := e.Issues[0]
	msg := first.Message
	if first.Path != "" {
		msg = first.Path + ": " + msg
	}
	if n := len(e.Issues) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// Validator checks documents against the compiled definitions.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so every
// method serializes on an internal mutex.
type Validator struct {
	mu       sync.Mutex
	ctx      *cue.Context
	request  cue.Value
	payloads map[ir.EntityType]cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(source, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := &Validator{
		ctx:     ctx,
		request: root.LookupPath(cue.ParsePath("#PushRequest")),
		payloads: map[ir.EntityType]cue.Value{
			ir.EntityMoment:  root.LookupPath(cue.ParsePath("#MomentData")),
			ir.EntityLetter:  root.LookupPath(cue.ParsePath("#LetterData")),
			ir.EntityComment: root.LookupPath(cue.ParsePath("#CommentData")),
		},
	}
	if !v.request.Exists() {
		return nil, fmt.Errorf("schema: #PushRequest not defined")
	}
	for t, p := range v.payloads {
		if !p.Exists() {
			return nil, fmt.Errorf("schema: no definition for %s data", t)
		}
	}
	return v, nil
}

// MustNew is New for package-level initialization and tests.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidatePushRequest checks a raw POST /sync/push body.
func (v *Validator) ValidatePushRequest(body []byte) error {
	return v.validate(v.request, "request.json", body)
}

// ValidatePayload checks the data of a single change of type t.
func (v *Validator) ValidatePayload(t ir.EntityType, data []byte) error {
	def, ok := v.payloads[t]
	if !ok {
		return &ValidationError{Issues: []Issue{{Message: "Unknown entity type: " + string(t)}}}
	}
	return v.validate(def, "data.json", data)
}

func (v *Validator) validate(def cue.Value, name string, doc []byte) error {
	doc, err := dropNulls(doc)
	if err != nil {
		return &ValidationError{Issues: []Issue{{Message: "invalid JSON: " + err.Error()}}}
	}
	expr, err := cuejson.Extract(name, doc)
	if err != nil {
		return &ValidationError{Issues: []Issue{{Message: "invalid JSON: " + err.Error()}}}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	value := v.ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return toValidationError(err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) *ValidationError {
	ve := &ValidationError{}
	seen := make(map[Issue]bool)
	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		issue := Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if !seen[issue] {
			seen[issue] = true
			ve.Issues = append(ve.Issues, issue)
		}
	}
	if len(ve.Issues) == 0 {
		ve.Issues = []Issue{{Message: err.Error()}}
	}
	// Deepest paths first so the offending field leads.
	sort.SliceStable(ve.Issues, func(i, j int) bool {
		return pathDepth(ve.Issues[i].Path) > pathDepth(ve.Issues[j].Path)
	})
	return ve
}

func pathDepth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

// dropNulls removes null object members, recursively. A null field means
// the same as an absent one, which keeps the definitions free of
// "null |" disjunctions whose errors lose the failing field's path.
func dropNulls(doc []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return json.Marshal(stripNull(raw))
}

func stripNull(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, field := range v {
			if field == nil {
				delete(v, k)
				continue
			}
			v[k] = stripNull(field)
		}
	case []any:
		for i, elem := range v {
			v[i] = stripNull(elem)
		}
	}
	return v
}

// formatCUEError attaches the position of the first error in the schema
// source itself.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		pos := positions[0]
		return fmt.Errorf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), first.Error())
	}
	return first
}
