package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a sync conversation between users of one or more circles,
// run against a fresh database.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Users are registered first, in order, with name = id and email
	// <id>@example.com.
	Users []string `yaml:"users"`

	// Circles are created after the users.
	Circles []CircleSetup `yaml:"circles"`

	// Steps run in order after setup.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final log and entity state.
	Assertions []Assertion `yaml:"assertions"`
}

// CircleSetup creates a circle with Admin as its admin and adds Members.
type CircleSetup struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Admin   string   `yaml:"admin"`
	Members []string `yaml:"members,omitempty"`
}

// Step operations.
const (
	OpPush         = "push"
	OpPull         = "pull"
	OpFullSync     = "full_sync"
	OpAddMember    = "add_member"
	OpRemoveMember = "remove_member"
	OpSealLetter   = "seal_letter"
	OpVerify       = "verify"
)

// SinceWatermark makes a pull continue from the previous pull of the same
// user and circle.
const SinceWatermark = "watermark"

// Step is one call into the engine.
type Step struct {
	Op     string `yaml:"op"`
	As     string `yaml:"as,omitempty"`
	Circle string `yaml:"circle,omitempty"`

	// push
	Changes []ChangeSpec `yaml:"changes,omitempty"`

	// pull: Since is empty (from the start), "watermark" or a timestamp.
	Since string `yaml:"since,omitempty"`
	Limit int    `yaml:"limit,omitempty"`

	// add_member, remove_member
	User string `yaml:"user,omitempty"`
	Role string `yaml:"role,omitempty"`

	// seal_letter
	Letter     string `yaml:"letter,omitempty"`
	UnlockDate string `yaml:"unlock_date,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// ChangeSpec is a push change in scenario form.
type ChangeSpec struct {
	Type   string         `yaml:"type"`
	ID     string         `yaml:"id"`
	Action string         `yaml:"action"`
	Data   map[string]any `yaml:"data,omitempty"`
}

// Expect checks a step's response. Unset fields are not checked.
type Expect struct {
	// Error is the request-level error code the step must fail with.
	Error string `yaml:"error,omitempty"`

	// Results are matched positionally against push results.
	Results []ExpectResult `yaml:"results,omitempty"`

	// Changes is the number of entries a pull returns.
	Changes *int  `yaml:"changes,omitempty"`
	HasMore *bool `yaml:"has_more,omitempty"`

	// Snapshot counts.
	Members  *int `yaml:"members,omitempty"`
	Moments  *int `yaml:"moments,omitempty"`
	Letters  *int `yaml:"letters,omitempty"`
	Comments *int `yaml:"comments,omitempty"`

	// Issues is the number of verifier issues.
	Issues *int `yaml:"issues,omitempty"`
}

// ExpectResult is one expected push result. An empty Message is not checked.
type ExpectResult struct {
	Status  string `yaml:"status"`
	Message string `yaml:"message,omitempty"`
}

// Assertion is a check on the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Circle     string `yaml:"circle,omitempty"`
	EntityType string `yaml:"entity_type,omitempty"`
	EntityID   string `yaml:"entity_id,omitempty"`

	// Count is the expected number of log entries (log_count).
	Count int `yaml:"count,omitempty"`

	// Entries is the expected log order as "type:id:action" (log_order).
	Entries []string `yaml:"entries,omitempty"`

	// Expect holds expected entity fields in wire names, plus "deleted"
	// (entity_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertLogCount    = "log_count"
	AssertLogOrder    = "log_order"
	AssertEntityState = "entity_state"
	AssertConsistent  = "consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, c := range s.Circles {
		if c.ID == "" || c.Admin == "" {
			return fmt.Errorf("circles[%d]: id and admin are required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	needs := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("steps[%d]: %s is required for %s", index, field, st.Op)
		}
		return nil
	}

	switch st.Op {
	case OpPush:
		if err := needs("as", st.As); err != nil {
			return err
		}
		if len(st.Changes) == 0 {
			return fmt.Errorf("steps[%d]: changes are required for push", index)
		}
		return needs("circle", st.Circle)
	case OpPull, OpFullSync:
		if err := needs("as", st.As); err != nil {
			return err
		}
		if st.Limit < 0 {
			return fmt.Errorf("steps[%d]: limit must be non-negative", index)
		}
		return needs("circle", st.Circle)
	case OpAddMember, OpRemoveMember:
		if err := needs("circle", st.Circle); err != nil {
			return err
		}
		return needs("user", st.User)
	case OpSealLetter:
		if err := needs("as", st.As); err != nil {
			return err
		}
		return needs("letter", st.Letter)
	case OpVerify:
		return needs("circle", st.Circle)
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertLogCount:
		if a.Circle == "" && a.EntityID == "" {
			return fmt.Errorf("assertions[%d]: circle or entity_id is required for log_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertLogOrder:
		if a.Circle == "" || len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: circle and entries are required for log_order", index)
		}
	case AssertEntityState:
		if a.EntityType == "" || a.EntityID == "" {
			return fmt.Errorf("assertions[%d]: entity_type and entity_id are required for entity_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entity_state", index)
		}
	case AssertConsistent:
		if a.Circle == "" {
			return fmt.Errorf("assertions[%d]: circle is required for consistent", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
