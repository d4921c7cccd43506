package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/ledger"
)

// Scenario defines a conformance test scenario: a sequence of calls made by
// named identities, followed by assertions on the final ledger state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Calls are executed in order through one host.
	Calls []CallStep `yaml:"calls"`

	// Assertions validate the final state.
	// Supported types: message, stats, count, journal_count
	Assertions []Assertion `yaml:"assertions"`

	// TokenPrefix prefixes the deterministic call tokens ("<prefix>-N").
	// Defaults to "call".
	TokenPrefix string `yaml:"token_prefix,omitempty"`
}

// CallStep is one call in a scenario.
type CallStep struct {
	// As is the identity the host authenticates the call as.
	As string `yaml:"as"`

	// Op is the ledger operation: post, reply, get, stats, like, tip, count.
	Op string `yaml:"op"`

	Recipient string  `yaml:"recipient,omitempty"`
	Target    int64   `yaml:"target,omitempty"`
	Content   string  `yaml:"content,omitempty"`
	Nickname  *string `yaml:"nickname,omitempty"`
	Amount    int64   `yaml:"amount,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the call must succeed and its result is not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Call converts the step into a host call.
func (s CallStep) Call() ir.Call {
	call := ir.Call{
		Op:        ir.Op(s.Op),
		Caller:    ir.Identity(s.As),
		Recipient: ir.Identity(s.Recipient),
		Target:    ir.MessageID(s.Target),
		Nickname:  s.Nickname,
		Amount:    s.Amount,
	}
	if s.Content != "" {
		call.Content = []byte(s.Content)
	}
	return call
}

// ExpectClause specifies the expected outcome of a call.
type ExpectClause struct {
	// Case is "ok" or a ledger error code, e.g. "NotAddressee" or
	// "NOT_ADDRESSEE".
	Case string `yaml:"case"`

	// Result contains expected result field values.
	// This is a subset match - only specified fields are validated.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates final ledger state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "message": message at ID matches Expect
	// - "stats": stats at ID match Expect
	// - "count": ledger count equals Count
	// - "journal_count": journal holds exactly Count entries
	Type string `yaml:"type"`

	// ID is the message id (used by message and stats).
	ID int64 `yaml:"id,omitempty"`

	// Expect contains expected field values (used by message and stats).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number (used by count and journal_count).
	Count int64 `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertMessage      = "message"
	AssertStats        = "stats"
	AssertCount        = "count"
	AssertJournalCount = "journal_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML from memory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// LoadScenarios loads path if it is a file, or every *.yaml and *.yml file
// directly inside it if it is a directory, sorted by file name.
func LoadScenarios(path string) ([]*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []*Scenario{s}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)

	scenarios := make([]*Scenario, 0, len(files))
	for _, f := range files {
		s, err := LoadScenario(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Calls) == 0 {
		return fmt.Errorf("calls list is required and must be non-empty")
	}

	for i, step := range s.Calls {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a call names a caller, a known op and the
// arguments that op needs.
func validateStep(index int, s *CallStep) error {
	if s.As == "" {
		return fmt.Errorf("calls[%d]: as is required", index)
	}
	op := ir.Op(s.Op)
	if !ir.ValidOps[op] {
		return fmt.Errorf("calls[%d]: unknown op %q", index, s.Op)
	}

	switch op {
	case ir.OpPost:
		if s.Recipient == "" {
			return fmt.Errorf("calls[%d]: recipient is required for post", index)
		}
	case ir.OpReply, ir.OpGet, ir.OpStats, ir.OpLike, ir.OpTip:
		if s.Recipient != "" {
			return fmt.Errorf("calls[%d]: recipient is only valid for post", index)
		}
	}
	if op != ir.OpTip && s.Amount != 0 {
		return fmt.Errorf("calls[%d]: amount is only valid for tip", index)
	}
	if op == ir.OpPost && s.Target != 0 {
		return fmt.Errorf("calls[%d]: target is not valid for post", index)
	}

	if s.Expect != nil {
		if s.Expect.Case == "" {
			return fmt.Errorf("calls[%d].expect: case is required", index)
		}
		if _, ok := normalizeCase(s.Expect.Case); !ok {
			return fmt.Errorf("calls[%d].expect: unknown case %q", index, s.Expect.Case)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertMessage, AssertStats:
		if a.ID < 1 {
			return fmt.Errorf("assertions[%d]: id must be positive for %s", index, a.Type)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertCount, AssertJournalCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// knownCases maps the folded form of every case name to its outcome string.
var knownCases = map[string]string{
	"ok":            ir.OutcomeOK,
	"notfound":      string(ledger.CodeNotFound),
	"nosuchmessage": string(ledger.CodeNoSuchMessage),
	"notaddressee":  string(ledger.CodeNotAddressee),
	"invalidamount": string(ledger.CodeInvalidAmount),
}

// normalizeCase maps a case as written in a scenario to the outcome string
// the host reports.
func normalizeCase(c string) (string, bool) {
	folded := strings.ToLower(strings.ReplaceAll(c, "_", ""))
	out, ok := knownCases[folded]
	return out, ok
}
