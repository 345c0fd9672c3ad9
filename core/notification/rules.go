package notification

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/masomo-audit/core/event"
	appfs "github.com/trezcool/masomo-audit/fs"
)

const defaultRulesPath = "assets/notification_rules.yaml"

// Rule sets the title and priority of the notifications raised for one event type.
// Events carrying an amount are raised to the highest threshold they reach.
type Rule struct {
	Title      string              `yaml:"title"`
	Priority   Priority            `yaml:"priority"`
	Thresholds map[Priority]string `yaml:"thresholds"`

	thresholds map[Priority]decimal.Decimal
}

// Rules maps event types to their rule.
type Rules map[event.Type]*Rule

// ParseRules reads a YAML rules table.
func ParseRules(r io.Reader) (Rules, error) {
	rules := make(Rules)
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil {
		return nil, errors.Wrap(err, "decoding notification rules")
	}
	for typ, rule := range rules {
		if rule == nil || rule.Title == "" {
			return nil, errors.Errorf("%s: missing title", typ)
		}
		if !rule.Priority.Valid() {
			return nil, errors.Errorf("%s: invalid priority %q", typ, rule.Priority)
		}
		rule.thresholds = make(map[Priority]decimal.Decimal, len(rule.Thresholds))
		for prio, val := range rule.Thresholds {
			if !prio.Valid() {
				return nil, errors.Errorf("%s: invalid threshold priority %q", typ, prio)
			}
			amount, err := decimal.NewFromString(val)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: invalid %s threshold", typ, prio)
			}
			rule.thresholds[prio] = amount
		}
	}
	return rules, nil
}

// LoadRules reads the rules from `path`, or the embedded defaults when path is empty.
func LoadRules(path string) (Rules, error) {
	var (
		f   io.ReadCloser
		err error
	)
	if path == "" {
		f, err = appfs.FS.Open(defaultRulesPath)
	} else {
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "opening notification rules")
	}
	defer func() { _ = f.Close() }()
	return ParseRules(f)
}

// Classify returns the title & priority of the notification for ev; ok is false for unknown event types.
func (r Rules) Classify(ev event.Event) (title string, prio Priority, ok bool) {
	rule, ok := r[ev.Type]
	if !ok {
		return "", "", false
	}
	prio = rule.Priority
	if ev.Amount != nil {
		for p, threshold := range rule.thresholds {
			if ev.Amount.GreaterThanOrEqual(threshold) && p.AtLeast(prio) {
				prio = p
			}
		}
	}
	return rule.Title, prio, true
}
