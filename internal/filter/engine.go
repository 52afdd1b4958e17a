package filter

import (
	"github.com/IvanShishkin/clamjuice/internal/classifier"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// Verdict is the keep/drop decision for one signature
type Verdict int

const (
	Keep Verdict = iota
	DropType
	DropPlatform
	DropNDBType
)

func (v Verdict) String() string {
	switch v {
	case Keep:
		return "keep"
	case DropType:
		return "type"
	case DropPlatform:
		return "platform"
	case DropNDBType:
		return "ndb_type"
	default:
		return "unknown"
	}
}

// Engine decides whether signatures survive a policy. It holds no mutable
// state and may be shared.
type Engine struct {
	classifier *classifier.Classifier
}

// NewEngine creates an engine using c to derive platform tags
func NewEngine(c *classifier.Classifier) *Engine {
	if c == nil {
		c = classifier.Default()
	}
	return &Engine{classifier: c}
}

// Classifier returns the classifier used by the engine
func (e *Engine) Classifier() *classifier.Classifier {
	return e.classifier
}

// ShouldKeep reports whether sig survives policy
func (e *Engine) ShouldKeep(sig *models.Signature, policy *Policy) bool {
	return e.Decide(sig, policy) == Keep
}

// Decide applies the rules in order: always-keep, excluded format, platform
// include or exclude list, NDB type allow-list. The first rule that decides
// wins; a signature must pass both the platform and the NDB type rule.
func (e *Engine) Decide(sig *models.Signature, policy *Policy) Verdict {
	if policy.AlwaysKeep(sig.Name) {
		return Keep
	}

	if policy.ExcludesFormat(sig.Format) {
		return DropType
	}

	platform := e.classifier.Classify(sig.Name)
	if len(policy.include) > 0 {
		if _, ok := policy.include[platform]; !ok {
			return DropPlatform
		}
	} else if len(policy.exclude) > 0 {
		if _, ok := policy.exclude[platform]; ok {
			return DropPlatform
		}
	}

	if sig.Format == models.FormatNDB && len(policy.ndbTypes) > 0 {
		if sig.NDBType == nil {
			return DropNDBType
		}
		if _, ok := policy.ndbTypes[*sig.NDBType]; !ok {
			return DropNDBType
		}
	}

	return Keep
}
