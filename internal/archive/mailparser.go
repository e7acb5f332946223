package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// RuleResolver loads a stored conversion rule. A nil rule with a nil error
// means the id is unknown.
type RuleResolver interface {
	ConversionRule(id int64) (*Rule, error)
}

// MailParser is the registry-facing mail converter: it resolves the
// per-message rule, runs the pipeline and renders thumbnails for archived
// documents.
type MailParser struct {
	pipeline *Pipeline
	defaults Rule
	rules    RuleResolver
	thumb    Thumbnailer
	log      *zap.Logger
}

// NewMailParser wraps a pipeline with rule resolution. The defaults apply to
// messages without a rule.
func NewMailParser(p *Pipeline, defaults Rule) *MailParser {
	return &MailParser{
		pipeline: p,
		defaults: defaults,
		log:      zap.NewNop(),
	}
}

// WithRuleResolver makes stored rules available to Parse.
func (m *MailParser) WithRuleResolver(r RuleResolver) *MailParser {
	m.rules = r
	return m
}

// WithThumbnailer enables Thumbnail.
func (m *MailParser) WithThumbnailer(t Thumbnailer) *MailParser {
	m.thumb = t
	return m
}

// WithLogger sets the logger.
func (m *MailParser) WithLogger(log *zap.Logger) *MailParser {
	m.log = log
	return m
}

// Parse converts the message at documentPath. The ruleID selects a stored
// conversion rule; zero or an unknown id falls back to the configured
// defaults. The mimeType is the type the registry dispatched on.
func (m *MailParser) Parse(ctx context.Context, documentPath, mimeType string, ruleID int64) (*Result, error) {
	rule := m.resolveRule(ruleID)
	return m.pipeline.Parse(ctx, documentPath, rule)
}

func (m *MailParser) resolveRule(ruleID int64) Rule {
	if ruleID == 0 || m.rules == nil {
		return m.defaults
	}

	rule, err := m.rules.ConversionRule(ruleID)
	if err != nil {
		m.log.Warn("rule lookup failed, using default conversion rule",
			zap.Int64("rule_id", ruleID), zap.Error(err))
		return m.defaults
	}
	if rule == nil {
		m.log.Warn("unknown conversion rule, using default conversion rule",
			zap.Int64("rule_id", ruleID))
		return m.defaults
	}
	return *rule
}

// Thumbnail renders the first page of an archived document as a PNG inside
// outDir and returns its path.
func (m *MailParser) Thumbnail(ctx context.Context, archivePath, outDir string) (string, error) {
	if m.thumb == nil {
		return "", errors.New("no thumbnailer configured")
	}

	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	outPath := filepath.Join(outDir, base+".png")
	if err := m.thumb.Thumbnail(ctx, archivePath, outPath); err != nil {
		return "", fmt.Errorf("failed to render thumbnail: %w", err)
	}
	return outPath, nil
}
