package rules

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bundlescope/bundlescope/pkg/logging"
	"github.com/bundlescope/bundlescope/pkg/types"
)

const (
	// DefaultMaxReadBytes caps how much of each target file a rule reads.
	DefaultMaxReadBytes = 200_000

	// DefaultMaxEvidence caps evidence lines per rule across all of its
	// target files combined.
	DefaultMaxEvidence = 10
)

// Limits bounds the work a single rule may do.
type Limits struct {
	MaxReadBytes int
	MaxEvidence  int
}

func (l Limits) withDefaults() Limits {
	if l.MaxReadBytes <= 0 {
		l.MaxReadBytes = DefaultMaxReadBytes
	}
	if l.MaxEvidence <= 0 {
		l.MaxEvidence = DefaultMaxEvidence
	}
	return l
}

// Evaluator applies compiled rule collections to a bundle's files.
// An Evaluator is immutable after construction and safe to share across
// concurrently running bundle analyses.
type Evaluator struct {
	collections []Collection
	limits      Limits
	logger      zerolog.Logger
}

// NewEvaluator creates an evaluator over the given collections.
func NewEvaluator(collections []Collection, limits Limits) *Evaluator {
	return &Evaluator{
		collections: collections,
		limits:      limits.withDefaults(),
		logger:      logging.GetLogger("rules.evaluator"),
	}
}

// Evaluate runs every enabled, format-matching rule against the bundle
// rooted at root. Evaluating the same bundle with the same collections
// twice yields identical findings in identical order: collections and
// rules run in load order, files in declaration order, lines in file
// order. The context is checked between files so a per-bundle deadline
// can cut a scan short.
func (e *Evaluator) Evaluate(ctx context.Context, root string, format types.Format) []types.Finding {
	var findings []types.Finding

	ruleCount := 0
	for _, coll := range e.collections {
		for _, rule := range coll.Rules {
			if ctx.Err() != nil {
				e.logger.Warn().
					Err(ctx.Err()).
					Str("collection", coll.Name).
					Msg("Rule evaluation cut short")
				return findings
			}
			ruleCount++
			if finding := e.evaluateRule(ctx, rule, root, format); finding != nil {
				finding.Collection = coll.Name
				findings = append(findings, *finding)
			}
		}
	}

	e.logger.Debug().
		Int("rules", ruleCount).
		Int("findings", len(findings)).
		Str("format", string(format)).
		Msg("Rule evaluation complete")
	return findings
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule CompiledRule, root string, format types.Format) *types.Finding {
	if !rule.IsEnabled() || !rule.AppliesToFormat(format) {
		return nil
	}

	relPaths := rule.PathsFor(format)
	if len(relPaths) == 0 {
		return nil
	}

	var evidence []types.Evidence
	for _, rel := range relPaths {
		if ctx.Err() != nil {
			break
		}
		if len(evidence) >= e.limits.MaxEvidence {
			break
		}
		evidence = append(evidence, e.scanFile(rule.Pattern, root, rel, e.limits.MaxEvidence-len(evidence))...)
	}

	minMatches := rule.MinMatches
	if minMatches <= 0 {
		minMatches = 1
	}
	// The substituted match count is the evidence actually retained; once
	// the evidence cap stops the scan there is no true total to report.
	matchCount := len(evidence)
	if matchCount < minMatches {
		return nil
	}

	count := strconv.Itoa(matchCount)
	return &types.Finding{
		Severity:    severityOf(rule.Severity),
		Category:    categoryOf(rule.Category),
		Title:       strings.ReplaceAll(rule.Title, "{match_count}", count),
		Detail:      strings.ReplaceAll(rule.Detail, "{match_count}", count),
		SectionLink: rule.SectionLink,
		RuleID:      rule.ID,
		Evidence:    evidence,
	}
}

// scanFile reads up to the byte cap of one target file and returns
// evidence for matching lines, at most maxEvidence entries. Missing or
// unreadable files yield no evidence; most bundle files are optional.
func (e *Evaluator) scanFile(pattern *regexp.Regexp, root, rel string, maxEvidence int) []types.Evidence {
	if maxEvidence <= 0 {
		return nil
	}

	f, err := os.Open(filepath.Join(root, rel))
	if err != nil {
		return nil
	}
	defer f.Close()

	var evidence []types.Evidence
	scanner := bufio.NewScanner(io.LimitReader(f, int64(e.limits.MaxReadBytes)))
	scanner.Buffer(make([]byte, 64*1024), e.limits.MaxReadBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !pattern.MatchString(line) {
			continue
		}
		evidence = append(evidence, types.Evidence{
			File:       rel,
			LineNumber: lineNum,
			LineText:   strings.TrimRight(line, " \t"),
		})
		if len(evidence) >= maxEvidence {
			break
		}
	}
	return evidence
}

func severityOf(s string) types.Severity {
	switch types.Severity(strings.ToLower(s)) {
	case types.SeverityCritical:
		return types.SeverityCritical
	case types.SeverityOK:
		return types.SeverityOK
	default:
		return types.SeverityWarning
	}
}

func categoryOf(c string) string {
	if c == "" {
		return "Rules"
	}
	return c
}
