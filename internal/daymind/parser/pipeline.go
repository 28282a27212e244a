// Package parser turns one inbound message into a sequence of UpdateCards.
// Apart from the random UpdateID each card gets, it is a pure function: the
// same InboundMessage always yields the same ParsedUpdates, with no network,
// clock, or store access.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// InboundMessage is the provider-neutral shape ParserPipeline consumes.
type InboundMessage struct {
	AccountID         string
	Source            model.Source
	ProviderMessageID string
	ProviderThreadID  string
	ReceivedAtUTC     time.Time
	Sender            string
	Subject           string
	BodyText          string
}

// ParsedUpdate wraps one produced UpdateCard with the template name the
// classifier assigned and any due-date phrase it found, for callers that
// want that detail without re-deriving it from tags.
type ParsedUpdate struct {
	Card           model.UpdateCard
	Template       string
	DueDatePhrase  string
}

var (
	courseCodePattern = regexp.MustCompile(`(?i)\b[a-z]{3}\s?\d{3}\b`)
	dueDatePattern    = regexp.MustCompile(`(?i)((due|by)\s+(on\s+)?[a-z]{3,9}\s+\d{1,2}(,\s*\d{4})?(\s+at\s+\d{1,2}:?\d{0,2}\s*(am|pm)?)?)`)
	bulletLinePattern = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s+`)
)

// Pipeline is the ParserPipeline: a configured trusted-sender allowlist plus
// the deterministic rule-based extraction described in the component
// design. It holds no mutable state between calls.
type Pipeline struct {
	trustedSenders []string // lowercase substrings matched against sender/domain
}

// New builds a Pipeline with the given trusted-sender substrings (e.g.
// "@university.edu", "noreply@piazza.com"). Matching is case-insensitive
// substring containment against the message's Sender field.
func New(trustedSenders []string) *Pipeline {
	lowered := make([]string, len(trustedSenders))
	for i, s := range trustedSenders {
		lowered[i] = strings.ToLower(s)
	}
	return &Pipeline{trustedSenders: lowered}
}

// Parse runs the full algorithm over one message and always returns at
// least one ParsedUpdate.
func (p *Pipeline) Parse(msg InboundMessage) []ParsedUpdate {
	if !p.isTrusted(msg.Sender) {
		return []ParsedUpdate{p.untrustedUpdate(msg)}
	}

	bodies := p.splitDigest(msg)
	updates := make([]ParsedUpdate, 0, len(bodies))
	for _, part := range bodies {
		updates = append(updates, p.parseOne(msg, part))
	}
	return updates
}

func (p *Pipeline) isTrusted(sender string) bool {
	lowered := strings.ToLower(sender)
	for _, trusted := range p.trustedSenders {
		if strings.Contains(lowered, trusted) {
			return true
		}
	}
	return false
}

func (p *Pipeline) untrustedUpdate(msg InboundMessage) ParsedUpdate {
	card := model.UpdateCard{
		UpdateID:             uuid.NewString(),
		AccountID:            msg.AccountID,
		Source:               msg.Source,
		ProviderMessageID:    msg.ProviderMessageID,
		ProviderThreadID:     msg.ProviderThreadID,
		ReceivedAtUTC:        msg.ReceivedAtUTC,
		Sender:               msg.Sender,
		Subject:              msg.Subject,
		BodyText:             msg.BodyText,
		Tags:                 []string{"type:untrusted_source"},
		ParserMethod:         model.ParserMethodRuleBased,
		ParseConfidence:      0.20,
		RequiresConfirmation: true,
		ContentHash:          contentHash(msg.BodyText),
	}
	return ParsedUpdate{Card: card}
}

// digestPart is one body fragment (and, for fanned-out bullets, its
// synthetic message-id suffix) that parseOne turns into an UpdateCard.
type digestPart struct {
	body   string
	suffix string // "" for the whole-message case
}

func (p *Pipeline) splitDigest(msg InboundMessage) []digestPart {
	subject := strings.ToLower(msg.Subject)
	if !strings.Contains(subject, "digest") && !strings.Contains(subject, "summary") {
		return []digestPart{{body: msg.BodyText}}
	}

	var bullets []string
	for _, line := range strings.Split(msg.BodyText, "\n") {
		if bulletLinePattern.MatchString(line) {
			bullets = append(bullets, bulletLinePattern.ReplaceAllString(line, ""))
		}
	}
	if len(bullets) < 2 {
		return []digestPart{{body: msg.BodyText}}
	}

	parts := make([]digestPart, len(bullets))
	for i, b := range bullets {
		parts[i] = digestPart{body: strings.TrimSpace(b), suffix: fmt.Sprintf("-%d", i+1)}
	}
	return parts
}

func (p *Pipeline) parseOne(msg InboundMessage, part digestPart) ParsedUpdate {
	template := classifyTemplate(msg.Sender, msg.Subject)
	tags, primaryType := extractTags(msg.Subject, part.body)
	dueDatePhrase := extractDueDate(msg.Subject + " " + part.body)

	requiresConfirmation := dueDatePhrase == "" &&
		(primaryType == "assignment" || strings.Contains(template, "digest") || template == "unknown")

	confidence := 0.50
	if dueDatePhrase != "" {
		confidence += 0.25
	}
	if hasCourseTag(tags) {
		confidence += 0.20
	}
	if template != "unknown" {
		confidence += 0.10
	}
	if requiresConfirmation {
		confidence -= 0.25
	}
	confidence = clamp(confidence, 0, 0.99)

	var evidence []string
	if dueDatePhrase != "" {
		evidence = append(evidence, "due_date_phrase:"+dueDatePhrase)
	}

	card := model.UpdateCard{
		UpdateID:             uuid.NewString(),
		AccountID:            msg.AccountID,
		Source:               msg.Source,
		ProviderMessageID:    msg.ProviderMessageID + part.suffix,
		ProviderThreadID:     msg.ProviderThreadID,
		ReceivedAtUTC:        msg.ReceivedAtUTC,
		Sender:               msg.Sender,
		Subject:              msg.Subject,
		BodyText:             part.body,
		Tags:                 tags,
		ParserMethod:         model.ParserMethodRuleBased,
		ParseConfidence:      confidence,
		Evidence:             evidence,
		RequiresConfirmation: requiresConfirmation,
		ContentHash:          contentHash(part.body),
	}

	return ParsedUpdate{Card: card, Template: template, DueDatePhrase: dueDatePhrase}
}

func classifyTemplate(sender, subject string) string {
	sender = strings.ToLower(sender)
	subject = strings.ToLower(subject)

	switch {
	case strings.Contains(sender, "piazza"):
		switch {
		case strings.Contains(subject, "digest"):
			return "piazza_digest"
		case strings.Contains(subject, "posted") || strings.Contains(subject, "replied"):
			return "piazza_realtime"
		default:
			return "piazza_generic"
		}
	case strings.Contains(sender, "ublearns") || strings.Contains(sender, "blackboard") || strings.Contains(sender, "buffalo.edu"):
		switch {
		case strings.Contains(subject, "assignment"):
			return "ublearns_assignment"
		case strings.Contains(subject, "quiz") || strings.Contains(subject, "test"):
			return "ublearns_quiz"
		case strings.Contains(subject, "announcement"):
			return "ublearns_announcement"
		default:
			return "ublearns_generic"
		}
	default:
		return "unknown"
	}
}

// extractTags returns the full tag set plus the primary "type:" value (sans
// the "type:" prefix) so the caller can apply the confirmation rule without
// re-parsing tags.
func extractTags(subject, body string) (tags []string, primaryType string) {
	combined := strings.ToLower(subject + " " + body)

	if match := courseCodePattern.FindString(subject + " " + body); match != "" {
		code := strings.ToUpper(strings.ReplaceAll(match, " ", ""))
		tags = append(tags, "course:"+code)
	}

	switch {
	case strings.Contains(combined, "assignment") || strings.Contains(combined, "homework"):
		primaryType = "assignment"
	case strings.Contains(combined, "quiz") || strings.Contains(combined, "exam") || strings.Contains(combined, "test"):
		primaryType = "quiz"
	case strings.Contains(combined, "please respond") || strings.Contains(combined, "reply requested") || strings.Contains(combined, "response required"):
		primaryType = "response_required"
	case strings.Contains(combined, "announcement"):
		primaryType = "announcement"
	}
	if primaryType != "" {
		tags = append(tags, "type:"+primaryType)
	}
	return tags, primaryType
}

func hasCourseTag(tags []string) bool {
	for _, t := range tags {
		if strings.HasPrefix(t, "course:") {
			return true
		}
	}
	return false
}

func extractDueDate(text string) string {
	return strings.TrimSpace(dueDatePattern.FindString(text))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func contentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
