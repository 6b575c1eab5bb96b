package message

import (
	"regexp"
	"sort"
	"strings"

	"github.com/afeedhshaji/mobai-relay/internal/signal"
)

var spaceRe = regexp.MustCompile(`\s+`)

type Message struct {
	SourceNumber string
	SourceUUID   string
	GroupID      string
	RawText      string
	CleanText    string
	Mentions     []signal.Mention
	BotMentioned bool
	FromSelf     bool
	Quote        *signal.Quote
}

// Direct reports a 1:1 conversation with the bot.
func (m Message) Direct() bool {
	return m.GroupID == ""
}

// ShouldRelay reports whether the bot should answer: direct messages always,
// group messages only when the bot is mentioned.
func (m Message) ShouldRelay() bool {
	if m.FromSelf || m.CleanText == "" {
		return false
	}
	return m.Direct() || m.BotMentioned
}

// Prompt is the text sent to the assistant. A quoted message is included as
// context for the question.
func (m Message) Prompt() string {
	if m.Quote == nil {
		return m.CleanText
	}
	return "In reply to: \"" + m.Quote.Text + "\"\n" + m.CleanText
}

// Extract pulls the fields the relay needs out of a signal envelope.
func Extract(envelope *signal.Envelope, botNumber, botUUID string) Message {
	var m Message
	if envelope == nil {
		return m
	}

	m.SourceNumber = envelope.SourceNumber
	m.SourceUUID = envelope.SourceUUID
	m.FromSelf = (botNumber != "" && NormalizePhone(envelope.SourceNumber) == NormalizePhone(botNumber)) ||
		(botUUID != "" && envelope.SourceUUID == botUUID)

	dm := envelope.DataMessage
	if dm == nil {
		return m
	}
	m.RawText = dm.Message
	m.CleanText = strings.TrimSpace(dm.Message)
	if dm.GroupInfo != nil {
		m.GroupID = dm.GroupInfo.GroupID
	}

	if len(dm.Mentions) > 0 {
		m.Mentions = dm.Mentions
		m.CleanText = RemoveMentionsFromText(m.RawText, m.Mentions)
		for _, men := range m.Mentions {
			if mentionsBot(men, botNumber, botUUID) {
				m.BotMentioned = true
				break
			}
		}
	} else if botNumber != "" && strings.Contains(m.CleanText, botNumber) {
		m.BotMentioned = true
		m.CleanText = strings.TrimSpace(strings.ReplaceAll(m.CleanText, botNumber, ""))
	}

	if dm.Quote != nil && dm.Quote.Text != "" {
		q := *dm.Quote
		if q.Author == "" {
			q.Author = q.AuthorUUID
		}
		m.Quote = &q
	}
	return m
}

func mentionsBot(men signal.Mention, botNumber, botUUID string) bool {
	if men.Number != "" && botNumber != "" && NormalizePhone(men.Number) == NormalizePhone(botNumber) {
		return true
	}
	return men.UUID != "" && botUUID != "" && men.UUID == botUUID
}

// RemoveMentionsFromText cuts every mention span out of s and collapses the
// remaining whitespace. Spans are rune offsets.
func RemoveMentionsFromText(s string, mentions []signal.Mention) string {
	if s == "" || len(mentions) == 0 {
		return strings.TrimSpace(s)
	}

	// Cut from the back so earlier offsets stay valid.
	sorted := make([]signal.Mention, len(mentions))
	copy(sorted, mentions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	runes := []rune(s)
	for _, mm := range sorted {
		start := max(mm.Start, 0)
		if mm.Length <= 0 || start >= len(runes) {
			continue
		}
		end := min(start+mm.Length, len(runes))
		runes = append(runes[:start], runes[end:]...)
	}
	return spaceRe.ReplaceAllString(strings.TrimSpace(string(runes)), " ")
}

// NormalizePhone strips spaces from a phone number
func NormalizePhone(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
}

// TargetLabel returns a log label for where the message came from
func TargetLabel(m Message) string {
	switch {
	case m.GroupID != "":
		return "group " + m.GroupID
	case m.SourceNumber != "":
		return "user " + m.SourceNumber
	case m.SourceUUID != "":
		return "user-uuid " + m.SourceUUID
	}
	return "unknown"
}
