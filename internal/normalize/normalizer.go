package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/notifyr/internal/types"
)

// DefaultSelfSentinel is the reserved sender label meaning "the local user
// authored this notification". The comparison is case-insensitive.
const DefaultSelfSentinel = "You"

// Normalizer turns raw platform payloads into canonical RawEvents. It is a
// pure function of its input: no side effects, no state beyond configuration.
type Normalizer struct {
	selfSentinel string
}

// New creates a Normalizer. An empty sentinel falls back to the default.
func New(selfSentinel string) *Normalizer {
	if selfSentinel == "" {
		selfSentinel = DefaultSelfSentinel
	}
	return &Normalizer{selfSentinel: selfSentinel}
}

// SelfSentinel returns the reserved self sender label in use.
func (n *Normalizer) SelfSentinel() string {
	return n.selfSentinel
}

// IsSelf reports whether a sender hint names the local user.
func (n *Normalizer) IsSelf(sender string) bool {
	return strings.EqualFold(strings.TrimSpace(sender), n.selfSentinel)
}

// Normalize converts a payload into a RawEvent, or rejects it with
// ErrMalformedEvent when there is nothing to display.
func (n *Normalizer) Normalize(p *types.RawPayload) (*types.RawEvent, error) {
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Body) == "" {
		return nil, fmt.Errorf("%w: package %q has empty title and body", types.ErrMalformedEvent, p.PackageID)
	}

	body := flattenBody(p.Body)

	direction := types.Incoming
	sender := strings.TrimSpace(p.Sender)
	if n.IsSelf(sender) {
		direction = types.Outgoing
		sender = n.selfSentinel
	} else if sender == "" {
		sender = strings.TrimSpace(p.Title)
	}

	event := &types.RawEvent{
		ID:           hashID(p),
		PackageID:    p.PackageID,
		Platform:     DetectPlatform(p.PackageID),
		Title:        p.Title,
		Body:         body,
		Sender:       sender,
		Direction:    direction,
		ThreadKey:    threadKey(p),
		Timestamp:    p.Timestamp,
		ReplyCapable: p.ReplyCapable,
		Extras:       p.Extras,
	}
	return event, nil
}

// hashID derives the event identity from the payload content so that
// redelivery of the identical notification produces the identical id.
func hashID(p *types.RawPayload) types.EventID {
	h := sha256.New()
	h.Write([]byte(p.PackageID))
	h.Write([]byte{0})
	h.Write([]byte(p.Title))
	h.Write([]byte{0})
	h.Write([]byte(p.Body))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(p.Timestamp.UnixNano(), 10)))
	return types.EventID(hex.EncodeToString(h.Sum(nil)))
}

// threadKey prefers the platform-provided key and otherwise builds a
// deterministic fallback from package, title, and sender.
func threadKey(p *types.RawPayload) types.ThreadKey {
	if p.ThreadKey != "" {
		return types.ThreadKey(p.ThreadKey)
	}
	return types.NewThreadKey(p.PackageID, p.Title, p.Sender)
}

// flattenBody converts HTML notification bodies to plain markdown text.
// Plain-text bodies pass through untouched.
func flattenBody(body string) string {
	if !looksLikeHTML(body) {
		return body
	}
	md, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		return body
	}
	return strings.TrimSpace(md)
}

func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return false
	}
	return strings.IndexByte(s[open:], '>') > 0
}
