package phoenix

import (
	"crypto/sha256"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/eljojo/phoenix/types"
	"github.com/mr-tron/base58"
)

// Content types understood by the processor
const (
	TypeInit   = "init"   // First message of a feed
	TypePost   = "post"   // Text post, optionally a reply
	TypeAdvert = "advert" // Advertisement text
	TypeName   = "name"   // Name assignment (self or others via "names" links)
	TypeTrust  = "trust"  // Trust edge (only honored from the local identity)
)

// Link relations
const (
	RelRepliesTo = "replies-to"
	RelMentions  = "mentions"
	RelNames     = "names"
	RelTrusts    = "trusts"
)

// Link is a typed relation from a message to a feed or another message.
type Link struct {
	Rel   string       `json:"rel"`
	Feed  types.FeedID `json:"feed,omitempty"`
	Msg   types.MsgKey `json:"msg,omitempty"`
	Value any          `json:"value,omitempty"`
}

// Content is the typed body of a message. Only the fields relevant to Type are set.
type Content struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Name  string `json:"name,omitempty"`
	Links []Link `json:"links,omitempty"`
}

// LinksOf returns the links with the given relation, in message order.
func (c Content) LinksOf(rel string) []Link {
	var out []Link
	for _, l := range c.Links {
		if l.Rel == rel {
			out = append(out, l)
		}
	}
	return out
}

// Message is an immutable, already-verified entry of an author's feed.
//
// IMPORTANT: Timestamp is in MILLISECONDS (time.Now().UnixMilli())
type Message struct {
	Key       types.MsgKey `json:"key"`
	Author    types.FeedID `json:"author"`
	Sequence  int64        `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
	Content   Content      `json:"content"`
}

// ComputeKey derives the content-addressed key of a message.
//
// The key covers author, sequence, timestamp and content, so two appends of the
// same content by the same author still get distinct keys.
func ComputeKey(author types.FeedID, sequence, timestamp int64, content Content) types.MsgKey {
	data := struct {
		Author    types.FeedID `json:"author"`
		Sequence  int64        `json:"sequence"`
		Timestamp int64        `json:"timestamp"`
		Content   Content      `json:"content"`
	}{author, sequence, timestamp, content}

	b, _ := json.Marshal(data)
	sum := sha256.Sum256(b)
	return types.MsgKey("%" + base58.Encode(sum[:]) + ".sha256")
}

func empty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// noSpaces replaces every unicode whitespace rune with an underscore.
func noSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
}

// truthy interprets a link value the way trust edges are declared: booleans,
// positive numbers and numeric/boolean strings.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val > 0
	case float32:
		return val > 0
	case int:
		return val > 0
	case int64:
		return val > 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f > 0
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		f, err := strconv.ParseFloat(val, 64)
		return err == nil && f > 0
	default:
		return false
	}
}

var mentionRgx = regexp.MustCompile(`(\s|^)@([A-Za-z0-9/=.+]+)`)

// extractMentions turns every @feed in the text into a "mentions" link.
// Feed ids keep their leading sigil.
func extractMentions(content Content) Content {
	for _, m := range mentionRgx.FindAllStringSubmatch(content.Text, -1) {
		content.Links = append(content.Links, Link{Rel: RelMentions, Feed: types.FeedID("@" + m[2])})
	}
	return content
}
