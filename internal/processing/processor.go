package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AnonymousSpeaker is used when a submission carries no name.
const AnonymousSpeaker = "Anonyme"

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace = regexp.MustCompile(`\s+`)
	tags       = regexp.MustCompile(`<[^>]*>`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9]+`)
)

// runNamespace scopes generated audit keys so they never collide with
// identifiers from other systems.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("festival-radar/events"))

// Fold lowercases, trims, strips diacritics and squeezes whitespace so that
// "  Mercredi " and "mercredí" compare equal.
func Fold(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, input)
	if err != nil {
		folded = input
	}
	folded = whitespace.ReplaceAllString(strings.ToLower(folded), " ")
	return strings.TrimSpace(folded)
}

// ExtractURLs extracts all HTTP(S) URLs from the input text.
func ExtractURLs(input string) []string {
	if input == "" {
		return nil
	}
	matches := urlRegex.FindAllString(input, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var urls []string
	for _, url := range matches {
		if _, ok := seen[url]; !ok {
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
	}
	return urls
}

// Website returns the first URL found in a free-text field. Bare domains
// are prefixed with https://.
func Website(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if urls := ExtractURLs(input); len(urls) > 0 {
		return urls[0]
	}
	if strings.ContainsAny(input, " \t\n") || !strings.Contains(input, ".") {
		return ""
	}
	return "https://" + input
}

// CleanText decodes HTML entities, drops markup and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = tags.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// Slug builds the URL fragment used for event detail pages.
func Slug(title string) string {
	s := nonSlug.ReplaceAllString(Fold(title), "-")
	return strings.Trim(s, "-")
}

// SpeakerName joins first and last names, falling back to AnonymousSpeaker.
func SpeakerName(first, last string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return AnonymousSpeaker
	}
	return name
}

// EventID derives the stable identifier of a record from its table prefix
// and source id.
func EventID(prefix string, sourceID int64) string {
	return fmt.Sprintf("%s-%d", prefix, sourceID)
}

// AuditKey is a deterministic key for a duplicate group, stable across runs
// as long as the survivor and dropped ids are unchanged.
func AuditKey(ids ...string) string {
	return uuid.NewSHA1(runNamespace, []byte(strings.Join(ids, "|"))).String()
}

// Fingerprint hashes raw payloads for change detection.
func Fingerprint(parts ...[]byte) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateTitleFromText creates a title from the first sentence or first N words of text.
// Returns empty string if text is empty.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	textWithoutURLs := urlRegex.ReplaceAllString(CleanText(text), " ")

	sentenceEnd := strings.IndexAny(textWithoutURLs, ".!?")
	var firstSentence string
	if sentenceEnd > 0 {
		firstSentence = strings.TrimSpace(textWithoutURLs[:sentenceEnd])
	} else {
		firstSentence = textWithoutURLs
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
		return strings.Join(words, " ") + "..."
	}

	return strings.Join(words, " ")
}

// Tags keeps the non-empty values in order, without duplicates.
func Tags(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
