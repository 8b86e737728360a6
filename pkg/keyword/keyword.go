package keyword

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// DefaultCategory is used when a keyword is registered without a category.
const DefaultCategory = "keyword"

// Keyword is one registered keyword. ID is assigned by the Registry.
type Keyword struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

func (k Keyword) String() string {
	return fmt.Sprintf("Keyword(id=%d, text=%q, category=%q)", k.ID, k.Text, k.Category)
}

// Entry is a (text, category) pair waiting to be registered.
type Entry struct {
	Text     string `json:"text" yaml:"text"`
	Category string `json:"category" yaml:"category"`
}

// Fold returns the full Unicode case folding of s. Folding is not length
// preserving ("ß" folds to "ss").
func Fold(s string) string {
	if isASCII(s) {
		return strings.ToLower(s)
	}
	return cases.Fold().String(s)
}

// FoldRune folds a single rune. The result may hold more than one rune.
func FoldRune(r rune) string {
	if r < utf8.RuneSelf {
		if 'A' <= r && r <= 'Z' {
			r += 'a' - 'A'
		}
		return string(r)
	}
	return cases.Fold().String(string(r))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
