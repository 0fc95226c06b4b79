package shellquote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteLeavesSimpleArgsBare(t *testing.T) {
	assert.Equal(t, "main.go", Quote("main.go"))
	assert.Equal(t, "a-b_c.d/e:f=g,h", Quote("a-b_c.d/e:f=g,h"))
}

func TestQuoteEscapesSpecialChars(t *testing.T) {
	assert.Equal(t, "''", Quote(""))
	assert.Equal(t, "'hello world'", Quote("hello world"))
	assert.Equal(t, `'it'"'"'s'`, Quote("it's"))
}

func TestJoinCombinesArgs(t *testing.T) {
	got := Join([]string{"git", "commit", "-m", "fix: it's broken"})
	assert.Equal(t, `git commit -m 'fix: it'"'"'s broken'`, got)
}
