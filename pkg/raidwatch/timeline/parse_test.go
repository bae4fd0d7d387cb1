package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	script := `# Phase one
0 "Start"
10.5 "Cleave" sync /Cleave casts/ window 5,2.5

30 "Enrage" sync /Enrage/
30 "--reset--" jump "Start"
`
	tl, err := Parse(script)
	require.NoError(t, err)
	require.Equal(t, 4, tl.Len())

	entries := tl.Entries()

	assert.Equal(t, "Start", entries[0].Name)
	assert.Equal(t, 0.0, entries[0].At)
	assert.Nil(t, entries[0].Sync)
	assert.Equal(t, -1, entries[0].jumpIdx)

	assert.Equal(t, "Cleave", entries[1].Name)
	assert.Equal(t, 10.5, entries[1].At)
	require.NotNil(t, entries[1].Sync)
	assert.True(t, entries[1].Sync.MatchString("Boss Cleave casts on you"))
	assert.Equal(t, 5.0, entries[1].WindowBefore)
	assert.Equal(t, 2.5, entries[1].WindowAfter)

	assert.Equal(t, DefaultWindow, entries[2].WindowBefore)
	assert.Equal(t, DefaultWindow, entries[2].WindowAfter)

	assert.Equal(t, "Start", entries[3].Jump)
	assert.Equal(t, 0, entries[3].jumpIdx)
}

func TestParseSymmetricWindow(t *testing.T) {
	tl, err := Parse(`5 "Hit" sync /Hit/ window 4`)
	require.NoError(t, err)
	e := tl.Entries()[0]
	assert.Equal(t, 4.0, e.WindowBefore)
	assert.Equal(t, 4.0, e.WindowAfter)
}

func TestParseJumpResolvesFirstOccurrence(t *testing.T) {
	tl, err := Parse(`0 "Loop"
5 "Go" jump "Loop"
10 "Loop"
`)
	require.NoError(t, err)
	assert.Equal(t, 0, tl.Entries()[1].jumpIdx)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		line   int
	}{
		{
			name:   "malformed entry",
			script: "0 \"Start\"\nnot an entry\n",
			line:   2,
		},
		{
			name:   "missing quotes",
			script: `0 Start`,
			line:   1,
		},
		{
			name:   "non-monotonic timestamp",
			script: "10 \"A\"\n5 \"B\"\n",
			line:   2,
		},
		{
			name:   "window without sync",
			script: `0 "A" window 5`,
			line:   1,
		},
		{
			name:   "invalid sync pattern",
			script: `0 "A" sync /[unclosed/`,
			line:   1,
		},
		{
			name:   "undefined jump target",
			script: "0 \"A\"\n5 \"B\" jump \"Nowhere\"\n",
			line:   2,
		},
		{
			name:   "unrecognized options",
			script: `0 "A" frobnicate`,
			line:   1,
		},
		{
			name:   "trailing garbage after valid option",
			script: `0 "A" sync /x/ blah`,
			line:   1,
		},
		{
			name:   "misspelled option",
			script: `0 "A" sync /x/ windw 2,2`,
			line:   1,
		},
		{
			name:   "duplicate window",
			script: `0 "A" sync /x/ window 2 window 3`,
			line:   1,
		},
		{
			name:   "empty script",
			script: "# only comments\n\n",
			line:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.script)
			require.Error(t, err)

			var entryErr *EntryError
			require.ErrorAs(t, err, &entryErr)
			assert.Equal(t, tt.line, entryErr.Line)
		})
	}
}

func TestParseAllOrNothing(t *testing.T) {
	// One bad entry invalidates the entire script, including the valid
	// entries before it.
	tl, err := Parse("0 \"Good\"\n5 \"Also good\"\nbroken\n")
	require.Error(t, err)
	assert.Nil(t, tl)
}

func TestParseSkipsCommentsAndBlanks(t *testing.T) {
	tl, err := Parse("\n# comment\n\n0 \"Only\"\n# trailing\n")
	require.NoError(t, err)
	require.Equal(t, 1, tl.Len())
	assert.Equal(t, "Only", tl.Entries()[0].Name)
}

func TestParseCRLF(t *testing.T) {
	tl, err := Parse("0 \"A\"\r\n5 \"B\"\r\n")
	require.NoError(t, err)
	assert.Equal(t, 2, tl.Len())
}
