package output_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidwatch/raidwatch-go/internal/diag"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

func tables() output.Tables {
	return output.Tables{
		"cleave.warn": {
			"en": "Cleave on ${target}",
			"de": "Cleave auf ${target}",
		},
		"adds.soon": {
			"en": "Adds in ${seconds}s",
		},
	}
}

func TestResolve_RequestedLocale(t *testing.T) {
	r := output.New(tables(), "de", nil)
	got := r.Resolve("cleave.warn", output.Values{"target": output.String("Tank")})
	assert.Equal(t, "Cleave auf Tank", got)
}

func TestResolve_FallbackToDefaultLocale(t *testing.T) {
	counts := diag.NewCounts(nil)
	r := output.New(tables(), "fr", counts)

	got := r.Resolve("adds.soon", output.Values{"seconds": output.String("10")})
	assert.Equal(t, "Adds in 10s", got)
	// Fallback succeeded; not a missing translation.
	assert.Zero(t, counts.Get(diag.MissingTranslation))
}

func TestResolve_MissingKey(t *testing.T) {
	counts := diag.NewCounts(nil)
	r := output.New(tables(), "en", counts)

	got := r.Resolve("no.such.key", nil)
	assert.Equal(t, "\u00abno.such.key\u00bb", got)
	assert.Equal(t, uint64(1), counts.Get(diag.MissingTranslation))
}

func TestResolve_LazyValueEvaluatedAtResolveTime(t *testing.T) {
	r := output.New(tables(), "en", nil)

	seconds := "30"
	vals := output.Values{"seconds": output.Lazy(func() string { return seconds })}
	seconds = "5" // changes after binding, before resolving

	got := r.Resolve("adds.soon", vals)
	assert.Equal(t, "Adds in 5s", got)
}

func TestResolve_UnboundReferenceLeftVerbatim(t *testing.T) {
	r := output.New(tables(), "en", nil)
	got := r.Resolve("cleave.warn", nil)
	assert.Equal(t, "Cleave on ${target}", got)
}

func TestFieldValuesAndMerge(t *testing.T) {
	base := output.FieldValues(map[string]string{"target": "Tank", "source": "Boss"})
	over := output.Values{"target": output.String("Healer")}

	merged := output.Merge(base, over)
	r := output.New(tables(), "en", nil)
	got := r.Resolve("cleave.warn", merged)
	assert.Equal(t, "Cleave on Healer", got)
}

func TestLoadBytes_Valid(t *testing.T) {
	data := []byte(`
version: 1
strings:
  cleave.warn:
    en: "Cleave on ${target}"
`)
	sf, err := output.LoadBytes(data)
	require.NoError(t, err)
	assert.Len(t, sf.Strings, 1)
	assert.Equal(t, "Cleave on ${target}", sf.Strings["cleave.warn"]["en"])
}

func TestLoadBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad version", "version: 2\nstrings:\n  k:\n    en: x\n"},
		{"no strings", "version: 1\nstrings: {}\n"},
		{"empty template", "version: 1\nstrings:\n  k:\n    en: \"\"\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := output.LoadBytes([]byte(tt.data))
			require.Error(t, err)
		})
	}
}
