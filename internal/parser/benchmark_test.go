package parser

import (
	"testing"
)

// BenchmarkParse_AbilityUsed benchmarks parsing an ability resolution line.
func BenchmarkParse_AbilityUsed(b *testing.B) {
	line := "21|2024-01-15T23:59:59.1234567+09:00|10FF0001|Ravana|4A3B|Blinding Blade|10FF0002|Warrior of Light"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Parse(line)
	}
}

// BenchmarkParse_StatusApplied benchmarks parsing a status gain line.
func BenchmarkParse_StatusApplied(b *testing.B) {
	line := "26|2024-01-15T23:59:59.1234567+09:00|01A8|Vulnerability Up|15.00|10FF0001|Ravana|10FF0002|Warrior of Light"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Parse(line)
	}
}

// BenchmarkParse_UnknownCode benchmarks the fast path for uninteresting codes.
func BenchmarkParse_UnknownCode(b *testing.B) {
	line := "37|2024-01-15T23:59:59.1234567+09:00|10FF0002|Warrior of Light|0000"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Parse(line)
	}
}

// BenchmarkParse_NotALogLine benchmarks rejecting free-form text.
func BenchmarkParse_NotALogLine(b *testing.B) {
	line := "This is not a combat log line"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Parse(line)
	}
}

// BenchmarkParse_LongMessage benchmarks parsing a chat line with a long message.
func BenchmarkParse_LongMessage(b *testing.B) {
	msg := "The wind howls as the mountain trembles and the seal binding the primal weakens further and further"
	line := "00|2024-01-15T23:59:59.1234567+09:00|0839||" + msg

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Parse(line)
	}
}
