package raidwatch_test

import (
	"fmt"

	"github.com/raidwatch/raidwatch-go/pkg/raidwatch"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

// Feed a captured line through an engine with one trigger and print the
// resulting alert.
func Example() {
	engine, err := raidwatch.New(
		raidwatch.WithTables(output.Tables{
			"cleave.warn": {
				"en": "Cleave on ${target}",
				"de": "Rundumschlag auf ${target}",
			},
		}),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer engine.Close()

	err = engine.LoadTriggerBytes([]byte(`
version: 1
triggers:
  - id: cleave
    event: ability_used
    match:
      ability: "Cleave"
    severity: alert
    text: cleave.warn
`))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	_ = engine.OnLine(`21|2024-03-01T20:00:00.0000000+00:00|10FF|Ravana|4A3B|Cleave|20AB|Tank One`)

	alert := <-engine.Alerts()
	fmt.Printf("[%s] %s\n", alert.Severity, alert.Text)
	// Output: [alert] Cleave on Tank One
}
