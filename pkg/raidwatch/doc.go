// Package raidwatch matches game combat-log lines against data-declared
// trigger rules and scripted encounter timelines, and turns matches into
// localized, scheduled alerts.
//
// This package allows you to:
//   - Parse pipe-delimited network log lines into structured events
//   - Declare triggers in YAML: match expressions, delays, suppression
//   - Run encounter timelines with a resynchronizing virtual clock
//   - Localize alert text through template tables with lazy values
//
// # Basic Usage
//
// To follow the live log and print alerts:
//
//	engine, err := raidwatch.New(
//	    raidwatch.WithStrings("strings.yaml"),
//	    raidwatch.WithLocale("de"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.LoadTriggerFile("triggers.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	go func() {
//	    for alert := range engine.Alerts() {
//	        fmt.Printf("[%s] %s\n", alert.Severity, alert.Text)
//	    }
//	}()
//
//	if err := raidwatch.Watch(ctx, engine); err != nil {
//	    log.Fatal(err)
//	}
//
// To feed lines yourself, call [Engine.OnLine] from a single goroutine:
//
//	for scanner.Scan() {
//	    _ = engine.OnLine(scanner.Text())
//	}
//
// # Conditions and Actions
//
// Trigger files may name registered callbacks. Register them before
// loading the file:
//
//	funcs := trigger.NewFuncs()
//	funcs.RegisterCondition("phase_two", func(st *trigger.State, f trigger.Fields) bool {
//	    return st.GetString("phase") == "2"
//	})
//	engine, err := raidwatch.New(raidwatch.WithFuncs(funcs))
//
// # Timelines
//
// Timeline scripts are plain text, one entry per line:
//
//	0    "Engage"
//	10.5 "Cleave" sync /Ravana uses Cleave/ window 2,2
//	50   "Loop" jump "Cleave"
//
// Load with [Engine.LoadTimeline] and start on pull with
// [Engine.StartTimeline]. Sync patterns snap the virtual clock to the
// script so entries stay accurate across kill-time variance.
package raidwatch
