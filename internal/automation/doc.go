// Package automation provides the condition-triggered rule engine for
// Smart Watering Core.
//
// A rule binds one device to a threshold on one measurement and a command.
// Every incoming reading is evaluated against the enabled rules of its
// device; each rule whose condition holds fires once and is dispatched.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│   reading ──▶ Evaluate (evaluate.go, pure)             │
//	│                  │  []Firing, rule-store order         │
//	│                  ▼                                     │
//	│   Dispatcher (dispatch.go), per firing:                │
//	│     1. Publish command to the device topic             │
//	│     2. SetDeviceStatus(device, action)                 │
//	│     3. Append TriggeredAction (audit)                  │
//	│     4. Broadcast WebSocket events, mirror to InfluxDB  │
//	│                                                        │
//	│   Registry (registry.go) ──▶ RuleRepository            │
//	│   cached rules, ListEnabledRules(device)               │
//	└───────────────────────────────────────────────────────┘
//
// Comparison direction is fixed per condition: temperature fires at or
// above its threshold, humidity and moisture at or below. A rule without a
// condition, with an unknown condition, or that is disabled never fires.
// A missing measurement is not an error; the rule simply does not fire.
//
// A failure while dispatching one rule is reported on that rule's
// DispatchResult and never stops the next rule from being attempted.
// Nothing is retried. The engine is level-triggered: the next reading
// re-evaluates every rule from scratch.
//
// Manual commands go through the same publish, status, audit sequence and
// are recorded with source "manual".
//
// # Thread Safety
//
// Registry and Dispatcher are safe for concurrent use.
//
// # Usage
//
//	rules := automation.NewRegistry(automation.NewSQLiteRuleRepository(db), directory)
//	if err := rules.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	dispatcher := automation.NewDispatcher(automation.DispatcherDeps{
//	    Devices:   directory,
//	    Publisher: publisher,
//	    State:     deviceRegistry,
//	    Actions:   automation.NewSQLiteActionRepository(db),
//	})
//	results := dispatcher.Dispatch(ctx, dev, reading, automation.Evaluate(reading, enabled))
package automation
