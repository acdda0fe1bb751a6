// Package harness runs PLC scenarios: an application and a Starlark control
// script executed by the real engine on a simulated pin bank.
//
// # Scenario Format
//
// Scenarios are YAML files named *.scenario.yaml:
//
//	name: tank_fill
//	description: "Start opens the valve until the tank is full"
//	application: tank.yaml
//	program: tank.star
//	stop_after: 4
//	pins:
//	  - cycle: 2
//	    set: {"17": true}
//	  - cycle: 4
//	    fail_read: ["23"]
//	expect:
//	  - cycle: 2
//	    outputs:
//	      valve: {state: 1, rising: true}
//	    steps:
//	      filling: {state: 1}
//	outcome: stopped
//	levels: {"22": false}
//
// Pin steps run before the input phase of their cycle. Expectations are a
// subset match on the snapshot recorded after that cycle; for the cycle that
// raised an emergency it is the snapshot after the emergency routine.
//
// # Deterministic Testing
//
// Every run uses a fixed run ID, a fresh in-memory trace store and a
// free-running loop (no cycle period), and the trace is ordered by cycle
// number only. Identical scenarios therefore produce byte-identical traces,
// which RunWithGolden compares against testdata/golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/tank_fill.scenario.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
