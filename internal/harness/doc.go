// Package harness provides conformance testing for knowledge bases.
//
// A scenario loads a knowledge base, optionally merges a second one into
// it, runs inference on a fresh engine and checks assertions against the
// final fact set.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: zebra_inference
//	description: "Striped hoofed animals are classified as zebras"
//	kb: ../kb/zebra.yaml
//	facts:
//	  - {pred: has-stripes, args: [zoe], deg: 0.6}
//	rules:
//	  - name: fast
//	    cond: [{pred: zebra, args: ["?x"]}]
//	    actions: [{action: add, fact: {pred: fast, args: ["?x"]}}]
//	max_iterations: 10
//	merge_with: ../kb/savanna.yaml
//	strategy: smart
//	assertions:
//	  - type: fact_degree
//	    pred: zebra
//	    args: [zed]
//	    degree: 0.8
//	  - type: fact_absent
//	    pred: zebra
//	    args: [tom]
//	  - type: fact_count
//	    pred: zebra
//	    count: 1
//	  - type: converged
//
// Paths are relative to the scenario file. Inline facts and rules use the
// same shape as knowledge base documents and are added after the kb file.
//
// # Assertion Types
//
//   - fact_degree: the fact exists with the given degree (within tolerance)
//   - fact_absent: no fact matches pred and args
//   - fact_count: number of facts with pred, or of all facts when pred is empty
//   - converged: the run reached a fixpoint
//   - non_convergent: the run hit its iteration cap
//   - conflict_count: number of conflicts detected by a smart merge
//
// # Deterministic Testing
//
// Every scenario runs on a new engine with a fixed session id, so the
// final fact set and the firing sequence are identical across runs. The
// golden snapshot (see RunWithGolden) records the final state, iteration
// count and facts with degrees rounded to four places.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/zebra.yaml")
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
