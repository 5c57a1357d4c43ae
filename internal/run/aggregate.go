package run

import (
	"time"

	"ddtcms/internal/api"
)

// BuildReport aggregates a terminal status payload into the hierarchical
// report: steps grouped by case name, then scenario name, in first-seen
// order. Steps the executor reported without a case or scenario association
// land in the "Unknown" bucket.
//
// The totals and duration are copied from the payload; the executor is
// authoritative for pass/fail accounting and the breakdown is display-only.
func BuildReport(resp api.RunStatusResponse) *Report {
	rep := &Report{
		PassedSteps: resp.PassedSteps,
		FailedSteps: resp.FailedSteps,
		Duration:    time.Duration(resp.DurationMS) * time.Millisecond,
		Failure:     resp.Error,
	}

	caseIndex := make(map[string]int)
	scenarioIndex := make(map[string]map[string]int)

	for _, st := range resp.Steps {
		caseName := st.CaseName
		if caseName == "" {
			caseName = UnknownBucket
		}
		scenarioName := st.ScenarioName
		if scenarioName == "" {
			scenarioName = UnknownBucket
		}

		ci, ok := caseIndex[caseName]
		if !ok {
			ci = len(rep.Cases)
			caseIndex[caseName] = ci
			scenarioIndex[caseName] = make(map[string]int)
			rep.Cases = append(rep.Cases, CaseResult{Name: caseName})
		}

		si, ok := scenarioIndex[caseName][scenarioName]
		if !ok {
			si = len(rep.Cases[ci].Scenarios)
			scenarioIndex[caseName][scenarioName] = si
			rep.Cases[ci].Scenarios = append(rep.Cases[ci].Scenarios, ScenarioResult{Name: scenarioName})
		}

		rep.Cases[ci].Scenarios[si].Steps = append(rep.Cases[ci].Scenarios[si].Steps, StepResult{
			Definition: st.Definition,
			Passed:     st.Passed,
			Error:      st.Error,
			Duration:   time.Duration(st.DurationMS) * time.Millisecond,
		})
	}

	return rep
}
