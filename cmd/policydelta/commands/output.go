package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/policydelta/policydelta/pkg/workflow"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// printOperation renders one operation result, honoring the --json flag.
func printOperation(opCtx *workflow.OperationContext) {
	if jsonOutput {
		printJSON(opCtx)
		return
	}

	fmt.Printf("Operation %s: %s\n", opCtx.ID, opCtx.Status)
	if opCtx.Error != "" {
		fmt.Printf("  error: %s\n", opCtx.Error)
	}

	for _, step := range opCtx.Steps {
		line := fmt.Sprintf("  %-20s %-10s %s", step.Name, step.Status, step.Duration.Round(1e6))
		if step.Message != "" {
			line += "  " + step.Message
		}
		fmt.Println(line)
	}

	if diff := opCtx.Diff; diff != nil {
		fmt.Printf("Delta: %s\n", diff.Summary())
		for _, ref := range diff.Create {
			fmt.Printf("  + %s\n", ref.Key)
		}
		for _, u := range diff.Update {
			fmt.Printf("  ~ %s (%v)\n", u.Key, u.Changes.ModifiedProperties)
		}
		for _, ref := range diff.Delete {
			fmt.Printf("  - %s (not applied, PATCH semantics)\n", ref.Key)
		}
		for _, ve := range diff.ValidationErrors {
			fmt.Printf("  ! %s excluded (%s): %s\n", ve.Key, ve.Side, ve.Detail)
		}
	}

	if guard := opCtx.GuardResult; guard != nil && len(guard.Violations) > 0 {
		fmt.Println("Guard violations:")
		for _, v := range guard.Violations {
			fmt.Printf("  [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
		}
	}

	if verification := opCtx.Verification; verification != nil {
		fmt.Printf("Verification: matches=%d mismatches=%d not_found=%d\n",
			verification.Summary.Matches,
			verification.Summary.Mismatches,
			verification.Summary.NotFound)
		for _, r := range verification.Results {
			if r.Outcome != workflow.OutcomeMatch {
				fmt.Printf("  %s %s %s\n", r.Outcome, r.Key, r.Detail)
			}
		}
	}

	for _, artifact := range []struct{ label, path string }{
		{"baseline", opCtx.BaselinePath},
		{"delta", opCtx.DeltaPath},
		{"verification", opCtx.VerificationPath},
	} {
		if artifact.path != "" {
			fmt.Printf("Saved %s: %s\n", artifact.label, artifact.path)
		}
	}
}
