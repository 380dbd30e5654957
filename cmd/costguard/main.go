// Command costguard evaluates policies from the command line. Exit code 0
// means the check passed, 2 means a policy violation, and 1 means the tool
// itself failed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/internal/policy/policyfile"
	"github.com/cloudgov/costguard/internal/policy/tags"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitViolation = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return exitFailure
	}

	switch args[0] {
	case "check":
		return runCheck(args[1:], stdin, stdout, stderr)
	case "forecast":
		return runForecast(args[1:], stdin, stdout, stderr)
	case "audit":
		return runAudit(args[1:], stdin, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitFailure
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: costguard <command> [flags]

commands:
  check budget|tags   evaluate a policy against facts
  forecast            project spend from budget facts
  audit               audit tag compliance across resources

flags:
  -input FILE    facts JSON (default: stdin)
  -policy FILE   policy YAML (default: built-in defaults)`)
}

// checkFlags parses the flags shared by every subcommand
func checkFlags(name string, args []string, stderr io.Writer) (inputPath, policyPath string, rest []string, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&inputPath, "input", "", "facts JSON file (default: stdin)")
	fs.StringVar(&policyPath, "policy", "", "policy YAML file")
	if err := fs.Parse(args); err != nil {
		return "", "", nil, false
	}
	return inputPath, policyPath, fs.Args(), true
}

func loadPolicies(path string, stderr io.Writer) (*policyfile.File, bool) {
	if path == "" {
		return policyfile.Default(), true
	}
	f, err := policyfile.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return nil, false
	}
	return f, true
}

func readInput(path string, stdin io.Reader, stderr io.Writer, v interface{}) bool {
	var r io.Reader = stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return false
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		fmt.Fprintf(stderr, "error: invalid facts JSON: %v\n", err)
		return false
	}
	return true
}

func printVerdict(stdout io.Writer, v policy.Verdict) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(stdout, string(out))
}

func runCheck(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "error: check requires a domain: budget or tags")
		return exitFailure
	}
	domain := args[0]

	inputPath, policyPath, _, ok := checkFlags("check "+domain, args[1:], stderr)
	if !ok {
		return exitFailure
	}
	policies, ok := loadPolicies(policyPath, stderr)
	if !ok {
		return exitFailure
	}

	var verdict policy.Verdict
	switch domain {
	case "budget":
		var facts budget.Facts
		if !readInput(inputPath, stdin, stderr, &facts) {
			return exitFailure
		}
		if err := budget.ValidateFacts(facts); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitFailure
		}
		verdict = policy.Evaluate(policies.BudgetPolicy(), facts)
	case "tags":
		var facts tags.Facts
		if !readInput(inputPath, stdin, stderr, &facts) {
			return exitFailure
		}
		if err := tags.ValidateFacts(facts); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitFailure
		}
		verdict = policy.Evaluate(policies.TagPolicy(), facts)
	default:
		fmt.Fprintf(stderr, "error: unknown domain %q: must be budget or tags\n", domain)
		return exitFailure
	}

	printVerdict(stdout, verdict)
	if !verdict.Allow || len(verdict.Violations) > 0 {
		return exitViolation
	}
	return exitOK
}

func runForecast(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inputPath, policyPath, _, ok := checkFlags("forecast", args, stderr)
	if !ok {
		return exitFailure
	}
	policies, ok := loadPolicies(policyPath, stderr)
	if !ok {
		return exitFailure
	}

	var facts budget.Facts
	if !readInput(inputPath, stdin, stderr, &facts) {
		return exitFailure
	}
	if err := budget.ValidateFacts(facts); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}

	report := budget.Forecast(facts, policies.Budget)
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Fprintln(stdout, string(out))

	if report.WillExceedBudget {
		return exitViolation
	}
	return exitOK
}

func runAudit(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	inputPath, policyPath, _, ok := checkFlags("audit", args, stderr)
	if !ok {
		return exitFailure
	}
	policies, ok := loadPolicies(policyPath, stderr)
	if !ok {
		return exitFailure
	}

	var resources []tags.Resource
	if !readInput(inputPath, stdin, stderr, &resources) {
		return exitFailure
	}

	result := tags.AuditResources(policies.TagPolicy(), resources)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(stdout, string(out))

	if result.NonCompliant > 0 {
		return exitViolation
	}
	return exitOK
}
