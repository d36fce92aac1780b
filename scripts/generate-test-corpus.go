//go:build ignore

// Package main generates a synthetic HR policy folder for exercising ingest.
// Usage: go run scripts/generate-test-corpus.go -files 200 -output testdata/policies
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 200, "Number of policy documents to generate")
	outputDir = flag.String("output", "testdata/policies", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	sections  = flag.Int("sections", 6, "Sections per document")
)

var topics = []string{
	"Annual Leave", "Sick Leave", "Parental Leave", "Remote Work", "Travel and Expenses",
	"Code of Conduct", "Health Insurance", "Retirement Plan", "Performance Reviews",
	"Learning and Development", "Equipment", "Overtime", "Public Holidays", "Relocation",
	"Whistleblowing", "Data Protection", "Onboarding", "Offboarding",
}

var departments = []string{"benefits", "conduct", "leave", "operations", "people"}

var subjects = []string{
	"Full-time employees", "Part-time employees", "Contractors", "Managers",
	"New hires", "Employees on probation", "Team leads", "Interns",
}

var verbs = []string{
	"are entitled to", "must request", "may carry over", "should report",
	"are eligible for", "must complete", "can apply for", "are required to submit",
}

var objects = []string{
	"twenty days of paid leave per calendar year",
	"a written approval from their line manager",
	"up to five unused days into the next year",
	"any incident within two business days",
	"reimbursement of approved travel costs",
	"the mandatory compliance training",
	"a home office allowance of 500 EUR",
	"receipts through the expense portal",
}

var conditions = []string{
	"after completing six months of service",
	"unless local law requires otherwise",
	"subject to budget availability",
	"with at least two weeks notice",
	"in line with the regional agreement",
	"",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, dep := range departments {
		if err := os.MkdirAll(filepath.Join(*outputDir, dep), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", dep, err)
			os.Exit(1)
		}
	}

	var total int
	for i := 0; i < *numFiles; i++ {
		topic := topics[rng.Intn(len(topics))]
		dep := departments[rng.Intn(len(departments))]
		name := fmt.Sprintf("%s-%04d.txt", strings.ToLower(strings.ReplaceAll(topic, " ", "-")), i)
		body := document(rng, topic, *sections)

		path := filepath.Join(*outputDir, dep, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		total += len(body)
	}

	fmt.Printf("Generated %d documents (%d KB) in %s\n", *numFiles, total/1024, *outputDir)
}

func document(rng *rand.Rand, topic string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Policy\n\n", topic)
	fmt.Fprintf(&b, "Effective from %d-%02d-01. This policy applies to all entities of the company.\n\n",
		2020+rng.Intn(6), 1+rng.Intn(12))

	for s := 1; s <= n; s++ {
		fmt.Fprintf(&b, "%d. %s\n\n", s, topics[rng.Intn(len(topics))])
		for p := 0; p < 2+rng.Intn(3); p++ {
			b.WriteString(sentence(rng))
			b.WriteString(" ")
			b.WriteString(sentence(rng))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func sentence(rng *rand.Rand) string {
	s := fmt.Sprintf("%s %s %s", subjects[rng.Intn(len(subjects))], verbs[rng.Intn(len(verbs))], objects[rng.Intn(len(objects))])
	if c := conditions[rng.Intn(len(conditions))]; c != "" {
		s += " " + c
	}
	return s + "."
}
