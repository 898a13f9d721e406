// Command allcities is the second entry point of spec §6: it drives
// cities in parallel, one `sweep` process per city, producing
// independent sweeps and independent cost counters that are never
// merged into one number (spec §5 "Shared-resource policy" /
// "if multiple sweeps run in parallel they own separate counters") --
// only aggregated here for a human-readable summary.
//
// Grounded on original_source/pipeline/run_all_cities.py, translated
// from Python's multiprocessing.Process into os/exec subprocesses of
// the cmd/sweep binary, one per city, running concurrently via
// goroutines; --watch keeps robfig/cron/v3 wired for a continuous
// re-run mode the way cmd/sweep's own --watch does.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// defaultCities is the fixed city list the original runner hardcodes.
var defaultCities = []string{"lon", "nyc", "den"}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("allcities", flag.ContinueOnError)
	maxJobs := fs.Int("max-jobs", 100, "maximum jobs to fetch per city")
	sources := fs.String("sources", "adzuna,greenhouse", "comma-separated sources, forwarded to each city's sweep")
	companies := fs.String("companies", "", "comma-separated employer slugs, forwarded to each city's sweep")
	resumeHours := fs.Int("resume-hours", 0, "resume window in hours, forwarded to each city's sweep")
	citiesFlag := fs.String("cities", strings.Join(defaultCities, ","), "comma-separated city codes to run in parallel")
	sweepPath := fs.String("sweep-binary", "", "path to the sweep binary; defaults to ./sweep next to this binary")
	watchCron := fs.String("watch", "", "if set, a cron expression re-running the full city fan-out continuously")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	binary, err := resolveSweepBinary(*sweepPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	cities := splitCSV(*citiesFlag)
	if len(cities) == 0 {
		cities = defaultCities
	}

	params := fanOutParams{
		binary:      binary,
		cities:      cities,
		maxJobs:     *maxJobs,
		sources:     *sources,
		companies:   *companies,
		resumeHours: *resumeHours,
	}

	if *watchCron == "" {
		return runFanOut(params)
	}

	c := cron.New()
	_, err = c.AddFunc(*watchCron, func() {
		if code := runFanOut(params); code != 0 {
			fmt.Fprintf(os.Stderr, "scheduled run exited with code %d\n", code)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --watch cron expression: %v\n", err)
		return 2
	}
	c.Start()
	select {} // the cron scheduler runs forever; CTRL-C terminates the process
}

type fanOutParams struct {
	binary      string
	cities      []string
	maxJobs     int
	sources     string
	companies   string
	resumeHours int
}

type cityResult struct {
	city     string
	exitCode int
	err      error
	costLine string
}

// runFanOut launches one sweep subprocess per city concurrently, waits
// for all of them, and prints the independent-counters summary.
func runFanOut(p fanOutParams) int {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("PARALLEL JOB FETCH FOR ALL CITIES")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Cities: %s\n", strings.Join(p.cities, ", "))
	fmt.Printf("Max jobs per city: %d\n", p.maxJobs)
	fmt.Printf("Sources: %s\n", p.sources)
	fmt.Println(strings.Repeat("=", 60))

	var wg sync.WaitGroup
	results := make([]cityResult, len(p.cities))

	for i, city := range p.cities {
		wg.Add(1)
		go func(i int, city string) {
			defer wg.Done()
			results[i] = runCity(p, city)
		}(i, city)
	}
	wg.Wait()

	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("ALL CITIES COMPLETED")
	fmt.Println(strings.Repeat("=", 60))

	exitCode := 0
	var totalCost float64
	for _, r := range results {
		status := "ok"
		if r.err != nil || r.exitCode != 0 {
			status = fmt.Sprintf("failed (exit %d): %v", r.exitCode, r.err)
			exitCode = 1
		}
		fmt.Printf("  %-6s %s %s\n", strings.ToUpper(r.city), status, r.costLine)
		totalCost += parseCostLine(r.costLine)
	}
	fmt.Printf("\ncombined classification cost across cities (summary only, not a shared counter): $%.4f\n", totalCost)
	return exitCode
}

var costLinePattern = regexp.MustCompile(`\$([0-9]+\.[0-9]+) classification`)

// parseCostLine scrapes cmd/sweep's own "$X.XXXX classification" text out
// of its stdout for the summary total; each city's sweep still owns its
// own independent accumulator per spec §5.
func parseCostLine(costLine string) float64 {
	m := costLinePattern.FindStringSubmatch(costLine)
	if len(m) != 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// runCity runs one sweep subprocess to completion, capturing its last
// cost line for the summary without otherwise touching its independent
// stats.
func runCity(p fanOutParams, city string) cityResult {
	args := []string{city, strconv.Itoa(p.maxJobs), "--sources", p.sources}
	if p.companies != "" {
		args = append(args, "--companies", p.companies)
	}
	if p.resumeHours > 0 {
		args = append(args, "--resume-hours", strconv.Itoa(p.resumeHours))
	}

	cmd := exec.Command(p.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return cityResult{city: city, exitCode: 1, err: err}
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return cityResult{city: city, exitCode: 1, err: err}
	}

	var lastCostLine string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Printf("[%s] %s\n", city, line)
		if strings.Contains(line, "classification") {
			lastCostLine = line
		}
	}

	err = cmd.Wait()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = 1
	}
	return cityResult{city: city, exitCode: exitCode, err: nilIfZero(err, exitCode), costLine: lastCostLine}
}

func nilIfZero(err error, exitCode int) error {
	if exitCode == 0 {
		return nil
	}
	return err
}

func resolveSweepBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve own executable path: %w", err)
	}
	candidate := filepath.Join(filepath.Dir(self), "sweep")
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("sweep binary not found at %s (pass --sweep-binary): %w", candidate, err)
	}
	return candidate, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
