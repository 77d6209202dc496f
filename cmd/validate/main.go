// Package main provides a CLI tool for validating a reconciliation
// server deployment, or a classification rules file offline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"billrecon/internal/services/classifier"
)

type endpoint struct {
	path        string
	method      string
	contentType string
	contains    []string
}

var endpoints = []endpoint{
	{path: "/api/health", method: "GET", contentType: "application/json", contains: []string{`"status":"ok"`}},
	{path: "/api/version", method: "GET", contentType: "application/json", contains: []string{`"version"`}},
	{path: "/api/metrics", method: "GET", contentType: "application/json", contains: []string{`"tables"`, `"rulesVersion"`}},
	{path: "/api/tables/", method: "GET", contentType: "application/json", contains: []string{`"tables"`}},
	{path: "/api/mappings/", method: "GET", contentType: "application/json", contains: []string{`"mappings"`}},
	{path: "/api/rules", method: "GET", contentType: "application/json", contains: []string{`"rules"`, `"version"`}},
}

type result struct {
	endpoint endpoint
	status   int
	duration time.Duration
	err      error
	body     string
}

func main() {
	url := flag.String("url", "http://localhost:8080", "Base URL of the server to validate")
	rulesFile := flag.String("rules", "", "Validate a classification rules JSON file instead of a server")
	verbose := flag.Bool("v", false, "Verbose output")
	timeout := flag.Int("timeout", 10, "Request timeout in seconds")
	flag.Parse()

	if *rulesFile != "" {
		if err := validateRulesFile(*rulesFile, *verbose); err != nil {
			fmt.Printf("FAIL %s\n     %v\n", *rulesFile, err)
			os.Exit(1)
		}
		fmt.Printf("PASS %s\n", *rulesFile)
		return
	}

	client := &http.Client{
		Timeout: time.Duration(*timeout) * time.Second,
	}

	fmt.Printf("Validating server at %s\n", *url)
	fmt.Printf("Testing %d endpoints...\n\n", len(endpoints))

	var passed, failed int

	for _, ep := range endpoints {
		r := validateEndpoint(client, *url, ep)

		if r.err != nil {
			failed++
			fmt.Printf("FAIL %s %s\n", ep.method, ep.path)
			fmt.Printf("     Error: %v\n", r.err)
		} else if r.status != http.StatusOK {
			failed++
			fmt.Printf("FAIL %s %s\n", ep.method, ep.path)
			fmt.Printf("     Status: %d (expected 200)\n", r.status)
		} else {
			passed++
			if *verbose {
				fmt.Printf("PASS %s %s (%v)\n", ep.method, ep.path, r.duration)
			}
		}
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Results: %d passed, %d failed\n", passed, failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// validateRulesFile compiles a rules JSON file without touching a
// server, so rule edits can be checked before deployment.
func validateRulesFile(path string, verbose bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var rules []classifier.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if len(rules) == 0 {
		return fmt.Errorf("rules file is empty")
	}
	if err := classifier.Compile(rules); err != nil {
		return err
	}

	if verbose {
		for i, r := range rules {
			fmt.Printf("  rule %d: %q -> %s\n", i, r.Pattern, r.Category)
		}
	}
	fmt.Printf("%d rules compiled\n", len(rules))
	return nil
}

func validateEndpoint(client *http.Client, baseURL string, ep endpoint) result {
	start := time.Now()

	req, err := http.NewRequest(ep.method, baseURL+ep.path, nil)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to read body: %w", err)}
	}

	duration := time.Since(start)

	r := result{
		endpoint: ep,
		status:   resp.StatusCode,
		duration: duration,
		body:     string(body),
	}

	// Validate content type
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, ep.contentType) {
		r.err = fmt.Errorf("wrong content type: got %q, expected %q", ct, ep.contentType)
		return r
	}

	// Validate JSON if expected
	if ep.contentType == "application/json" {
		var js interface{}
		if err := json.Unmarshal(body, &js); err != nil {
			r.err = fmt.Errorf("invalid JSON: %w", err)
			return r
		}
	}

	// Validate required content
	for _, needle := range ep.contains {
		if !strings.Contains(r.body, needle) {
			r.err = fmt.Errorf("missing expected content: %q", needle)
			return r
		}
	}

	return r
}
