//go:build ignore

// This file runs the portal test suite package by package.
// Run with: go run run_tests.go

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

func main() {
	fmt.Println("Running Image Processing Portal test suite")
	fmt.Println(strings.Repeat("=", 40))

	testPackages := []struct {
		name        string
		path        string
		description string
	}{
		{"Models", "./models", "Status transitions and settings split"},
		{"Config", "./config", "JSON and YAML loading, defaults, validation"},
		{"Logger", "./logger", "Level parsing and handler setup"},
		{"Database", "./database", "Schema, queries and transactional claims"},
		{"Storage", "./storage", "Directory layout and filename sanitizing"},
		{"Notify", "./notify", "Email and Slack channels, dispatcher"},
		{"Auth", "./auth", "Registration, tokens, approval, internal gate"},
		{"Experiments", "./experiments", "Submission, quota, queue, retention"},
		{"Handlers", "./handlers", "HTTP surface"},
		{"Integration", ".", "End-to-end workflows and security checks"},
	}

	allPassed := true
	for _, test := range testPackages {
		fmt.Printf("\nRunning %s tests...\n", test.name)
		fmt.Printf("   %s\n", test.description)

		cmd := exec.Command("go", "test", "-race", "-v", test.path)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			fmt.Printf("FAIL %s\n", test.name)
			allPassed = false
		} else {
			fmt.Printf("ok   %s\n", test.name)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 40))
	if !allPassed {
		fmt.Println("Some tests failed. Please review the output above.")
		os.Exit(1)
	}
	fmt.Println("All tests passed.")
}
