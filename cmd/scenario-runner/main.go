// Package main runs the scripted economy scenarios and exits non-zero if
// any of them fails.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/test"
)

func main() {
	verbose := flag.Bool("v", true, "Print every scenario")
	engineLogs := flag.Bool("engine-logs", false, "Show engine log output")
	flag.Parse()

	fmt.Println("ECONOMY SCENARIO SUITE")
	fmt.Println(strings.Repeat("=", 60))

	log := logger.NewDiscard()
	if *engineLogs {
		log = logger.NewLogger()
	}

	results := test.NewSuite(log, *verbose).RunAll()

	passed, failed := 0, 0
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}
