package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/vizzTools/osmUtils/internal/logger"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitConfigError      = 3
	ExitIncomplete       = 4
	ExitStorageError     = 5
	ExitValidationFailed = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		return ExitConfigError
	}
	logger.Setup()

	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "plan":
		return runPlan(cmdArgs)
	case "fetch":
		return runFetch(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "fix":
		return runFix(cmdArgs)
	case "upload":
		return runUpload(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: osmutils <command> [options]

Commands:
  plan      Partition an area of interest into tiles and write the manifest
  fetch     Query Overpass for every pending manifest entry and export lines
  status    Print manifest counts
  validate  Verify that every exported entry has a non-empty artifact
  fix       Requeue entries whose artifact is missing, or excluded entries
  upload    Copy exported artifacts to a remote bucket

Run 'osmutils <command> -h' for command-specific help.`)
}
