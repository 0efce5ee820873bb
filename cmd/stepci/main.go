package main

import (
	"fmt"
	"os"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: stepci <command> [flags]

Commands:
  run     <job.yaml>    run a job in a fresh environment and report the result
  watch   <job.yaml>    re-run the job whenever the job file or watched paths change
  submit  <job.yaml>    send a job to a stepci server and print its report
  schema                print the JSON Schema of job files
  verify  [ledger]      verify the audit ledger and the step logs it points at
  inspect [ledger]      list ledger blocks
  keygen  [dir]         generate runner signing keys

Run 'stepci <command> -h' for command flags.`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	var code int
	args := os.Args[2:]
	switch os.Args[1] {
	case "run":
		code = cmdRun(args)
	case "watch":
		code = cmdWatch(args)
	case "submit":
		code = cmdSubmit(args)
	case "schema":
		code = cmdSchema(args)
	case "verify":
		code = cmdVerify(args)
	case "inspect":
		code = cmdInspect(args)
	case "keygen":
		code = cmdKeygen(args)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", os.Args[1])
		usage()
		code = exitUsage
	}
	os.Exit(code)
}
