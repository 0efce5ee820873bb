package main

import (
	"flag"
	"fmt"
	"os"

	"stepci/internal/config"
	"stepci/internal/ledger"
	"stepci/internal/security"
)

// ledgerPath takes the positional argument, falling back to the config
func ledgerPath(fs *flag.FlagSet, configPath string) (string, error) {
	if fs.NArg() > 0 {
		return fs.Arg(0), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.LedgerPath == "" {
		return "", fmt.Errorf("no ledger given and none configured")
	}
	return cfg.LedgerPath, nil
}

func cmdVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	skipLogs := fs.Bool("skip-logs", false, "only verify the chain, not the log files")
	fs.Parse(args)

	path, err := ledgerPath(fs, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci:", err)
		return exitUsage
	}
	l, err := ledger.Open(path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		return exitUsage
	}

	if err := l.Verify(); err != nil {
		fmt.Printf("Ledger verification FAILED: %v\n", err)
		return 1
	}
	if !*skipLogs {
		if err := l.VerifyLogs(); err != nil {
			fmt.Printf("Log verification FAILED: %v\n", err)
			return 1
		}
	}
	fmt.Printf("Ledger verification OK (%d blocks)\n", l.Len())
	return 0
}

func cmdInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	fs.Parse(args)

	path, err := ledgerPath(fs, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci:", err)
		return exitUsage
	}
	l, err := ledger.Open(path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		return exitUsage
	}

	for _, b := range l.Blocks() {
		fmt.Printf("Index=%d Time=%s Job=%s Step=%s Status=%s Exit=%d Runner=%s Hash=%s\n",
			b.Index, b.Timestamp, b.Job, b.Step, b.Status, b.ExitCode, b.RunnerID, short(b.Hash))
	}
	return 0
}

func cmdKeygen(args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	fs.Parse(args)

	dir := "./keys"
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	signer, created, err := security.LoadOrCreateSigner(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen error: %v\n", err)
		return exitUsage
	}
	if created {
		fmt.Printf("Generated runner keys in %s\n", dir)
	} else {
		fmt.Printf("Runner keys already exist in %s\n", dir)
	}
	fmt.Println("PUBLIC_KEY_HEX:", signer.PublicHex())
	return 0
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
