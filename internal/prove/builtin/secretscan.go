package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/prove/internal/prove"
	"github.com/fyrsmithlabs/prove/pkg/secrets"
)

// maxScanSize skips changed files larger than this.
const maxScanSize = 1 << 20

// SecretScanner finds secrets in one file's content.
type SecretScanner interface {
	Scan(path, content string) []secrets.Finding
}

// ScannerFactory builds a scanner honouring the allowlist file at path.
type ScannerFactory func(allowlistPath string) (SecretScanner, error)

// GitleaksScanner builds a gitleaks scanner with the project allowlist.
func GitleaksScanner(allowlistPath string) (SecretScanner, error) {
	allowlist, err := secrets.LoadAllowlists(allowlistPath)
	if err != nil {
		return nil, err
	}
	return secrets.NewScanner(allowlist)
}

type secretScan struct {
	newScanner ScannerFactory
}

// Preflight rejects an unreadable allowlist before any check runs.
func (s secretScan) Preflight(pctx *prove.Context) error {
	if _, err := secrets.LoadAllowlists(pctx.Settings.AllowlistPath); err != nil {
		return err
	}
	return nil
}

func (s secretScan) Run(ctx context.Context, pctx *prove.Context) (prove.Outcome, error) {
	start := time.Now()
	scanner, err := s.newScanner(pctx.Settings.AllowlistPath)
	if err != nil {
		return prove.Outcome{}, fmt.Errorf("building secret scanner: %w", err)
	}

	var (
		findings []secrets.Finding
		scanned  int
	)
	for _, file := range pctx.VCS.ChangedFiles {
		if err := ctx.Err(); err != nil {
			return prove.Outcome{}, err
		}
		content, err := pctx.ReadFile(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return prove.Outcome{}, fmt.Errorf("reading %s: %w", file, err)
		}
		if len(content) > maxScanSize || bytes.IndexByte(content, 0) >= 0 {
			continue
		}
		scanned++
		findings = append(findings, scanner.Scan(file, string(content))...)
	}

	report := secrets.BuildReport(findings, scanned, time.Since(start))
	details := map[string]interface{}{
		"filesScanned": report.Summary.FilesScanned,
		"findings":     report.Redactions,
	}
	if report.Clean() {
		return prove.Pass(details), nil
	}
	return prove.Fail(fmt.Sprintf("%d potential secrets in changed files", report.Summary.TotalSecrets), details), nil
}
