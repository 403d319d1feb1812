// vat-audit-export writes one advocate's VAT audit trail and per-category statistics to an
// XLSX workbook.
//
// Usage (from backend directory):
//   go run ./cmd/vat-audit-export -advocate adv_123 -from 2026-03-01 -to 2026-03-31 -out vat-audit.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/NathiDhliso/Lexo-sub007/workflow"
)

func main() {
	advocateId := flag.String("advocate", "", "advocate id whose audit trail is exported (required)")
	fromRaw := flag.String("from", "", "first day, YYYY-MM-DD (required)")
	toRaw := flag.String("to", "", "last day, YYYY-MM-DD (required)")
	outPath := flag.String("out", "vat-audit.xlsx", "output file")
	flag.Parse()

	if *advocateId == "" || *fromRaw == "" || *toRaw == "" {
		flag.Usage()
		os.Exit(2)
	}
	from, err := utils.ParseDate(*fromRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
		os.Exit(2)
	}
	to, err := utils.ParseDate(*toRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := utils.SetAdvocateIdInContext(context.Background(), *advocateId)
	ctx = utils.SetActorNameInContext(ctx, "vat-audit-export")

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	engine := workflow.NewVATEngine(db, config.GetLogger())
	if err := engine.ExportAuditLog(ctx, from, to, f); err != nil {
		_ = f.Close()
		_ = os.Remove(*outPath)
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *outPath)
}
