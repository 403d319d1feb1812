// seed-disbursement-types migrates the billing schema and inserts the system disbursement
// types that are missing. Run it as a separate job when the API starts with
// SKIP_MIGRATIONS=true.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-disbursement-types
package main

import (
	"fmt"
	"os"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	var count int64
	if err := db.Model(&models.DisbursementType{}).Where("is_system_default = ?", true).Count(&count).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to count disbursement types: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("schema up to date, %d system disbursement types present\n", count)
}
