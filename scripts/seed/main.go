// Seed inserts demo installments with payment schedules into the remote
// store. Run from project root: go run ./scripts/seed
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"qistsync/internal/config"
	"qistsync/internal/models"
	"qistsync/internal/remote"
)

func main() {
	loadEnvFile(".env")

	ctx := context.Background()
	cfg := config.Get()
	gateway, err := remote.Connect(ctx, cfg.RemoteDatabaseURL, cfg.DBPoolSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Remote store connection failed:", err)
		os.Exit(1)
	}
	if err := gateway.Migrate(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	const installments = 50
	const paymentsEach = 12
	userID := "demo-user"
	start := time.Now()

	for n := 1; n <= installments; n++ {
		created := time.Now().Add(-time.Duration(n) * 24 * time.Hour)
		inst := models.Installment{
			ID:              uuid.New().String(),
			UserID:          userID,
			CreditorName:    fmt.Sprintf("Creditor %d", n),
			ItemDescription: fmt.Sprintf("Item %d bought on installments", n),
			CreatedAt:       created,
			UpdatedAt:       created,
		}
		for m := 0; m < paymentsEach; m++ {
			due := created.AddDate(0, m+1, 0)
			inst.Payments = append(inst.Payments, models.Payment{
				ID:            uuid.New().String(),
				InstallmentID: inst.ID,
				DueDate:       due.Format(time.DateOnly),
				Amount:        decimal.NewFromInt(int64(100 + n)),
			})
		}
		if err := gateway.UpsertInstallment(ctx, inst); err != nil {
			fmt.Fprintln(os.Stderr, "Insert failed:", err)
			os.Exit(1)
		}
		fmt.Printf("\rInserted %d / %d", n, installments)
	}

	fmt.Printf("\nDone: %d installments in %v\n", installments, time.Since(start))
}

func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
			val = strings.Trim(val, `"`)
		} else if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
			val = strings.Trim(val, "'")
		}
		if key != "" && os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}
