package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
	"finbot/internal/period"
)

const testUser int64 = 1001

func newTestLedgers(t *testing.T) map[string]Ledger {
	t.Helper()

	sqlite, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteLedger() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Ledger{
		"memory": NewMemoryLedger(),
		"sqlite": sqlite,
	}
}

func addTx(t *testing.T, l Ledger, user int64, kind core.Kind, category, amount string, at time.Time) int64 {
	t.Helper()
	id, err := l.AddTransaction(context.Background(), AddTransactionParams{
		UserID:     user,
		Kind:       kind,
		Amount:     decimal.RequireFromString(amount),
		Category:   category,
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("AddTransaction(%s %s %s) error = %v", kind, category, amount, err)
	}
	return id
}

func TestLedger_UserLifecycle(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := ledger.GetTotalBalance(ctx, testUser); !errors.Is(err, core.ErrUserNotFound) {
				t.Errorf("balance before registration: %v, want ErrUserNotFound", err)
			}

			if err := ledger.EnsureUser(ctx, testUser, "ada", "Ada", "L"); err != nil {
				t.Fatalf("EnsureUser() error = %v", err)
			}
			// Repeated registration is a no-op.
			if err := ledger.EnsureUser(ctx, testUser, "ada", "Ada", "L"); err != nil {
				t.Errorf("second EnsureUser() error = %v", err)
			}

			balance, err := ledger.GetTotalBalance(ctx, testUser)
			if err != nil {
				t.Fatalf("GetTotalBalance() error = %v", err)
			}
			if !balance.IsZero() {
				t.Errorf("fresh user balance = %s, want 0", balance)
			}
		})
	}
}

func TestLedger_TransactionRoundTrip(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "ada", "Ada", "L"); err != nil {
				t.Fatal(err)
			}

			occurred := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
			id, err := ledger.AddTransaction(ctx, AddTransactionParams{
				UserID:     testUser,
				Kind:       core.Expense,
				Amount:     decimal.RequireFromString("42.50"),
				Category:   "food",
				Note:       "lunch",
				OccurredAt: occurred,
			})
			if err != nil {
				t.Fatalf("AddTransaction() error = %v", err)
			}

			got, err := ledger.GetTransaction(ctx, id)
			if err != nil {
				t.Fatalf("GetTransaction() error = %v", err)
			}
			if got.UserID != testUser {
				t.Errorf("UserID = %d, want %d", got.UserID, testUser)
			}
			if got.Kind != core.Expense || got.Category != "food" || got.Note != "lunch" {
				t.Errorf("unexpected transaction: %+v", got)
			}
			if !got.Amount.Equal(decimal.RequireFromString("42.50")) {
				t.Errorf("Amount = %s, want 42.50", got.Amount)
			}
			if !got.OccurredAt.Equal(occurred) {
				t.Errorf("OccurredAt = %v, want %v", got.OccurredAt, occurred)
			}
		})
	}
}

func TestLedger_AddTransactionValidation(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}

			_, err := ledger.AddTransaction(ctx, AddTransactionParams{
				UserID: testUser, Kind: core.Expense,
				Amount: decimal.Zero, Category: "food",
			})
			if !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("zero amount: %v, want ErrInvalidAmount", err)
			}

			_, err = ledger.AddTransaction(ctx, AddTransactionParams{
				UserID: testUser, Kind: "refund",
				Amount: decimal.NewFromInt(1), Category: "food",
			})
			if !errors.Is(err, core.ErrInvalidKind) {
				t.Errorf("bad kind: %v, want ErrInvalidKind", err)
			}

			_, err = ledger.AddTransaction(ctx, AddTransactionParams{
				UserID: testUser, Kind: core.Expense,
				Amount: decimal.NewFromInt(1), Category: "  ",
			})
			if !errors.Is(err, core.ErrEmptyCategory) {
				t.Errorf("blank category: %v, want ErrEmptyCategory", err)
			}

			_, err = ledger.AddTransaction(ctx, AddTransactionParams{
				UserID: 999999, Kind: core.Expense,
				Amount: decimal.NewFromInt(1), Category: "food",
			})
			if !errors.Is(err, core.ErrUserNotFound) {
				t.Errorf("unknown user: %v, want ErrUserNotFound", err)
			}
		})
	}
}

func TestLedger_UpdateTransaction(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}
			id := addTx(t, ledger, testUser, core.Expense, "food", "10", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

			newAmount := decimal.RequireFromString("25.75")
			newNote := "groceries"
			got, err := ledger.UpdateTransaction(ctx, id, UpdateTransactionParams{
				Amount: &newAmount,
				Note:   &newNote,
			})
			if err != nil {
				t.Fatalf("UpdateTransaction() error = %v", err)
			}
			if !got.Amount.Equal(newAmount) || got.Note != newNote {
				t.Errorf("updated transaction = %+v", got)
			}
			if got.Category != "food" {
				t.Errorf("untouched category changed to %q", got.Category)
			}

			// Category updates resolve within the transaction's kind and
			// never create new categories.
			missing := "no-such-category"
			if _, err := ledger.UpdateTransaction(ctx, id, UpdateTransactionParams{Category: &missing}); !errors.Is(err, core.ErrCategoryNotFound) {
				t.Errorf("unknown category: %v, want ErrCategoryNotFound", err)
			}

			// "salary" exists as a default income category only; an expense
			// row cannot move there.
			salary := "salary"
			if _, err := ledger.UpdateTransaction(ctx, id, UpdateTransactionParams{Category: &salary}); !errors.Is(err, core.ErrCategoryNotFound) {
				t.Errorf("cross-kind category: %v, want ErrCategoryNotFound", err)
			}

			transport := "transport"
			got, err = ledger.UpdateTransaction(ctx, id, UpdateTransactionParams{Category: &transport})
			if err != nil {
				t.Fatalf("category update error = %v", err)
			}
			if got.Category != "transport" {
				t.Errorf("Category = %q, want transport", got.Category)
			}

			bad := decimal.NewFromInt(-1)
			if _, err := ledger.UpdateTransaction(ctx, id, UpdateTransactionParams{Amount: &bad}); !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("negative amount: %v, want ErrInvalidAmount", err)
			}

			if _, err := ledger.UpdateTransaction(ctx, 424242, UpdateTransactionParams{Note: &newNote}); !errors.Is(err, core.ErrTransactionNotFound) {
				t.Errorf("unknown id: %v, want ErrTransactionNotFound", err)
			}
		})
	}
}

func TestLedger_DeleteTransaction(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}
			id := addTx(t, ledger, testUser, core.Income, "salary", "100", time.Now())

			owner, err := ledger.DeleteTransaction(ctx, id)
			if err != nil {
				t.Fatalf("DeleteTransaction() error = %v", err)
			}
			if owner != testUser {
				t.Errorf("owner = %d, want %d", owner, testUser)
			}

			if _, err := ledger.GetTransaction(ctx, id); !errors.Is(err, core.ErrTransactionNotFound) {
				t.Errorf("after delete: %v, want ErrTransactionNotFound", err)
			}
			if _, err := ledger.DeleteTransaction(ctx, id); !errors.Is(err, core.ErrTransactionNotFound) {
				t.Errorf("double delete: %v, want ErrTransactionNotFound", err)
			}
		})
	}
}

func TestLedger_GetTransactionsFilter(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}

			jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
			feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
			mar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
			addTx(t, ledger, testUser, core.Expense, "food", "1", jan)
			addTx(t, ledger, testUser, core.Expense, "food", "2", feb)
			addTx(t, ledger, testUser, core.Expense, "food", "3", mar)

			all, err := ledger.GetTransactions(ctx, testUser, TransactionFilter{})
			if err != nil {
				t.Fatalf("GetTransactions() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("got %d transactions, want 3", len(all))
			}
			// Newest first.
			if !all[0].OccurredAt.Equal(mar) || !all[2].OccurredAt.Equal(jan) {
				t.Errorf("unexpected order: %v, %v, %v", all[0].OccurredAt, all[1].OccurredAt, all[2].OccurredAt)
			}

			// Bounds are inclusive.
			ranged, err := ledger.GetTransactions(ctx, testUser, TransactionFilter{Start: &jan, End: &feb})
			if err != nil {
				t.Fatal(err)
			}
			if len(ranged) != 2 {
				t.Errorf("ranged count = %d, want 2", len(ranged))
			}

			limited, err := ledger.GetTransactions(ctx, testUser, TransactionFilter{Limit: 1})
			if err != nil {
				t.Fatal(err)
			}
			if len(limited) != 1 || !limited[0].OccurredAt.Equal(mar) {
				t.Errorf("limited result = %+v", limited)
			}

			if _, err := ledger.GetTransactions(ctx, 999999, TransactionFilter{}); !errors.Is(err, core.ErrUserNotFound) {
				t.Errorf("unknown user: %v, want ErrUserNotFound", err)
			}
		})
	}
}

func TestLedger_Categories(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}

			defaults, err := ledger.ListCategories(ctx, testUser)
			if err != nil {
				t.Fatalf("ListCategories() error = %v", err)
			}
			if len(defaults) != len(DefaultCategories) {
				t.Errorf("seeded categories = %d, want %d", len(defaults), len(DefaultCategories))
			}

			custom, err := ledger.EnsureCategory(ctx, "books", core.Expense, testUser)
			if err != nil {
				t.Fatalf("EnsureCategory() error = %v", err)
			}
			if custom.Name != "books" || custom.Kind != core.Expense || custom.IsDefault {
				t.Errorf("custom category = %+v", custom)
			}

			again, err := ledger.EnsureCategory(ctx, "books", core.Expense, testUser)
			if err != nil {
				t.Fatalf("repeat EnsureCategory() error = %v", err)
			}
			if again.ID != custom.ID {
				t.Errorf("repeat returned id %d, want %d", again.ID, custom.ID)
			}

			listed, err := ledger.ListCategories(ctx, testUser)
			if err != nil {
				t.Fatal(err)
			}
			if len(listed) != len(DefaultCategories)+1 {
				t.Errorf("categories after create = %d, want %d", len(listed), len(DefaultCategories)+1)
			}
		})
	}
}

func TestLedger_DeleteCategory(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}

			if _, err := ledger.DeleteCategory(ctx, "no-such", core.Expense); !errors.Is(err, core.ErrCategoryNotFound) {
				t.Errorf("unknown category: %v, want ErrCategoryNotFound", err)
			}

			// Referenced categories are refused, not deleted.
			addTx(t, ledger, testUser, core.Expense, "food", "5", time.Now())
			deleted, err := ledger.DeleteCategory(ctx, "food", core.Expense)
			if err != nil {
				t.Fatalf("DeleteCategory(referenced) error = %v", err)
			}
			if deleted {
				t.Error("referenced category must not be deleted")
			}

			if _, err := ledger.EnsureCategory(ctx, "books", core.Expense, testUser); err != nil {
				t.Fatal(err)
			}
			deleted, err = ledger.DeleteCategory(ctx, "books", core.Expense)
			if err != nil {
				t.Fatalf("DeleteCategory(unreferenced) error = %v", err)
			}
			if !deleted {
				t.Error("unreferenced category must be deleted")
			}
		})
	}
}

func TestLedger_ReportSettings(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}

			if _, err := ledger.GetReportSettings(ctx, testUser); !errors.Is(err, ErrNoReportSettings) {
				t.Errorf("unconfigured user: %v, want ErrNoReportSettings", err)
			}

			cfg := period.Config{Type: period.Monthly, StartDay: 5}
			if err := ledger.SetReportSettings(ctx, testUser, cfg); err != nil {
				t.Fatalf("SetReportSettings() error = %v", err)
			}

			got, err := ledger.GetReportSettings(ctx, testUser)
			if err != nil {
				t.Fatalf("GetReportSettings() error = %v", err)
			}
			if got != cfg {
				t.Errorf("settings = %+v, want %+v", got, cfg)
			}

			// Upsert replaces.
			cfg2 := period.Config{Type: period.Quarterly, StartDay: 1}
			if err := ledger.SetReportSettings(ctx, testUser, cfg2); err != nil {
				t.Fatal(err)
			}
			if got, _ := ledger.GetReportSettings(ctx, testUser); got != cfg2 {
				t.Errorf("settings after upsert = %+v, want %+v", got, cfg2)
			}

			all, err := ledger.ListReportSettings(ctx)
			if err != nil {
				t.Fatalf("ListReportSettings() error = %v", err)
			}
			if all[testUser] != cfg2 {
				t.Errorf("listed settings = %+v", all)
			}

			bad := period.Config{Type: "weekly", StartDay: 1}
			if err := ledger.SetReportSettings(ctx, testUser, bad); !errors.Is(err, period.ErrInvalidPeriodType) {
				t.Errorf("invalid settings: %v, want ErrInvalidPeriodType", err)
			}
		})
	}
}

func TestLedger_BalanceAcrossKinds(t *testing.T) {
	for name, ledger := range newTestLedgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
				t.Fatal(err)
			}

			addTx(t, ledger, testUser, core.Income, "salary", "1000.00", time.Now())
			addTx(t, ledger, testUser, core.Expense, "food", "249.99", time.Now())
			addTx(t, ledger, testUser, core.Expense, "transport", "0.01", time.Now())

			balance, err := ledger.GetTotalBalance(ctx, testUser)
			if err != nil {
				t.Fatalf("GetTotalBalance() error = %v", err)
			}
			if balance.StringFixed(2) != "750.00" {
				t.Errorf("balance = %s, want 750.00", balance)
			}
		})
	}
}

func TestSQLiteLedger_NoteTruncation(t *testing.T) {
	ledgers := newTestLedgers(t)
	ledger := ledgers["sqlite"]
	ctx := context.Background()
	if err := ledger.EnsureUser(ctx, testUser, "", "", ""); err != nil {
		t.Fatal(err)
	}

	long := make([]byte, core.MaxNoteLength+100)
	for i := range long {
		long[i] = 'a'
	}
	id, err := ledger.AddTransaction(ctx, AddTransactionParams{
		UserID:   testUser,
		Kind:     core.Expense,
		Amount:   decimal.NewFromInt(1),
		Category: "food",
		Note:     string(long),
	})
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	got, err := ledger.GetTransaction(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Note) != core.MaxNoteLength {
		t.Errorf("stored note length = %d, want %d", len(got.Note), core.MaxNoteLength)
	}
}
