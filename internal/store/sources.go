package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Sources returns a CategorySource for every export category, all reading
// from the same database.
func Sources(db *gorm.DB) map[models.Category]delivery.CategorySource {
	return map[models.Category]delivery.CategorySource{
		models.CategoryAccounts:     accountsSource{db},
		models.CategoryTransactions: transactionsSource{db},
		models.CategoryPurchases:    purchasesSource{db},
		models.CategoryLendBorrow:   lendBorrowSource{db},
		models.CategorySavings:      savingsSource{db},
		models.CategoryAnalytics:    analyticsSource{db},
	}
}

// sumBy adds amounts into per-key totals and returns them sorted by label.
type sumBy map[string]decimal.Decimal

func (s sumBy) add(key string, amt decimal.Decimal) {
	s[key] = s[key].Add(amt)
}

func (s sumBy) totals(prefix string) []delivery.Total {
	out := make([]delivery.Total, 0, len(s))
	for k, v := range s {
		out = append(out, delivery.Total{Label: prefix + k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

type accountsSource struct{ db *gorm.DB }

func (s accountsSource) Fetch(ctx context.Context, userID uuid.UUID) (delivery.Section, error) {
	var rows []models.Account
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name").Find(&rows).Error; err != nil {
		return delivery.Section{}, fmt.Errorf("read accounts: %w", err)
	}
	sec := delivery.Section{
		Title:   "Accounts",
		Count:   len(rows),
		Columns: []string{"Name", "Type", "Currency", "Balance", "Active"},
	}
	balances := sumBy{}
	for _, a := range rows {
		balances.add(a.Currency, a.CalculatedBalance)
		sec.Rows = append(sec.Rows, []string{
			a.Name, a.Type, a.Currency, a.CalculatedBalance.StringFixed(2), fmt.Sprint(a.IsActive),
		})
	}
	sec.Totals = balances.totals("Balance ")
	return sec, nil
}

type transactionsSource struct{ db *gorm.DB }

func (s transactionsSource) Fetch(ctx context.Context, userID uuid.UUID) (delivery.Section, error) {
	var rows []models.Transaction
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("date DESC").Find(&rows).Error; err != nil {
		return delivery.Section{}, fmt.Errorf("read transactions: %w", err)
	}
	sec := delivery.Section{
		Title:   "Transactions",
		Count:   len(rows),
		Columns: []string{"Date", "Type", "Category", "Amount", "Description"},
	}
	byType := sumBy{}
	for _, t := range rows {
		byType.add(t.Type, t.Amount)
		sec.Rows = append(sec.Rows, []string{
			t.Date.UTC().Format(dateLayout), t.Type, t.Category, t.Amount.StringFixed(2), t.Description,
		})
	}
	sec.Totals = byType.totals("Total ")
	return sec, nil
}

type purchasesSource struct{ db *gorm.DB }

func (s purchasesSource) Fetch(ctx context.Context, userID uuid.UUID) (delivery.Section, error) {
	var rows []models.Purchase
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return delivery.Section{}, fmt.Errorf("read purchases: %w", err)
	}
	sec := delivery.Section{
		Title:   "Purchases",
		Count:   len(rows),
		Columns: []string{"Item", "Category", "Price", "Currency", "Status", "Purchase Date"},
	}
	spent := sumBy{}
	for _, p := range rows {
		if p.Status == "purchased" {
			spent.add(p.Currency, p.Price)
		}
		sec.Rows = append(sec.Rows, []string{
			p.ItemName, p.Category, p.Price.StringFixed(2), p.Currency, p.Status, fmtDate(p.PurchaseDate),
		})
	}
	sec.Totals = spent.totals("Purchased ")
	return sec, nil
}

type lendBorrowSource struct{ db *gorm.DB }

func (s lendBorrowSource) Fetch(ctx context.Context, userID uuid.UUID) (delivery.Section, error) {
	var rows []models.LendBorrow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return delivery.Section{}, fmt.Errorf("read lend/borrow records: %w", err)
	}
	sec := delivery.Section{
		Title:   "Lend & Borrow",
		Count:   len(rows),
		Columns: []string{"Type", "Person", "Amount", "Currency", "Due Date", "Status", "Notes"},
	}
	open := sumBy{}
	for _, r := range rows {
		if r.Status != "settled" {
			open.add(r.Type+" "+r.Currency, r.Amount)
		}
		sec.Rows = append(sec.Rows, []string{
			r.Type, r.PersonName, r.Amount.StringFixed(2), r.Currency, fmtDate(r.DueDate), r.Status, r.Notes,
		})
	}
	sec.Totals = open.totals("Outstanding ")
	return sec, nil
}

type savingsSource struct{ db *gorm.DB }

func (s savingsSource) Fetch(ctx context.Context, userID uuid.UUID) (delivery.Section, error) {
	var rows []models.DonationSavingRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return delivery.Section{}, fmt.Errorf("read donation/saving records: %w", err)
	}
	sec := delivery.Section{
		Title:   "Donations & Savings",
		Count:   len(rows),
		Columns: []string{"Date", "Type", "Amount", "Mode", "Note"},
	}
	byType := sumBy{}
	for _, r := range rows {
		byType.add(r.Type, r.Amount)
		sec.Rows = append(sec.Rows, []string{
			r.CreatedAt.UTC().Format(dateLayout), r.Type, r.Amount.StringFixed(2), r.Mode, r.Note,
		})
	}
	sec.Totals = byType.totals("Total ")
	return sec, nil
}

// analyticsSource summarises transactions per month and type. It reads
// aggregates only, never individual rows.
type analyticsSource struct{ db *gorm.DB }

type monthlyAggregate struct {
	Month string
	Type  string
	Count int
	Total decimal.Decimal
}

func (s analyticsSource) Fetch(ctx context.Context, userID uuid.UUID) (delivery.Section, error) {
	var rows []monthlyAggregate
	err := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("to_char(date, 'YYYY-MM') AS month, type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("month, type").
		Order("month DESC, type").
		Scan(&rows).Error
	if err != nil {
		return delivery.Section{}, fmt.Errorf("read transaction analytics: %w", err)
	}
	return analyticsSection(rows), nil
}

func analyticsSection(rows []monthlyAggregate) delivery.Section {
	sec := delivery.Section{
		Title:   "Analytics",
		Count:   len(rows),
		Columns: []string{"Month", "Type", "Transactions", "Total"},
	}
	byType := sumBy{}
	for _, r := range rows {
		byType.add(r.Type, r.Total)
		sec.Rows = append(sec.Rows, []string{r.Month, r.Type, fmt.Sprint(r.Count), r.Total.StringFixed(2)})
	}
	income, expense := byType["income"], byType["expense"]
	sec.Totals = append(byType.totals("All-time "), delivery.Total{Label: "Net (income - expense)", Amount: income.Sub(expense)})
	return sec
}
