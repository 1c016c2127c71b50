package handlers

import (
	"encoding/json"

	"github.com/rschio/paytrack/internal/core/document"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/shopspring/decimal"
)

const timestampLayout = "2006-01-02 15:04:05"

type RegisterReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

type LoginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UserResp struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type CustomerReq struct {
	UserID  string              `json:"user_id" validate:"required,uuid"`
	Name    string              `json:"name" validate:"required"`
	Product string              `json:"urun" validate:"required"`
	Balance decimal.NullDecimal `json:"borc"`
}

type Customer struct {
	Name    string      `json:"name"`
	Product string      `json:"urun"`
	Balance json.Number `json:"borc"`
}

type CustomerResp struct {
	Message  string   `json:"message"`
	Customer Customer `json:"customer"`
}

// TransactionReq accepts both the english field names and the turkish ones
// sent by older clients.
type TransactionReq struct {
	UserID       string              `json:"user_id" validate:"required,uuid"`
	CustomerName string              `json:"customer_name" validate:"required"`
	Amount       decimal.NullDecimal `json:"amount"`
	Miktar       decimal.NullDecimal `json:"miktar"`
	Description  string              `json:"description"`
	Aciklama     string              `json:"aciklama"`
}

func (r TransactionReq) amount() (decimal.Decimal, bool) {
	if r.Amount.Valid {
		return r.Amount.Decimal, true
	}
	return r.Miktar.Decimal, r.Miktar.Valid
}

func (r TransactionReq) description() string {
	if r.Description != "" {
		return r.Description
	}
	return r.Aciklama
}

type TransactionResp struct {
	Message string      `json:"message"`
	Balance json.Number `json:"borc"`
}

type Transaction struct {
	ID          string      `json:"id"`
	Timestamp   string      `json:"timestamp"`
	Amount      json.Number `json:"amount"`
	Type        string      `json:"transaction_type"`
	Description string      `json:"description"`
}

type HistoryResp struct {
	Success      bool          `json:"success"`
	Transactions []Transaction `json:"transactions"`
}

type Activity struct {
	CustomerName string      `json:"customerName"`
	Type         string      `json:"type"`
	Amount       json.Number `json:"amount"`
	Date         string      `json:"date"`
	Description  string      `json:"description"`
}

type DashboardResp struct {
	TotalCustomers     int         `json:"totalCustomers"`
	TotalDebt          json.Number `json:"totalDebt"`
	RecentTransactions int         `json:"recentTransactions"`
	Transactions       []Activity  `json:"transactions"`
}

type PDFReq struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	CustomerName string `json:"customer_name" validate:"required"`
}

type PDF struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type PDFResp struct {
	Message string `json:"message"`
	PDF
}

type PDFListResp struct {
	Success bool  `json:"success"`
	PDFs    []PDF `json:"pdfs"`
}

type MessageResp struct {
	Message string `json:"message"`
}

type StatusResp struct {
	Status string `json:"status"`
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// legacyKind is the transaction type name the clients display.
func legacyKind(k ledger.Kind) string {
	switch k {
	case ledger.KindDebit:
		return "borc"
	case ledger.KindCredit:
		return "odeme"
	case ledger.KindAdjustment:
		return "alacak"
	}
	return string(k)
}

func toCustomer(c ledger.Customer) Customer {
	return Customer{
		Name:    c.Name,
		Product: c.Product,
		Balance: money(c.Balance),
	}
}

func toCustomers(cs []ledger.Customer) []Customer {
	slice := make([]Customer, len(cs))
	for i, c := range cs {
		slice[i] = toCustomer(c)
	}
	return slice
}

func toTransaction(t ledger.Transaction) Transaction {
	return Transaction{
		ID:          t.ID.String(),
		Timestamp:   t.DateCreated.UTC().Format(timestampLayout),
		Amount:      money(t.Amount),
		Type:        legacyKind(t.Kind),
		Description: t.Description,
	}
}

func toTransactions(ts []ledger.Transaction) []Transaction {
	slice := make([]Transaction, len(ts))
	for i, t := range ts {
		slice[i] = toTransaction(t)
	}
	return slice
}

func toDashboardResp(s ledger.Summary) DashboardResp {
	acts := make([]Activity, len(s.Latest))
	for i, a := range s.Latest {
		acts[i] = Activity{
			CustomerName: a.CustomerName,
			Type:         legacyKind(a.Kind),
			Amount:       money(a.Amount),
			Date:         a.DateCreated.UTC().Format(timestampLayout),
			Description:  a.Description,
		}
	}

	return DashboardResp{
		TotalCustomers:     s.TotalCustomers,
		TotalDebt:          money(s.TotalDebt),
		RecentTransactions: s.RecentTransactions,
		Transactions:       acts,
	}
}

func toPDF(d document.Document) PDF {
	return PDF{
		Filename: d.Filename,
		URL:      d.URL,
	}
}

func toPDFs(ds []document.Document) []PDF {
	slice := make([]PDF, len(ds))
	for i, d := range ds {
		slice[i] = toPDF(d)
	}
	return slice
}
