package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
)

// Format renders an event as a Telegram Markdown message
func Format(event Event) string {
	switch event.Kind {
	case KindProcessStarted:
		if event.Startup != nil {
			return formatStartup(*event.Startup)
		}
	case KindOrderPlaced:
		if event.Transaction != nil {
			return formatPlaced(*event.Transaction)
		}
	case KindOrderFilled:
		if event.Transaction != nil && event.Fill != nil {
			return formatFilled(*event.Transaction, *event.Fill)
		}
	case KindOrderClosed:
		if event.Transaction != nil {
			return formatClosed(*event.Transaction, event.Status)
		}
	}
	return fmt.Sprintf("ℹ️ *Autobuy event*: `%s`", event.Kind)
}

func currency(productID string) string {
	if quote := broker.QuoteCurrency(productID); quote != "" {
		return " " + quote
	}
	return ""
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatStartup(info StartupInfo) string {
	var b strings.Builder
	b.WriteString("🚀 *Autobuy Scheduler Started*\n\n")
	fmt.Fprintf(&b, "• *Product*: `%s`\n", info.ProductID)
	fmt.Fprintf(&b, "• *Amount*: `%s%s`\n", info.Amount, currency(info.ProductID))
	fmt.Fprintf(&b, "• *Schedule*: `%s`\n", info.Schedule)
	if info.BrokerMode != "" {
		fmt.Fprintf(&b, "• *Mode*: `%s`\n", info.BrokerMode)
	}
	return b.String()
}

func formatPlaced(tx ledger.Transaction) string {
	var b strings.Builder
	if tx.IsSuccess() {
		b.WriteString("🎉 *Order Placed Successfully*\n\n")
		fmt.Fprintf(&b, "• *Product*: `%s`\n", tx.ProductID)
		fmt.Fprintf(&b, "• *Amount*: `%s%s`\n", tx.Amount, currency(tx.ProductID))
		if tx.Price.Valid {
			fmt.Fprintf(&b, "• *Price*: `%s`\n", tx.Price.Decimal)
		}
		fmt.Fprintf(&b, "• *Order ID*: `%s`\n", tx.OrderID)
		fmt.Fprintf(&b, "• *Time*: `%s`", stamp(tx.Timestamp))
		return b.String()
	}

	b.WriteString("❌ *Order Failed*\n\n")
	fmt.Fprintf(&b, "• *Product*: `%s`\n", tx.ProductID)
	fmt.Fprintf(&b, "• *Amount*: `%s%s`\n", tx.Amount, currency(tx.ProductID))
	fmt.Fprintf(&b, "• *Time*: `%s`\n", stamp(tx.Timestamp))
	errText := tx.Error
	if errText == "" {
		errText = "Unknown error"
	}
	fmt.Fprintf(&b, "• *Error*: `%s`", errText)
	return b.String()
}

func formatFilled(tx ledger.Transaction, fill broker.OrderStatus) string {
	cur := currency(tx.ProductID)
	fillTime := fill.FillTime()
	if fillTime.IsZero() {
		fillTime = tx.Timestamp
	}

	var b strings.Builder
	b.WriteString("✅ *Order Filled*\n\n")
	fmt.Fprintf(&b, "• *Product*: `%s`\n", tx.ProductID)
	fmt.Fprintf(&b, "• *Order ID*: `%s`\n", tx.OrderID)
	fmt.Fprintf(&b, "• *Status*: `%s`\n", fill.Status)
	fmt.Fprintf(&b, "• *Filled Value*: `%s%s`\n", fill.FilledValue, cur)
	fmt.Fprintf(&b, "• *Filled Size*: `%s`\n", fill.FilledSize)
	fmt.Fprintf(&b, "• *Average Price*: `%s`\n", fill.AverageFilledPrice)
	fmt.Fprintf(&b, "• *Total Fees*: `%s%s`\n", fill.TotalFees, cur)
	fmt.Fprintf(&b, "• *Time*: `%s`", stamp(fillTime))
	return b.String()
}

func formatClosed(tx ledger.Transaction, status string) string {
	var b strings.Builder
	b.WriteString("⚠️ *Order Closed Without Fill*\n\n")
	fmt.Fprintf(&b, "• *Product*: `%s`\n", tx.ProductID)
	fmt.Fprintf(&b, "• *Order ID*: `%s`\n", tx.OrderID)
	fmt.Fprintf(&b, "• *Status*: `%s`\n", status)
	fmt.Fprintf(&b, "• *Amount*: `%s%s`", tx.Amount, currency(tx.ProductID))
	return b.String()
}
