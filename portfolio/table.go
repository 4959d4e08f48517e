package portfolio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/position"
)

func newTable(sb *strings.Builder, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(sb)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	return table
}

func positionsTable(positions map[int]position.Position) string {
	sb := &strings.Builder{}
	sb.WriteString("Positions:\n")
	table := newTable(sb, "Instrument", "Type", "Action", "Quantity", "Avg Price", "Market", "Unrealized", "Init Margin", "Liquidation")

	ids := make([]int, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		p := positions[id]
		table.Append([]string{
			fmt.Sprint(id),
			string(p.Type),
			p.Action,
			fmt.Sprintf("%g", p.Quantity),
			fmt.Sprintf("%.4f", p.AvgPrice),
			fmt.Sprintf("%.4f", p.MarketPrice),
			fmt.Sprintf("%.2f", p.UnrealizedPnL),
			fmt.Sprintf("%.2f", p.InitMarginRequired),
			fmt.Sprintf("%.2f", p.LiquidationValue),
		})
	}
	table.Render()
	return sb.String()
}

func ordersTable(active map[int]orders.ActiveOrder) string {
	sb := &strings.Builder{}
	sb.WriteString("Active Orders:\n")
	table := newTable(sb, "Perm ID", "Instrument", "Action", "Type", "Status", "Total", "Filled", "Remaining")

	ids := make([]int, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		o := active[id]
		table.Append([]string{
			fmt.Sprint(o.PermID),
			optInt(o.Instrument),
			optStr(o.Action),
			optStr(o.OrderType),
			string(o.Status),
			optFloat(o.TotalQty),
			optFloat(o.Filled),
			optFloat(o.Remaining),
		})
	}
	table.Render()
	return sb.String()
}

func accountTable(a broker.Account) string {
	sb := &strings.Builder{}
	sb.WriteString("Account:\n")
	table := newTable(sb, "Field", "Value")
	table.AppendBulk([][]string{
		{"Timestamp", a.Timestamp.Format("2006-01-02 15:04:05")},
		{"Available Funds", fmt.Sprintf("%.2f", a.FullAvailableFunds)},
		{"Init Margin", fmt.Sprintf("%.2f", a.FullInitMarginReq)},
		{"Maint Margin", fmt.Sprintf("%.2f", a.FullMaintMarginReq)},
		{"Net Liquidation", fmt.Sprintf("%.2f", a.NetLiquidation)},
		{"Unrealized P&L", fmt.Sprintf("%.2f", a.UnrealizedPnL)},
		{"Currency", a.Currency},
	})
	table.Render()
	return sb.String()
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprint(*p)
}

func optStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func optFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%g", *p)
}
