package bus

import "fmt"

// Topic names a stream on the bus.
type Topic int

const (
	Data Topic = iota
	OrderBook
	Signal
	Order
	CancelOrder
	Trade
	PositionUpdate
	OrderUpdate
	AccountUpdate
	EODEvent

	// Notifications published by the portfolio server after a mutation.
	PortfolioPositions
	PortfolioOrders
	PortfolioAccount

	RiskUpdate
	Connection
)

var topicNames = map[Topic]string{
	Data:               "DATA",
	OrderBook:          "ORDER_BOOK",
	Signal:             "SIGNAL",
	Order:              "ORDER",
	CancelOrder:        "CANCEL_ORDER",
	Trade:              "TRADE",
	PositionUpdate:     "POSITION_UPDATE",
	OrderUpdate:        "ORDER_UPDATE",
	AccountUpdate:      "ACCOUNT_UPDATE",
	EODEvent:           "EOD_EVENT",
	PortfolioPositions: "PORTFOLIO_POSITIONS",
	PortfolioOrders:    "PORTFOLIO_ORDERS",
	PortfolioAccount:   "PORTFOLIO_ACCOUNT",
	RiskUpdate:         "RISK_UPDATE",
	Connection:         "CONNECTION",
}

func (t Topic) String() string {
	if s, ok := topicNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TOPIC(%d)", int(t))
}
