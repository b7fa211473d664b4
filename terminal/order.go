package terminal

import "github.com/rustyeddy/copier/market"

// Action selects the trade operation an OrderRequest performs.
type Action int

const (
	// ActionDeal opens or closes a market position at the given price.
	ActionDeal Action = iota
	// ActionPending places a pending order at the given price.
	ActionPending
	// ActionSLTP changes the stop-loss/take-profit of an open position.
	ActionSLTP
	// ActionModify changes price/SL/TP of a pending order.
	ActionModify
	// ActionRemove cancels a pending order.
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionDeal:
		return "DEAL"
	case ActionPending:
		return "PENDING"
	case ActionSLTP:
		return "SLTP"
	case ActionModify:
		return "MODIFY"
	case ActionRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// TimePolicy is the order lifetime policy.
type TimePolicy int

const (
	// TimeGTC keeps the order working until cancelled.
	TimeGTC TimePolicy = iota
)

// OrderRequest is a venue trade request. Fields are interpreted per Action:
// Deal/Pending use the full set, SLTP uses Position+StopLoss+TakeProfit,
// Modify uses Order+Price+StopLoss+TakeProfit, Remove uses Order only.
type OrderRequest struct {
	Action     Action
	Symbol     string
	Volume     float64
	Type       market.OrderType
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Deviation  int // max slippage in points the venue may fill at
	Magic      int64
	Comment    string
	Position   int64 // ticket of the position being closed/modified
	Order      int64 // ticket of the pending order being modified/removed
	TimeType   TimePolicy
	Filling    market.FillingMode
}

// Retcode is the venue's result code for a trade request.
type Retcode int

const (
	// RetcodeDone is the only success code.
	RetcodeDone Retcode = 10009
	// RetcodeRequote signals the price moved before execution.
	RetcodeRequote Retcode = 10004
	// RetcodeRejected is a generic venue rejection.
	RetcodeRejected Retcode = 10006
	// RetcodeNoMoney signals insufficient margin.
	RetcodeNoMoney Retcode = 10019
	// RetcodeInvalidFill signals an unsupported filling mode.
	RetcodeInvalidFill Retcode = 10030
)

// OrderResult is the venue's response to a trade request.
type OrderResult struct {
	Retcode Retcode
	OrderID int64
	DealID  int64
	Price   float64
	Comment string
}

// OK reports whether the request was fully executed.
func (r OrderResult) OK() bool {
	return r.Retcode == RetcodeDone
}

// FilledTicket returns the ticket the venue assigned, preferring the order
// id and falling back to the deal id.
func (r OrderResult) FilledTicket() int64 {
	if r.OrderID != 0 {
		return r.OrderID
	}
	return r.DealID
}
