// Package sim provides an in-memory Gateway implementation. It stands in
// for a real terminal in tests and demo runs: per-account books of
// positions and pending orders, settable ticks and symbol metadata, and
// injectable failures.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/terminal"
)

type book struct {
	account   terminal.Account
	positions map[int64]terminal.Position
	orders    map[int64]terminal.PendingOrder
	deals     []terminal.Deal
}

// Terminal is a mutex-guarded fake venue. The zero value is not usable;
// construct with New.
type Terminal struct {
	mu sync.Mutex

	books      map[int64]*book
	current    int64 // connected login, 0 when disconnected
	ticks      map[string]market.Tick
	symbols    map[string]market.SymbolInfo
	nextTicket int64

	connectErr      map[int64]error
	nextSendRetcode terminal.Retcode // forced retcode for the next SendOrder, 0 = none

	// Requests records every SendOrder request in arrival order.
	Requests []terminal.OrderRequest
}

// New returns an empty simulated terminal.
func New() *Terminal {
	return &Terminal{
		books:      make(map[int64]*book),
		ticks:      make(map[string]market.Tick),
		symbols:    make(map[string]market.SymbolInfo),
		nextTicket: 1000,
		connectErr: make(map[int64]error),
	}
}

func (s *Terminal) bookFor(login int64) *book {
	b, ok := s.books[login]
	if !ok {
		b = &book{
			account:   terminal.Account{Login: login, Currency: "USD", Balance: 10000, Equity: 10000, MarginFree: 10000, Leverage: 100},
			positions: make(map[int64]terminal.Position),
			orders:    make(map[int64]terminal.PendingOrder),
		}
		s.books[login] = b
	}
	return b
}

func (s *Terminal) connected() (*book, error) {
	if s.current == 0 {
		return nil, fmt.Errorf("sim: not connected")
	}
	return s.bookFor(s.current), nil
}

// SetAccount overwrites the account state for a login.
func (s *Terminal) SetAccount(a terminal.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookFor(a.Login).account = a
}

// SetTick publishes a quote for a symbol.
func (s *Terminal) SetTick(t market.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[t.Symbol] = t
}

// SetSymbolInfo registers symbol metadata. Symbols without metadata fail
// SymbolSelect, mirroring an unsubscribed venue symbol.
func (s *Terminal) SetSymbolInfo(info market.SymbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[info.Name] = info
}

// AddPosition seeds an open position for a login, assigning a ticket when
// missing. Returns the ticket.
func (s *Terminal) AddPosition(login int64, p terminal.Position) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Ticket == 0 {
		s.nextTicket++
		p.Ticket = s.nextTicket
	}
	s.bookFor(login).positions[p.Ticket] = p
	return p.Ticket
}

// AddPendingOrder seeds a pending order for a login.
func (s *Terminal) AddPendingOrder(login int64, o terminal.PendingOrder) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Ticket == 0 {
		s.nextTicket++
		o.Ticket = s.nextTicket
	}
	s.bookFor(login).orders[o.Ticket] = o
	return o.Ticket
}

// AddDeal seeds a historical deal for a login.
func (s *Terminal) AddDeal(login int64, d terminal.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookFor(login)
	b.deals = append(b.deals, d)
}

// FailConnect makes Connect fail for a login.
func (s *Terminal) FailConnect(login int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr[login] = err
}

// ForceNextRetcode makes the next SendOrder return the given retcode without
// touching the book.
func (s *Terminal) ForceNextRetcode(rc terminal.Retcode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSendRetcode = rc
}

// PositionsOf returns the live positions for a login regardless of the
// connected account; test-side inspection only.
func (s *Terminal) PositionsOf(login int64) []terminal.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookFor(login)
	out := make([]terminal.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}

// PendingOf returns the live pending orders for a login.
func (s *Terminal) PendingOf(login int64) []terminal.PendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookFor(login)
	out := make([]terminal.PendingOrder, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	return out
}

func (s *Terminal) Connect(ctx context.Context, creds terminal.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectErr[creds.Login]; err != nil {
		return err
	}
	s.current = creds.Login
	s.bookFor(creds.Login)
	return nil
}

func (s *Terminal) AccountInfo(ctx context.Context) (terminal.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.connected()
	if err != nil {
		return terminal.Account{}, err
	}
	return b.account, nil
}

func (s *Terminal) Positions(ctx context.Context) ([]terminal.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.connected()
	if err != nil {
		return nil, err
	}
	out := make([]terminal.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *Terminal) PendingOrders(ctx context.Context) ([]terminal.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.connected()
	if err != nil {
		return nil, err
	}
	out := make([]terminal.PendingOrder, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *Terminal) HistoryDeals(ctx context.Context, from, to time.Time, symbolFilter string) ([]terminal.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.connected()
	if err != nil {
		return nil, err
	}
	var out []terminal.Deal
	for _, d := range b.deals {
		if d.Time.Before(from) || d.Time.After(to) {
			continue
		}
		if symbolFilter != "" && d.Symbol != symbolFilter {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Terminal) SymbolSelect(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; !ok {
		return fmt.Errorf("sim: unknown symbol %q", symbol)
	}
	return nil
}

func (s *Terminal) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.symbols[symbol]
	if !ok {
		return market.SymbolInfo{}, fmt.Errorf("sim: unknown symbol %q", symbol)
	}
	return info, nil
}

func (s *Terminal) Tick(ctx context.Context, symbol string) (market.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ticks[symbol]
	if !ok {
		return market.Tick{}, fmt.Errorf("sim: no tick for %q", symbol)
	}
	return t, nil
}

func (s *Terminal) SendOrder(ctx context.Context, req terminal.OrderRequest) (terminal.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)

	b, err := s.connected()
	if err != nil {
		return terminal.OrderResult{}, err
	}

	if rc := s.nextSendRetcode; rc != 0 {
		s.nextSendRetcode = 0
		return terminal.OrderResult{Retcode: rc, Comment: "forced"}, nil
	}

	switch req.Action {
	case terminal.ActionDeal:
		if req.Position != 0 {
			// Closing deal against an existing position.
			pos, ok := b.positions[req.Position]
			if !ok {
				return terminal.OrderResult{Retcode: terminal.RetcodeRejected, Comment: "position not found"}, nil
			}
			delete(b.positions, req.Position)
			s.nextTicket++
			b.deals = append(b.deals, terminal.Deal{
				Ticket:  s.nextTicket,
				Order:   req.Position,
				Symbol:  pos.Symbol,
				Type:    req.Type,
				Volume:  pos.Volume,
				Price:   req.Price,
				Time:    time.Now(),
				Magic:   pos.Magic,
				Comment: pos.Comment,
			})
			return terminal.OrderResult{Retcode: terminal.RetcodeDone, DealID: s.nextTicket, Price: req.Price}, nil
		}
		s.nextTicket++
		b.positions[s.nextTicket] = terminal.Position{
			Ticket:     s.nextTicket,
			Symbol:     req.Symbol,
			Type:       req.Type,
			Volume:     req.Volume,
			PriceOpen:  req.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			OpenedAt:   time.Now(),
			Magic:      req.Magic,
			Comment:    req.Comment,
		}
		return terminal.OrderResult{Retcode: terminal.RetcodeDone, OrderID: s.nextTicket, Price: req.Price}, nil

	case terminal.ActionPending:
		s.nextTicket++
		b.orders[s.nextTicket] = terminal.PendingOrder{
			Ticket:     s.nextTicket,
			Symbol:     req.Symbol,
			Type:       req.Type,
			Volume:     req.Volume,
			PriceOpen:  req.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			PlacedAt:   time.Now(),
			Magic:      req.Magic,
			Comment:    req.Comment,
		}
		return terminal.OrderResult{Retcode: terminal.RetcodeDone, OrderID: s.nextTicket}, nil

	case terminal.ActionSLTP:
		pos, ok := b.positions[req.Position]
		if !ok {
			return terminal.OrderResult{Retcode: terminal.RetcodeRejected, Comment: "position not found"}, nil
		}
		pos.StopLoss = req.StopLoss
		pos.TakeProfit = req.TakeProfit
		b.positions[req.Position] = pos
		return terminal.OrderResult{Retcode: terminal.RetcodeDone, OrderID: req.Position}, nil

	case terminal.ActionModify:
		ord, ok := b.orders[req.Order]
		if !ok {
			return terminal.OrderResult{Retcode: terminal.RetcodeRejected, Comment: "order not found"}, nil
		}
		if req.Price != 0 {
			ord.PriceOpen = req.Price
		}
		ord.StopLoss = req.StopLoss
		ord.TakeProfit = req.TakeProfit
		b.orders[req.Order] = ord
		return terminal.OrderResult{Retcode: terminal.RetcodeDone, OrderID: req.Order}, nil

	case terminal.ActionRemove:
		if _, ok := b.orders[req.Order]; !ok {
			return terminal.OrderResult{Retcode: terminal.RetcodeRejected, Comment: "order not found"}, nil
		}
		delete(b.orders, req.Order)
		return terminal.OrderResult{Retcode: terminal.RetcodeDone, OrderID: req.Order}, nil

	default:
		return terminal.OrderResult{Retcode: terminal.RetcodeRejected, Comment: "unknown action"}, nil
	}
}

func (s *Terminal) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = 0
	return nil
}
