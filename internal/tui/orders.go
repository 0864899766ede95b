package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
)

// OrderDateFormat is how order dates are shown.
const OrderDateFormat = "2006-01-02 15:04"

// RenderOrders draws the order history as a table.
func RenderOrders(orders []account.Order, styles Styles) string {
	if len(orders) == 0 {
		return styles.Muted.Render("No orders yet")
	}

	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		earned := ""
		if o.EarnedReward > 0 {
			earned = plural(o.EarnedReward, "free coffee")
		}
		rows = append(rows, []string{
			o.OrderDate.Local().Format(OrderDateFormat),
			fmt.Sprintf("%d", o.CoffeeCount),
			earned,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.Muted).
		Headers("Date", "Coffees", "Earned").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		}).
		Render()
}

// FetchOrders loads the order history. It must honour ctx cancellation.
type FetchOrders func(ctx context.Context) ([]account.Order, error)

type ordersKeyMap struct {
	Retry key.Binding
	Quit  key.Binding
}

func (k ordersKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Retry, k.Quit}
}

var ordersKeys = ordersKeyMap{
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ordersLoadedMsg carries a fetch result tagged with the fetch it answers.
type ordersLoadedMsg struct {
	seq    int
	orders []account.Order
	err    error
}

// OrdersModel is the interactive order history. Retry is ignored while a
// fetch is outstanding, quitting cancels the outstanding fetch, and results
// from superseded fetches are dropped by sequence number.
type OrdersModel struct {
	parent context.Context
	fetch  FetchOrders
	cancel context.CancelFunc

	seq      int
	loading  bool
	orders   []account.Order
	err      error
	quitting bool

	spinner spinner.Model
	help    help.Model
	styles  Styles
}

// NewOrdersModel returns a model that shows initial until the first fetch
// completes. ctx bounds every fetch.
func NewOrdersModel(ctx context.Context, fetch FetchOrders, initial []account.Order) *OrdersModel {
	styles := DefaultStyles()
	return &OrdersModel{
		parent:  ctx,
		fetch:   fetch,
		orders:  initial,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Title)),
		help:    help.New(),
		styles:  styles,
	}
}

// Init starts the first fetch.
func (m *OrdersModel) Init() tea.Cmd {
	return tea.Batch(m.load(), m.spinner.Tick)
}

// load starts a fetch unless one is already running.
func (m *OrdersModel) load() tea.Cmd {
	if m.loading {
		return nil
	}
	m.seq++
	m.loading = true
	m.err = nil

	ctx, cancel := context.WithCancel(m.parent)
	m.cancel = cancel
	seq, fetch := m.seq, m.fetch
	return func() tea.Msg {
		orders, err := fetch(ctx)
		return ordersLoadedMsg{seq: seq, orders: orders, err: err}
	}
}

func (m *OrdersModel) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Update handles key presses, fetch results and spinner ticks.
func (m *OrdersModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, ordersKeys.Quit):
			m.stop()
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, ordersKeys.Retry):
			if m.loading {
				return m, nil
			}
			return m, tea.Batch(m.load(), m.spinner.Tick)
		}

	case ordersLoadedMsg:
		if msg.seq != m.seq || m.quitting {
			return m, nil
		}
		m.stop()
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.orders = msg.orders
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the current state.
func (m *OrdersModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Order history"))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " Loading orders...")
		if len(m.orders) > 0 {
			b.WriteString("\n\n")
			b.WriteString(RenderOrders(m.orders, m.styles))
		}
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("Could not load orders: ") + errorText(m.err))
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render("Press r to try again."))
	default:
		b.WriteString(RenderOrders(m.orders, m.styles))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render(m.help.ShortHelpView(ordersKeys.ShortHelp())))
	b.WriteString("\n")
	return b.String()
}

// Loading reports whether a fetch is outstanding.
func (m *OrdersModel) Loading() bool { return m.loading }

// Orders returns the last successfully loaded history.
func (m *OrdersModel) Orders() []account.Order { return m.orders }

// Err returns the error of the last fetch, if it failed.
func (m *OrdersModel) Err() error { return m.err }

func errorText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "the request timed out"
	}
	return err.Error()
}
