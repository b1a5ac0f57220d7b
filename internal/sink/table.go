package sink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const summaryColumnWidth = 64

// tableSink renders the latest event per symbol and kind in a terminal table.
type tableSink struct {
	app     *tview.Application
	table   *tview.Table
	running atomic.Bool

	mu     sync.Mutex
	latest map[tableKey]*tableRow
}

type tableKey struct {
	symbol string
	kind   string
}

type tableRow struct {
	symbol    string
	kind      string
	summary   string
	count     int
	eventTime time.Time
	received  time.Time
}

func newTableSink() *tableSink {
	app := tview.NewApplication()
	tbl := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)

	tbl.SetBorder(true).
		SetTitle(" Binance Streams ")

	return &tableSink{
		app:    app,
		table:  tbl,
		latest: make(map[tableKey]*tableRow),
	}
}

func (t *tableSink) Name() string { return "tview" }

// Start runs the terminal UI until ctx is cancelled or the user quits.
func (t *tableSink) Start(ctx context.Context) error {
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() {
		stopOnce.Do(func() { close(stopCh) })
	}

	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyCtrlC,
			event.Key() == tcell.KeyEscape,
			event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q'):
			requestStop()
			return nil
		}
		return event
	})

	go func() {
		select {
		case <-ctx.Done():
			requestStop()
		case <-stopCh:
		}
	}()

	go func() {
		<-stopCh
		t.app.QueueUpdateDraw(func() {
			t.app.Stop()
		})
	}()

	t.mu.Lock()
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.update(snapshot)
	t.app.SetRoot(t.table, true)
	t.app.EnableMouse(true)

	t.running.Store(true)
	err := t.app.Run()
	t.running.Store(false)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stopCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return ErrStopped
		}
		return err
	default:
		return err
	}
}

func (t *tableSink) Send(_ context.Context, evt Event) error {
	snapshot := t.record(evt)
	if !t.running.Load() {
		return nil
	}
	t.app.QueueUpdateDraw(func() {
		t.update(snapshot)
	})
	return nil
}

func (t *tableSink) record(evt Event) []tableRow {
	key := tableKey{symbol: evt.Symbol, kind: evt.Kind}

	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.latest[key]
	if !ok {
		row = &tableRow{symbol: evt.Symbol, kind: evt.Kind}
		t.latest[key] = row
	}
	row.count++
	row.summary = evt.Summary
	row.received = evt.ReceivedAt
	if evt.EventTime.After(row.eventTime) {
		row.eventTime = evt.EventTime
	}
	return t.snapshotLocked()
}

func (t *tableSink) snapshotLocked() []tableRow {
	rows := make([]tableRow, 0, len(t.latest))
	for _, row := range t.latest {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].symbol == rows[j].symbol {
			return rows[i].kind < rows[j].kind
		}
		return rows[i].symbol < rows[j].symbol
	})
	return rows
}

func (t *tableSink) update(rows []tableRow) {
	currentRow, currentCol := t.table.GetSelection()

	t.table.Clear()

	headers := []string{"Symbol", "Kind", "Events", "Event Time", "Latest"}
	for col, text := range headers {
		t.table.SetCell(0, col, headerCell(text))
	}

	for i, row := range rows {
		r := i + 1
		symbol := row.symbol
		if symbol == "" {
			symbol = "-"
		}
		t.table.SetCell(r, 0, valueCell(symbol))
		t.table.SetCell(r, 1, valueCell(row.kind))
		t.table.SetCell(r, 2, valueCell(fmt.Sprintf("%d", row.count)).SetAlign(tview.AlignRight))
		at := "-"
		if !row.eventTime.IsZero() {
			at = row.eventTime.In(time.Local).Format("15:04:05.000")
		}
		t.table.SetCell(r, 3, valueCell(at))
		t.table.SetCell(r, 4, valueCell(truncateString(row.summary, summaryColumnWidth)))
	}

	if len(rows) == 0 {
		t.table.Select(0, 0)
		return
	}

	if currentRow <= 0 || currentRow > len(rows) {
		t.table.Select(1, 0)
		return
	}

	t.table.Select(currentRow, currentCol)
}

func headerCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(tcell.ColorAqua).
		SetSelectable(false).
		SetAlign(tview.AlignLeft).
		SetAttributes(tcell.AttrBold)
}

func valueCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(tcell.ColorWhite).
		SetAlign(tview.AlignLeft)
}

func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return string(runes[0])
	}
	return string(runes[:width-1]) + "…"
}
