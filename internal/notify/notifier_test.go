package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

type fakeSender struct {
	name     string
	err      error
	titles   []string
	messages []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert(kind domain.AlertKind) domain.Alert {
	return domain.Alert{
		ID:        "a-1",
		Account:   "0x1234567890abcdef",
		Kind:      kind,
		Asset:     "BTC",
		Message:   "BTC position close to liquidation (5.0%)",
		Value:     5,
		Threshold: 10,
		CreatedAt: time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC),
	}
}

func TestSendDeliversToAllSenders(t *testing.T) {
	tg := &fakeSender{name: "telegram"}
	dc := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{tg, dc}, nil, discardLogger())

	err := n.Send(context.Background(), testAlert(domain.AlertLiquidationProximity))
	require.NoError(t, err)

	require.Len(t, tg.titles, 1)
	require.Len(t, dc.titles, 1)
	assert.Contains(t, tg.titles[0], "liquidation proximity")
	assert.Contains(t, tg.messages[0], "BTC")
	assert.Contains(t, tg.messages[0], "0x123456")
}

func TestSendFiltersByKind(t *testing.T) {
	tg := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{tg}, []string{"portfolio_heat"}, discardLogger())

	require.NoError(t, n.Send(context.Background(), testAlert(domain.AlertLiquidationProximity)))
	assert.Empty(t, tg.titles)

	require.NoError(t, n.Send(context.Background(), testAlert(domain.AlertPortfolioHeat)))
	assert.Len(t, tg.titles, 1)
}

func TestSendCollectsSenderFailures(t *testing.T) {
	bad := &fakeSender{name: "telegram", err: errors.New("401 unauthorized")}
	good := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Send(context.Background(), testAlert(domain.AlertLeverage))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	// The healthy channel still got the alert.
	assert.Len(t, good.titles, 1)
}

func TestSendNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	require.NoError(t, n.Send(context.Background(), testAlert(domain.AlertLeverage)))
}
