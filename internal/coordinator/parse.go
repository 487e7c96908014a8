package coordinator

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// Wire payloads for the market push channels. Timestamps are RFC 3339
// strings assigned by the server; a payload without a usable timestamp
// yields an unusable snapshot rather than one stamped with local time.
type priceTickPayload struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp"`
	EventType string          `json:"eventType"`
}

type positionsPayload struct {
	Positions []struct {
		Symbol       string          `json:"symbol"`
		Qty          decimal.Decimal `json:"qty"`
		CurrentPrice decimal.Decimal `json:"currentPrice"`
		UpdatedAt    string          `json:"updatedAt"`
	} `json:"positions"`
	Timestamp string `json:"timestamp"`
}

type connectionPayload struct {
	State string `json:"state"`
}

// parsePriceTick decodes one price.updated.{symbol} message. A malformed
// payload, a symbol mismatch or a missing timestamp returns ok=false.
func parsePriceTick(symbol string, raw []byte) (model.PriceTick, bool) {
	var p priceTickPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.PriceTick{}, false
	}
	if p.Symbol != "" && p.Symbol != symbol {
		return model.PriceTick{}, false
	}
	ts, ok := parseTimestamp(p.Timestamp)
	if !ok {
		return model.PriceTick{}, false
	}
	return model.PriceTick{
		Symbol:    symbol,
		Price:     p.Price,
		Timestamp: ts,
		EventType: p.EventType,
	}, true
}

// parsePositions decodes one positions:{userID} message.
func parsePositions(raw []byte) (model.PositionsUpdate, bool) {
	var p positionsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.PositionsUpdate{}, false
	}
	ts, ok := parseTimestamp(p.Timestamp)
	if !ok {
		return model.PositionsUpdate{}, false
	}

	positions := make([]model.Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		updatedAt, _ := parseTimestamp(pos.UpdatedAt)
		positions = append(positions, model.Position{
			Symbol:       pos.Symbol,
			Qty:          pos.Qty,
			CurrentPrice: pos.CurrentPrice,
			UpdatedAt:    updatedAt,
		})
	}
	return model.PositionsUpdate{Positions: positions, Timestamp: ts}, true
}

// parseConnectionEvent decodes one connection:state message.
func parseConnectionEvent(raw []byte) (enum.ConnectionState, bool) {
	var p connectionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, false
	}
	return enum.ParseConnectionState(p.State)
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts, true
}
