package bus

import "strings"

// Well-known channels.
const (
	ChannelKillSwitch     = "kill_switch:state"
	ChannelCircuitBreaker = "circuit_breaker:state"
	ChannelConnection     = "connection:state"

	priceChannelPrefix     = "price.updated."
	positionsChannelPrefix = "positions:"
)

// PriceChannel returns the per-symbol price channel name.
func PriceChannel(symbol string) string {
	return priceChannelPrefix + symbol
}

// PositionsChannel returns the per-user positions channel name.
func PositionsChannel(userID string) string {
	return positionsChannelPrefix + userID
}

// PriceSymbol extracts the symbol from a price channel name.
func PriceSymbol(channel string) (string, bool) {
	if !strings.HasPrefix(channel, priceChannelPrefix) {
		return "", false
	}
	symbol := channel[len(priceChannelPrefix):]
	return symbol, symbol != ""
}

// IsPositionsChannel reports whether channel carries position snapshots.
func IsPositionsChannel(channel string) bool {
	return strings.HasPrefix(channel, positionsChannelPrefix)
}
