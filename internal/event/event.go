// Package event turns raw trade-feed messages into typed trade events.
//
// Feed messages name the same logical value differently depending on the
// event type and producer, so every logical field is read through an ordered
// list of candidate keys. The first key that yields a usable value wins.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a trade event.
type Kind int

const (
	KindUnknown Kind = iota
	KindCreate
	KindBuy
	KindSell
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindBuy:
		return "buy"
	case KindSell:
		return "sell"
	}
	return "unknown"
}

// Subscription methods accepted by the feed.
const (
	MethodSubscribeAccountTrade   = "subscribeAccountTrade"
	MethodSubscribeTokenTrade     = "subscribeTokenTrade"
	MethodUnsubscribeTokenTrade   = "unsubscribeTokenTrade"
	MethodUnsubscribeAccountTrade = "unsubscribeAccountTrade"

	subscribedMessage = "Successfully subscribed to keys"
)

// Extractor rule order. Changing the order changes which value wins when a
// message carries several candidates.
var (
	TraderFields      = []string{"traderPublicKey", "walletAddress", "buyer", "seller", "trader", "account"}
	MintFields        = []string{"mint", "tokenAddress", "token"}
	SymbolFields      = []string{"symbol", "tokenSymbol"}
	NameFields        = []string{"name", "tokenName"}
	SolAmountFields   = []string{"solAmount", "sol"}
	TokenAmountFields = []string{"tokenAmount", "amount"}
	MarketCapFields   = []string{"marketCapSol", "marketCap"}
)

// kindRule maps one classification field to the kinds it may carry. Only
// txType and type can announce a create.
type kindRule struct {
	field string
	kinds []Kind
}

var kindRules = []kindRule{
	{field: "txType", kinds: []Kind{KindCreate, KindBuy, KindSell}},
	{field: "type", kinds: []Kind{KindCreate, KindBuy, KindSell}},
	{field: "side", kinds: []Kind{KindBuy, KindSell}},
	{field: "action", kinds: []Kind{KindBuy, KindSell}},
}

const (
	DefaultSymbol = "UNKNOWN"
	DefaultName   = "Unknown Token"
)

// TradeEvent is the normalized view of a feed message.
type TradeEvent struct {
	Kind   Kind
	TxType string // raw classification value

	Trader    string
	Mint      string
	Symbol    string
	Name      string
	Signature string

	SolAmount       float64
	TokenAmount     float64
	NewTokenBalance float64
	MarketCapSol    float64
	InitialBuy      float64

	VSolInBondingCurve float64
	HasVSol            bool

	Timestamp time.Time

	// Control is true for subscription confirmations and error-only messages.
	Control bool

	Raw map[string]interface{}
}

// Parse decodes a raw feed message. now supplies the timestamp when the
// message carries none.
func Parse(data []byte, now time.Time) (*TradeEvent, error) {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode feed message: %w", err)
	}
	return FromMap(raw, now), nil
}

// FromMap normalizes an already decoded message.
func FromMap(raw map[string]interface{}, now time.Time) *TradeEvent {
	ev := &TradeEvent{Raw: raw}
	if isControl(raw) {
		ev.Control = true
		return ev
	}

	ev.Trader = firstString(raw, TraderFields)
	ev.Kind, ev.TxType = classify(raw)
	ev.Mint = firstString(raw, MintFields)
	ev.Symbol = firstString(raw, SymbolFields)
	if ev.Symbol == "" {
		ev.Symbol = DefaultSymbol
	}
	ev.Name = firstString(raw, NameFields)
	if ev.Name == "" {
		ev.Name = DefaultName
	}
	ev.Signature = firstString(raw, []string{"signature"})

	ev.SolAmount = firstNumber(raw, SolAmountFields)
	ev.TokenAmount = firstNumber(raw, TokenAmountFields)
	ev.NewTokenBalance = firstNumber(raw, []string{"newTokenBalance"})
	ev.MarketCapSol = firstNumber(raw, MarketCapFields)
	ev.InitialBuy = firstNumber(raw, []string{"initialBuy"})
	ev.VSolInBondingCurve, ev.HasVSol = number(raw["vSolInBondingCurve"])

	ev.Timestamp = now
	if ts := firstNumber(raw, []string{"timestamp"}); ts > 0 {
		ev.Timestamp = fromUnix(ts)
	}
	return ev
}

func isControl(raw map[string]interface{}) bool {
	if m, ok := raw["method"].(string); ok && (m == MethodSubscribeAccountTrade || m == MethodSubscribeTokenTrade) {
		return true
	}
	if msg, ok := raw["message"].(string); ok && msg == subscribedMessage {
		return true
	}
	if _, ok := raw["errors"]; ok {
		return true
	}
	return false
}

func classify(raw map[string]interface{}) (Kind, string) {
	for _, rule := range kindRules {
		v, ok := raw[rule.field].(string)
		if !ok || v == "" {
			continue
		}
		k := parseKind(v)
		for _, allowed := range rule.kinds {
			if k == allowed {
				return k, v
			}
		}
	}
	return KindUnknown, firstString(raw, []string{"txType", "type"})
}

func parseKind(v string) Kind {
	switch strings.ToLower(v) {
	case "create":
		return KindCreate
	case "buy":
		return KindBuy
	case "sell":
		return KindSell
	}
	return KindUnknown
}

// firstString returns the first non-empty string among keys.
func firstString(raw map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstNumber returns the first non-zero numeric value among keys. Numeric
// strings are accepted.
func firstNumber(raw map[string]interface{}, keys []string) float64 {
	for _, k := range keys {
		if f, ok := number(raw[k]); ok && f != 0 {
			return f
		}
	}
	return 0
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// fromUnix accepts seconds or milliseconds.
func fromUnix(ts float64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(int64(ts))
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
