package alphavantage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// parseFloat64 parses the API's string numbers. Placeholders parse as 0.
func parseFloat64(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	switch s {
	case "", "None", "null", "-", ".":
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return int64(parseFloat64(s))
}

func parseDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", strings.TrimSpace(s))
	return t
}

// parseDailyTimeSeries handles TIME_SERIES_DAILY and TIME_SERIES_DAILY_ADJUSTED.
// The result is sorted oldest first.
func parseDailyTimeSeries(body []byte) ([]DailyPrice, error) {
	var raw struct {
		TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode time series: %w", err)
	}
	if len(raw.TimeSeries) == 0 {
		return nil, fmt.Errorf("response contains no daily time series")
	}

	prices := make([]DailyPrice, 0, len(raw.TimeSeries))
	for date, values := range raw.TimeSeries {
		d := parseDate(date)
		if d.IsZero() {
			continue
		}

		p := DailyPrice{
			Date:  d,
			Open:  parseFloat64(values["1. open"]),
			High:  parseFloat64(values["2. high"]),
			Low:   parseFloat64(values["3. low"]),
			Close: parseFloat64(values["4. close"]),
		}
		if adj, ok := values["5. adjusted close"]; ok {
			p.AdjustedClose = parseFloat64(adj)
			p.Volume = parseInt64(values["6. volume"])
		} else {
			p.AdjustedClose = p.Close
			p.Volume = parseInt64(values["5. volume"])
		}
		prices = append(prices, p)
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Date.Before(prices[j].Date)
	})

	return prices, nil
}

// parseGlobalQuote decodes a GLOBAL_QUOTE response.
// An empty quote object means the symbol is unknown.
func parseGlobalQuote(body []byte) (*GlobalQuote, error) {
	var raw struct {
		Quote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode global quote: %w", err)
	}
	if len(raw.Quote) == 0 || raw.Quote["01. symbol"] == "" {
		return nil, nil
	}

	q := raw.Quote
	return &GlobalQuote{
		Symbol:           q["01. symbol"],
		Open:             parseFloat64(q["02. open"]),
		High:             parseFloat64(q["03. high"]),
		Low:              parseFloat64(q["04. low"]),
		Price:            parseFloat64(q["05. price"]),
		Volume:           parseInt64(q["06. volume"]),
		LatestTradingDay: q["07. latest trading day"],
		PreviousClose:    parseFloat64(q["08. previous close"]),
		Change:           parseFloat64(q["09. change"]),
		ChangePercent:    parseFloat64(q["10. change percent"]),
		ChangePercentRaw: q["10. change percent"],
	}, nil
}
