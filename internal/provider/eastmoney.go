// Package provider implements the Eastmoney push2 market-data client used to
// populate the store: instrument directory, per-symbol daily history with
// forward adjustment, whole-market snapshots, and index series.
package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"quantpipe/internal/domain"
	"quantpipe/internal/util"
)

// Endpoint defaults. Overridable on the Client for tests.
const (
	defaultListURL  = "https://82.push2.eastmoney.com/api/qt/clist/get"
	defaultKlineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
)

// fs selector covering SZ main board (t:6), SZ ChiNext/others (t:80), SH main
// board (t:2), and SH STAR market (t:23).
const allAShareFS = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"

// clist field sets: f12 code, f14 name; quote fields for the snapshot path.
const (
	directoryFields = "f12,f14"
	snapshotFields  = "f2,f3,f4,f5,f6,f8,f12,f15,f16,f17,f18"
)

// kline response row layout for fields2=f51..f61:
// date,open,close,high,low,volume,amount,amplitude,pct_chg,change,turnover.
const klineFields2 = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"

const listPageSize = 500

// Browser-like headers; the push2 endpoints reject clients without them.
const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://quote.eastmoney.com/"
)

// Options configures a Client. Zero values select conservative defaults.
type Options struct {
	Timeout    time.Duration // per-request timeout (default 5s)
	RequestGap time.Duration // minimum gap between requests (default 200ms)
	Jitter     time.Duration // random extra delay added to the gap (default 150ms)
	MaxRetries int           // attempts per request (default 3)
}

// Client is the Eastmoney push2 HTTP client. Safe for concurrent use; all
// callers share one pacing gate so the aggregate request rate stays bounded
// regardless of worker count.
type Client struct {
	httpClient *http.Client
	listURL    string
	klineURL   string
	gap        time.Duration
	jitter     time.Duration
	maxRetries int
	log        *slog.Logger

	lastMu   sync.Mutex
	lastReq  time.Time
}

// NewClient creates an Eastmoney client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RequestGap <= 0 {
		opts.RequestGap = 200 * time.Millisecond
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		listURL:    defaultListURL,
		klineURL:   defaultKlineURL,
		gap:        opts.RequestGap,
		jitter:     opts.Jitter,
		maxRetries: opts.MaxRetries,
		log:        slog.Default().With("component", "provider"),
	}
}

// SetEndpoints overrides the push2 endpoint URLs. Used by tests.
func (c *Client) SetEndpoints(listURL, klineURL string) {
	c.listURL = listURL
	c.klineURL = klineURL
}

// ---------------------------------------------------------------------------
// Directory and snapshot (clist/get)
// ---------------------------------------------------------------------------

// Universe returns the full A-share instrument directory. The result is
// paginated server-side; pages are fetched until the reported total is
// reached.
func (c *Client) Universe(ctx context.Context) ([]domain.Symbol, error) {
	var all []domain.Symbol
	page := 1
	for {
		url := fmt.Sprintf("%s?pn=%d&pz=%d&fs=%s&fields=%s",
			c.listURL, page, listPageSize, allAShareFS, directoryFields)
		body, err := c.doGet(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetching symbol directory page %d: %w", page, err)
		}

		total := int(gjson.GetBytes(body, "data.total").Int())
		count := 0
		forEachDiff(body, func(row gjson.Result) {
			code := row.Get("f12").String()
			if code == "" {
				return
			}
			all = append(all, domain.Symbol{
				Code: code,
				Name: row.Get("f14").String(),
			})
			count++
		})

		if count == 0 || len(all) >= total || count < listPageSize {
			break
		}
		page++
	}
	return all, nil
}

// Snapshot fetches the latest daily quote for the whole universe in one
// paginated pass. Suspended instruments report "-" for numeric fields, which
// parse to zero.
func (c *Client) Snapshot(ctx context.Context) ([]domain.DailyBar, error) {
	var bars []domain.DailyBar
	page := 1
	for {
		url := fmt.Sprintf("%s?pn=%d&pz=%d&fs=%s&fields=%s",
			c.listURL, page, listPageSize, allAShareFS, snapshotFields)
		body, err := c.doGet(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetching snapshot page %d: %w", page, err)
		}

		total := int(gjson.GetBytes(body, "data.total").Int())
		count := 0
		forEachDiff(body, func(row gjson.Result) {
			code := row.Get("f12").String()
			if code == "" {
				return
			}
			bars = append(bars, domain.DailyBar{
				Code:         code,
				Close:        row.Get("f2").Float(),
				PctChg:       row.Get("f3").Float(),
				Change:       row.Get("f4").Float(),
				Volume:       row.Get("f5").Float(),
				Amount:       row.Get("f6").Float(),
				TurnoverRate: row.Get("f8").Float(),
				High:         row.Get("f15").Float(),
				Low:          row.Get("f16").Float(),
				Open:         row.Get("f17").Float(),
				PrevClose:    row.Get("f18").Float(),
			})
			count++
		})

		if count == 0 || len(bars) >= total || count < listPageSize {
			break
		}
		page++
	}
	return bars, nil
}

// forEachDiff iterates data.diff, which the push2 API returns either as an
// array or as an object keyed "0","1",....
func forEachDiff(body []byte, fn func(row gjson.Result)) {
	diff := gjson.GetBytes(body, "data.diff")
	if !diff.Exists() {
		return
	}
	diff.ForEach(func(_, row gjson.Result) bool {
		fn(row)
		return true
	})
}

// ---------------------------------------------------------------------------
// Daily history and index series (stock/kline/get)
// ---------------------------------------------------------------------------

// History fetches forward-adjusted daily bars for one stock code between
// start and end (YYYY-MM-DD, inclusive). An absent or empty kline payload is
// not an error: it returns (nil, nil).
func (c *Client) History(ctx context.Context, code, start, end string) ([]domain.DailyBar, error) {
	return c.klines(ctx, secID(code), code, start, end, 1)
}

// IndexDaily fetches the full unadjusted daily series for an index secid
// (e.g. "1.000300"). The stored code is assigned by the caller.
func (c *Client) IndexDaily(ctx context.Context, secid string) ([]domain.DailyBar, error) {
	return c.klines(ctx, secid, "", "1990-01-01", "2050-12-31", 0)
}

func (c *Client) klines(ctx context.Context, secid, code, start, end string, fqt int) ([]domain.DailyBar, error) {
	url := fmt.Sprintf("%s?secid=%s&klt=101&fqt=%d&beg=%s&end=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=%s",
		c.klineURL, secid, fqt, compactDate(start), compactDate(end), klineFields2)
	body, err := c.doGet(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s: %w", secid, err)
	}

	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() {
		return nil, nil
	}

	var bars []domain.DailyBar
	for _, k := range klines.Array() {
		fields := strings.Split(k.String(), ",")
		if len(fields) < 11 {
			continue
		}
		bars = append(bars, domain.DailyBar{
			Code:         code,
			Date:         fields[0],
			Open:         num(fields[1]),
			Close:        num(fields[2]),
			High:         num(fields[3]),
			Low:          num(fields[4]),
			Volume:       num(fields[5]),
			Amount:       num(fields[6]),
			PctChg:       num(fields[8]),
			Change:       num(fields[9]),
			TurnoverRate: num(fields[10]),
		})
	}
	return bars, nil
}

// secID maps a bare stock code to a push2 secid: Shanghai codes (6xxxxx) are
// market 1, everything else market 0.
func secID(code string) string {
	if strings.HasPrefix(code, "6") {
		return "1." + code
	}
	return "0." + code
}

// compactDate turns YYYY-MM-DD into the YYYYMMDD form the kline endpoint
// expects. Already-compact inputs pass through.
func compactDate(d string) string {
	return strings.ReplaceAll(d, "-", "")
}

// num parses a numeric field, defaulting to zero on any unparseable value
// (the API reports "-" for suspended instruments). A single bad cell must
// never fail a whole row.
func num(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// ---------------------------------------------------------------------------
// HTTP plumbing: pacing and retries
// ---------------------------------------------------------------------------

// doGet performs a paced GET with retries and browser-like headers.
func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := util.Retry(ctx, c.maxRetries, 500*time.Millisecond, func() error {
		if err := c.pace(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Referer", referer)
		req.Header.Set("Accept", "application/json, text/plain, */*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		c.log.Debug("request failed after retries", "url", url, "err", err)
		return nil, err
	}
	return body, nil
}

// pace enforces the minimum inter-request gap plus random jitter across all
// goroutines sharing this client.
func (c *Client) pace(ctx context.Context) error {
	c.lastMu.Lock()
	elapsed := time.Since(c.lastReq)
	c.lastMu.Unlock()

	d := c.gap - elapsed
	if c.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.jitter) + 1))
	}
	if d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}

	c.lastMu.Lock()
	c.lastReq = time.Now()
	c.lastMu.Unlock()
	return nil
}
