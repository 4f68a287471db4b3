package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/model"
)

var (
	dbsSubject  = regexp.MustCompile(`(?i)Transaction Alert`)
	dbsSender   = regexp.MustCompile(`(?i)@dbs\.com`)
	dbsDateTime = regexp.MustCompile(`Date & Time:\s*(\d{2}\s+[A-Za-z]{3}\s*\d{2}:\d{2})\s*(?:\(SGT\)|SGT)`)
	dbsAmount   = regexp.MustCompile(`(?s)Amount:\s*(.*?)\s*From:`)
	dbsMerchant = regexp.MustCompile(`To:[ \t]*([^\n]+)`)
	dbsCard     = regexp.MustCompile(`From:[ \t]*([^\n]+)`)
	spaces      = regexp.MustCompile(`\s+`)
)

// SGT is Singapore time, which has no daylight saving.
var SGT = time.FixedZone("SGT", 8*60*60)

// DBS parses DBS/POSB card transaction alerts.
type DBS struct {
	now func() time.Time
}

// NewDBS creates a DBS parser. Alerts carry no year, so now decides it.
func NewDBS(now func() time.Time) *DBS {
	if now == nil {
		now = time.Now
	}
	return &DBS{now: now}
}

// Name implements Parser.
func (p *DBS) Name() string { return "dbs" }

// CanParse implements Parser.
func (p *DBS) CanParse(email model.Email) bool {
	return dbsSubject.MatchString(email.Subject) && dbsSender.MatchString(email.From)
}

// Parse implements Parser.
func (p *DBS) Parse(email model.Email) (*model.Transaction, error) {
	body := strings.ReplaceAll(email.Body, "\r\n", "\n")

	date, err := p.parseDate(body)
	if err != nil {
		return nil, err
	}

	amount, err := parseAmount(body)
	if err != nil {
		return nil, err
	}

	merchant := firstGroup(dbsMerchant, body)
	if merchant == "" {
		return nil, fmt.Errorf("%w: merchant not found", common.ErrMalformedAlert)
	}

	tx := &model.Transaction{
		Date:      date,
		Amount:    amount,
		Merchant:  merchant,
		Narration: merchant,
		Card:      firstGroup(dbsCard, body),
		EmailID:   email.ID,
		Recipient: email.To,
		Source:    model.SourceEmail,
	}
	tx.Hash = tx.GenerateHash()
	return tx, nil
}

func (p *DBS) parseDate(body string) (time.Time, error) {
	raw := firstGroup(dbsDateTime, body)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: date not found", common.ErrMalformedAlert)
	}
	raw = spaces.ReplaceAllString(raw, " ")
	// "18 Apr13:29" loses its separator in some HTML renderings.
	if len(raw) > 6 && raw[6] != ' ' {
		raw = raw[:6] + " " + raw[6:]
	}

	now := p.now().In(SGT)
	parsed, err := time.ParseInLocation("02 Jan 15:04", raw, SGT)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", common.ErrMalformedAlert, raw, err)
	}

	date := time.Date(now.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, SGT)
	// A December alert read in January belongs to last year.
	if date.After(now.Add(24 * time.Hour)) {
		date = date.AddDate(-1, 0, 0)
	}
	return date, nil
}

func parseAmount(body string) (model.Amount, error) {
	raw := strings.TrimSpace(firstGroup(dbsAmount, body))
	if raw == "" {
		return model.Amount{}, fmt.Errorf("%w: amount not found", common.ErrMalformedAlert)
	}

	var currency, value string
	switch {
	case strings.HasPrefix(raw, "S$"):
		currency, value = "SGD", raw[2:]
	case len(raw) > 3:
		currency, value = raw[:3], raw[3:]
	default:
		return model.Amount{}, fmt.Errorf("%w: amount %q", common.ErrMalformedAlert, raw)
	}

	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	d, err := decimal.NewFromString(value)
	if err != nil {
		return model.Amount{}, fmt.Errorf("%w: amount %q: %v", common.ErrMalformedAlert, raw, err)
	}
	return model.NewAmount(d, currency), nil
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
