// Package ofx reads OFX/QFX bank and card statements.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/shepherdwind/bean-talk/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser implements OFX/QFX file parsing.
type Parser struct {
	defaultCurrency string
}

// NewParser creates a parser. defaultCurrency is used when a statement does
// not declare one.
func NewParser(defaultCurrency string) *Parser {
	if defaultCurrency == "" {
		defaultCurrency = "SGD"
	}
	return &Parser{defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case.
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Some SGML exports drop the closing bracket of a bare tag.
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file. Amounts are returned as spend: debits
// are positive and credits negative.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			transactions = append(transactions,
				p.convertList(stmt.BankTranList, string(stmt.BankAcctFrom.AcctID), p.currency(stmt.CurDef))...)
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			transactions = append(transactions,
				p.convertList(stmt.BankTranList, string(stmt.CCAcctFrom.AcctID), p.currency(stmt.CurDef))...)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return transactions, nil
}

func (p *Parser) convertList(list *ofxgo.TransactionList, accountID, currency string) []model.Transaction {
	if list == nil {
		return nil
	}
	transactions := make([]model.Transaction, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		tx, err := p.convertTransaction(ofxTx, accountID, currency)
		if err != nil {
			slog.Warn("Skipping OFX transaction", "fitid", ofxTx.FiTID, "error", err)
			continue
		}
		transactions = append(transactions, tx)
	}
	return transactions
}

// currency returns the ISO code of sym. An unset symbol reads as XXX.
func (p *Parser) currency(sym ofxgo.CurrSymbol) string {
	code := sym.String()
	if code == "" || code == "XXX" {
		return p.defaultCurrency
	}
	return code
}

// convertTransaction converts an OFX transaction to our model.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID, currency string) (model.Transaction, error) {
	value, err := decimal.NewFromString(ofxTx.TrnAmt.Rat.FloatString(4))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}
	if ofxTx.Currency != nil {
		currency = p.currency(ofxTx.Currency.CurSym)
	}

	tx := model.Transaction{
		ID:        fmt.Sprintf("ofx-%s-%s", accountID, ofxTx.FiTID),
		Date:      ofxTx.DtPosted.Time,
		Merchant:  p.extractMerchantName(ofxTx),
		Narration: strings.TrimSpace(string(ofxTx.Name)),
		Amount:    model.NewAmount(value.Neg(), currency),
		Card:      accountID,
		Source:    model.SourceOFX,
	}
	if ofxTx.Memo != "" && tx.Narration == "" {
		tx.Narration = strings.TrimSpace(string(ofxTx.Memo))
	}

	tx.Hash = tx.GenerateHash()
	return tx, nil
}

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"NETS ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " date stamp.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
