package pix

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BR Code field ids.
const (
	idFormatIndicator  = "00"
	idMerchantAccount  = "26"
	idCategoryCode     = "52"
	idCurrency         = "53"
	idAmount           = "54"
	idCountryCode      = "58"
	idMerchantName     = "59"
	idMerchantCity     = "60"
	idAdditionalData   = "62"
	idCRC              = "63"
	idAccountGUI       = "00"
	idAccountKey       = "01"
	idAccountInfo      = "02"
	idAdditionalTxID   = "05"
	formatIndicator    = "01"
	gui                = "br.gov.bcb.pix"
	categoryCode       = "0000"
	currencyBRL        = "986"
	countryCode        = "BR"
	crcPrefix          = idCRC + "04"
	unspecifiedTxID    = "***"
	maxKeyLength       = 77
	maxDescription     = 25
	maxMerchantName    = 25
	maxMerchantCity    = 15
	maxTxIDLength      = 25
	maxAmountLength    = 13
	maxFieldValueBytes = 99
)

// Payload is the decoded content of a static PIX code.
type Payload struct {
	Key          string          `json:"key"`
	Description  string          `json:"description,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	MerchantName string          `json:"merchantName"`
	MerchantCity string          `json:"merchantCity"`
	TxID         string          `json:"txid,omitempty"`
}

// Encode renders p as an EMV BR Code string terminated by its CRC.
// Text fields are folded to ASCII and truncated, so Decode(Encode(p))
// returns the normalized values.
func Encode(p Payload) (string, error) {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return "", errs.NewValidationFieldError("key", "pix key is required", errs.ErrCodeValidationFailed)
	}
	if len(key) > maxKeyLength {
		return "", errs.NewValidationFieldError("key", fmt.Sprintf("pix key must not exceed %d characters", maxKeyLength), errs.ErrCodeValidationFailed)
	}

	name := foldText(p.MerchantName, maxMerchantName)
	if name == "" {
		return "", errs.NewValidationFieldError("merchantName", "merchant name is required", errs.ErrCodeValidationFailed)
	}
	city := foldText(p.MerchantCity, maxMerchantCity)
	if city == "" {
		return "", errs.NewValidationFieldError("merchantCity", "merchant city is required", errs.ErrCodeValidationFailed)
	}
	if !p.Amount.Round(2).IsPositive() {
		return "", errs.NewValidationFieldError("amount", "amount must be greater than zero", errs.ErrCodeInvalidAmount)
	}
	amount := p.Amount.StringFixed(2)
	if len(amount) > maxAmountLength {
		return "", errs.NewValidationFieldError("amount", "amount is too large", errs.ErrCodeInvalidAmount)
	}

	account := field(idAccountGUI, gui) + field(idAccountKey, key)
	// the description only gets whatever room a long key leaves in field 26
	if room := min(maxDescription, maxFieldValueBytes-len(account)-4); room > 0 {
		if desc := foldText(p.Description, room); desc != "" {
			account += field(idAccountInfo, desc)
		}
	}

	var b strings.Builder
	b.WriteString(field(idFormatIndicator, formatIndicator))
	b.WriteString(field(idMerchantAccount, account))
	b.WriteString(field(idCategoryCode, categoryCode))
	b.WriteString(field(idCurrency, currencyBRL))
	b.WriteString(field(idAmount, amount))
	b.WriteString(field(idCountryCode, countryCode))
	b.WriteString(field(idMerchantName, name))
	b.WriteString(field(idMerchantCity, city))

	txid := foldTxID(p.TxID)
	if txid == "" {
		txid = unspecifiedTxID
	}
	b.WriteString(field(idAdditionalData, field(idAdditionalTxID, txid)))

	b.WriteString(crcPrefix)
	body := b.String()
	return body + CRC16(body), nil
}

// Decode verifies the trailing CRC before anything else and then parses the fields.
func Decode(s string) (Payload, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(crcPrefix)+4 {
		return Payload{}, errs.ErrMalformedPayload.WithMessage("payload too short")
	}

	body, sum := s[:len(s)-4], s[len(s)-4:]
	if CRC16(body) != sum {
		return Payload{}, errs.ErrChecksumMismatch
	}
	if !strings.HasSuffix(body, crcPrefix) {
		return Payload{}, errs.ErrMalformedPayload.WithMessage("missing crc field")
	}

	fields, err := parseTLV(body[:len(body)-len(crcPrefix)])
	if err != nil {
		return Payload{}, err
	}

	if fields[idFormatIndicator] != formatIndicator {
		return Payload{}, errs.ErrMalformedPayload.WithMessage("unsupported payload format indicator")
	}
	if fields[idCurrency] != currencyBRL {
		return Payload{}, errs.ErrMalformedPayload.WithMessage("unsupported currency")
	}

	account, err := parseTLV(fields[idMerchantAccount])
	if err != nil {
		return Payload{}, err
	}
	if !strings.EqualFold(account[idAccountGUI], gui) {
		return Payload{}, errs.ErrMalformedPayload.WithMessage("not a pix merchant account")
	}

	p := Payload{
		Key:          account[idAccountKey],
		Description:  account[idAccountInfo],
		MerchantName: fields[idMerchantName],
		MerchantCity: fields[idMerchantCity],
		Amount:       decimal.Zero,
	}
	if p.Key == "" {
		return Payload{}, errs.ErrMalformedPayload.WithMessage("missing pix key")
	}

	if raw, ok := fields[idAmount]; ok {
		if !isAmountText(raw) {
			return Payload{}, errs.ErrMalformedPayload.WithMessage("invalid amount")
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return Payload{}, errs.ErrMalformedPayload.WithMessage("invalid amount")
		}
		p.Amount = amount
	}

	if raw, ok := fields[idAdditionalData]; ok {
		extra, err := parseTLV(raw)
		if err != nil {
			return Payload{}, err
		}
		if txid := extra[idAdditionalTxID]; txid != unspecifiedTxID {
			p.TxID = txid
		}
	}

	return p, nil
}

// isAmountText accepts plain decimal notation only: digits with an optional
// point and at most two decimals.
func isAmountText(s string) bool {
	if s == "" || len(s) > maxAmountLength {
		return false
	}
	whole, frac, hasPoint := strings.Cut(s, ".")
	if whole == "" || (hasPoint && (frac == "" || len(frac) > 2)) {
		return false
	}
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func field(id, value string) string {
	return id + fmt.Sprintf("%02d", len(value)) + value
}

func parseTLV(s string) (map[string]string, error) {
	out := make(map[string]string)
	for i := 0; i < len(s); {
		if i+4 > len(s) {
			return nil, errs.ErrMalformedPayload.WithMessage("truncated field header")
		}
		id := s[i : i+2]
		n, err := strconv.Atoi(s[i+2 : i+4])
		if err != nil || n < 0 || n > maxFieldValueBytes {
			return nil, errs.ErrMalformedPayload.WithMessage(fmt.Sprintf("invalid length for field %s", id))
		}
		i += 4
		if i+n > len(s) {
			return nil, errs.ErrMalformedPayload.WithMessage(fmt.Sprintf("field %s overruns payload", id))
		}
		out[id] = s[i : i+n]
		i += n
	}
	return out, nil
}

// foldText strips diacritics, drops anything outside printable ASCII and
// truncates to max, so byte length equals character length.
func foldText(s string, max int) string {
	// transform chains keep state; build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if len(out) > max {
		out = strings.TrimSpace(out[:max])
	}
	return out
}

func foldTxID(s string) string {
	var b strings.Builder
	for _, r := range foldText(s, len(s)) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxTxIDLength {
		out = out[:maxTxIDLength]
	}
	return out
}
