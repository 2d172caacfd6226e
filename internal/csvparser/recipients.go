package csvparser

import (
	"encoding/csv"
	"errors"
	"io"
	"net/mail"
	"strings"
)

// Recipient is one row of a bulk-enqueue CSV. Email comes from the "Email"
// column (case-insensitive); every other column lands in Data and is handed
// to the template renderer as template data.
type Recipient struct {
	Email string
	Data  map[string]interface{}
}

// ParseRecipients reads a CSV whose header row must contain an Email column.
// maxRows bounds how many data rows are accepted; values <= 0 fall back to
// 1000. Malformed rows and rows whose address does not parse are skipped
// rather than failing the whole upload: a bad address would only come back
// later as a permanent transport failure on the job, so it is cheaper to
// reject it here.
func ParseRecipients(r io.Reader, maxRows int) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}

	emailIdx := -1
	normalized := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		normalized[i] = h
		if strings.EqualFold(h, "email") {
			emailIdx = i
		}
	}
	if emailIdx == -1 {
		return nil, errors.New("csv must contain an Email column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	recipients := make([]Recipient, 0)
	for len(recipients) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(headers) {
			continue
		}

		addr := strings.TrimSpace(record[emailIdx])
		if addr == "" {
			continue
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			continue
		}

		data := make(map[string]interface{}, len(headers)-1)
		for i, value := range record {
			if i == emailIdx || normalized[i] == "" {
				continue
			}
			data[normalized[i]] = strings.TrimSpace(value)
		}

		recipients = append(recipients, Recipient{Email: addr, Data: data})
	}

	if len(recipients) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return recipients, nil
}
