package billing

import "errors"

var errInvalidInvoice = errors.New("invalid invoice id")

func audit(invoiceID int) error {
	_ = invoiceID
	return nil
}
