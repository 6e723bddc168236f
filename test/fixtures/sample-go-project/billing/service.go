package billing

// Charger settles an invoice against a payment backend.
type Charger interface {
	Charge(invoiceID int) error
}

type CardCharger struct{}

func (CardCharger) Charge(invoiceID int) error {
	return validate(invoiceID)
}

type WireCharger struct{}

func (WireCharger) Charge(invoiceID int) error {
	if err := validate(invoiceID); err != nil {
		return err
	}
	return audit(invoiceID)
}

type Service struct {
	charger Charger
}

func NewService(c Charger) *Service {
	return &Service{charger: c}
}

// Close settles the invoice and records the settlement.
func (s *Service) Close(invoiceID int) error {
	if err := s.charger.Charge(invoiceID); err != nil {
		return err
	}
	return audit(invoiceID)
}

func validate(invoiceID int) error {
	if invoiceID <= 0 {
		return errInvalidInvoice
	}
	return nil
}
