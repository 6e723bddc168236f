package main

import "example.com/ledger/billing"

func main() {
	svc := billing.NewService(billing.CardCharger{})
	svc.Close(12)
}
