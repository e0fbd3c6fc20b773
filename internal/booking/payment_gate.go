package booking

// checkPaymentStanding blocks contacts with an unpaid balance unless an
// admin granted an allowance.
func checkPaymentStanding(c *Contact) error {
	if c.OutstandingBalanceChf.IsPositive() && !c.PaymentAllowanceGranted {
		return violation(RuleOutstandingBalance,
			"an outstanding balance of CHF %s must be settled before a new appointment can be booked",
			c.OutstandingBalanceChf.StringFixed(2))
	}
	return nil
}
