package reconcile

// Status is a business result code. It travels in the response body; the
// HTTP status stays 200.
type Status struct {
	Code    int
	Message string
}

var (
	StatusSuccess             = Status{0, "Success"}
	StatusUserNotFound        = Status{10001, "User not found"}
	StatusInsufficientBalance = Status{10002, "User has insufficient balance to proceed"}
	StatusTransactionNotFound = Status{20001, "Transaction not found"}
	StatusDuplicate           = Status{20002, "Transaction duplicate"}
	StatusAlreadyCanceled     = Status{20003, "Bet has already canceled"}
	StatusAlreadySettled      = Status{20004, "Bet has already settled"}
	StatusInvalidToken        = Status{30001, "Invalid token"}
	StatusForbidden           = Status{40003, "Forbidden request"}
	StatusInternal            = Status{50001, "Internal server error"}
)
