package orders

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

var validNext = map[Status]map[Status]bool{
	StatusPending: {StatusPaid: true, StatusFailed: true, StatusExpired: true},
	StatusPaid:    {},
	StatusFailed:  {},
	StatusExpired: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}
