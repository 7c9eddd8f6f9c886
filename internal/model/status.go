package model

import "strings"

// Status — статус оплаты заказа в каноническом (локализованном) виде.
type Status string

const (
	StatusPaid    Status = "Оплачено"
	StatusPending Status = "Не оплачено"
)

// statusSynonyms сопоставляет известные написания статуса каноническому значению.
var statusSynonyms = map[string]Status{
	"оплачено":    StatusPaid,
	"paid":        StatusPaid,
	"не оплачено": StatusPending,
	"pending":     StatusPending,
}

// ParseStatus нормализует произвольное написание статуса ("paid", "ОПЛАЧЕНО",
// "не оплачено", ...) к одному из двух канонических значений. Регистр и
// краевые пробелы не учитываются.
func ParseStatus(s string) (Status, bool) {
	status, ok := statusSynonyms[strings.ToLower(strings.TrimSpace(s))]
	return status, ok
}
