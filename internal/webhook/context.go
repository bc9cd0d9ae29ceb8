package webhook

import (
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// Форматы даты и времени в переменных шаблонов.
const (
	dateLayout        = "2006-01-02"
	timeLayout        = "15:04"
	timeSecondsLayout = "15:04:05"
)

// Owner — контактные данные владельца, доступные во всех шаблонах.
type Owner struct {
	Name  string
	Email string
	Phone string
}

// DefaultContext возвращает переменные, присутствующие в каждом событии.
func DefaultContext(now time.Time, owner Owner) template.Context {
	now = now.UTC()
	return template.Context{
		"date":               now.Format(dateLayout),
		"time":               now.Format(timeLayout),
		"time_seconds":       now.Format(timeSecondsLayout),
		"owner_name":         owner.Name,
		"owner_email":        owner.Email,
		"owner_phone_number": owner.Phone,
		"newline":            "\n",
	}
}

// ExpiryContext возвращает expiry_date, expiry_time, expiry_time_seconds.
// Для бессрочного доступа значения пустые.
func ExpiryContext(expireAt *time.Time) template.Context {
	if expireAt == nil {
		return template.Context{
			"expiry_date":         "",
			"expiry_time":         "",
			"expiry_time_seconds": "",
		}
	}
	t := expireAt.UTC()
	return template.Context{
		"expiry_date":         t.Format(dateLayout),
		"expiry_time":         t.Format(timeLayout),
		"expiry_time_seconds": t.Format(timeSecondsLayout),
	}
}
