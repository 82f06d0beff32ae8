package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification 通知訊息 引擎在持久化成功後入隊，由獨立 worker 負責送出
// ID 為外部追蹤號，方便下游去重與查問題
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
}

// NewCreationNotice 開戶成功通知
func NewCreationNotice(a *Account) Notification {
	body := fmt.Sprintf(`Hello user,

Your account has been created successfully at our bank.
Here are your details. Please save this mail and keep the information safe.

Name: %s
Account Number: %s
Account Activation Date: %s

Thank you for using our service.
Regards,
FinSecure
`, a.FullName(), a.Number, a.CreatedAt.Format(time.RFC1123))

	return Notification{
		ID:        uuid.New(),
		Recipient: a.Email,
		Subject:   "Account Created Successfully!",
		Body:      body,
	}
}

// NewCreditNotice 入帳通知
func NewCreditNotice(a *Account, amount decimal.Decimal, at time.Time) Notification {
	body := fmt.Sprintf(`Hello %s,

%s has been credited to A/C No. %s on %s.

For any concerns regarding this transaction, please call customer care.

Regards,
FinSecure
`, a.FullName(), amount.String(), a.Number, at.Format(time.RFC1123))

	return Notification{
		ID:        uuid.New(),
		Recipient: a.Email,
		Subject:   "Credit Notification from FinSecure!",
		Body:      body,
	}
}

// NewDebitNotice 扣帳通知
func NewDebitNotice(a *Account, amount decimal.Decimal, at time.Time) Notification {
	body := fmt.Sprintf(`Hello %s,

We wish to inform you that %s has been debited from your A/C No. %s on %s.

Please call customer care if this transaction is not initiated by you.

Regards,
FinSecure
`, a.FullName(), amount.String(), a.Number, at.Format(time.RFC1123))

	return Notification{
		ID:        uuid.New(),
		Recipient: a.Email,
		Subject:   "Debit Notification Alert!",
		Body:      body,
	}
}
